package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveStageDuration("checkout", 150*time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncStageResult("checkout", ResultSuccess)
	pr.IncRunOutcome("success")
	pr.IncPublish(PublishPushed)
	pr.SetQueueDepth(3)
	pr.IncWebhook("push", true)
	pr.IncWebhook("push", false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"bookship_stage_duration_seconds",
		"bookship_run_duration_seconds",
		"bookship_stage_results_total",
		"bookship_run_outcomes_total",
		"bookship_publishes_total",
		"bookship_queue_depth",
		"bookship_webhooks_total",
	} {
		if !names[want] {
			t.Errorf("expected metric family %s, have %v", want, names)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveStageDuration("checkout", time.Second)
	pr.ObserveRunDuration(time.Second)
	pr.IncStageResult("checkout", ResultFailed)
	pr.IncRunOutcome("failed")
	pr.IncPublish(PublishSkipped)
	pr.SetQueueDepth(0)
	pr.IncWebhook("push", false)
}

func TestHTTPHandlerServesMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.SetQueueDepth(7)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bookship_queue_depth 7") {
		t.Errorf("expected queue depth sample in output:\n%s", rec.Body.String())
	}
}

func TestNoopRecorderImplementsInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("build", time.Second)
	r.IncRunOutcome("success")
}
