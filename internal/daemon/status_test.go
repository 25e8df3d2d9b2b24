package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

func testAdminDaemon(t *testing.T) *Daemon {
	t.Helper()
	store, err := runstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := &Daemon{
		cfg: &config.Config{
			Pipeline: config.PipelineConfig{Name: "docs", Ref: "refs/heads/master"},
			Daemon:   &config.DaemonConfig{},
		},
		store:       store,
		rec:         metrics.NoopRecorder{},
		metricsHTTP: metrics.HTTPHandler(prometheus.NewRegistry()),
		triggers:    make(chan pipeline.Trigger, 4),
		startTime:   time.Now().Add(-time.Minute),
	}
	d.groups = pipeline.NewGroups(func(context.Context, pipeline.Trigger) {}, nil)
	return d
}

func seedRun(t *testing.T, store runstore.Store, id, status string) *runstore.Run {
	t.Helper()
	run := &runstore.Run{
		ID:        id,
		Pipeline:  "docs",
		Ref:       "refs/heads/master",
		Trigger:   "webhook",
		Status:    runstore.StatusRunning,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.CreateRun(t.Context(), run))
	require.NoError(t, store.AppendEvent(t.Context(), &runstore.Event{
		RunID: id, Stage: "checkout", Type: runstore.EventStarted, At: time.Now(),
	}))
	run.Status = status
	require.NoError(t, store.FinishRun(t.Context(), run))
	return run
}

func adminGet(t *testing.T, d *Daemon, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	d.adminMux().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	d := testAdminDaemon(t)

	w := adminGet(t, d, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
	require.NotEmpty(t, resp["uptime"])
}

func TestStatusEndpoint(t *testing.T) {
	d := testAdminDaemon(t)
	seedRun(t, d.store, "run-1", runstore.StatusSuccess)

	w := adminGet(t, d, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "running", resp.Status)
	require.Equal(t, "docs", resp.Pipeline)
	require.Equal(t, "refs/heads/master", resp.Ref)
	require.NotEmpty(t, resp.Uptime)
	require.Zero(t, resp.QueueLength)
	require.Len(t, resp.RecentRuns, 1)
	require.Equal(t, runstore.StatusSuccess, resp.RecentRuns[0].Status)
}

func TestStatusRejectsPost(t *testing.T) {
	d := testAdminDaemon(t)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	w := httptest.NewRecorder()
	d.adminMux().ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunsEndpoint(t *testing.T) {
	d := testAdminDaemon(t)
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		seedRun(t, d.store, id, runstore.StatusSuccess)
	}

	w := adminGet(t, d, "/runs?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Runs []runstore.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)

	require.Equal(t, http.StatusBadRequest, adminGet(t, d, "/runs?limit=nope").Code)
	require.Equal(t, http.StatusBadRequest, adminGet(t, d, "/runs?limit=0").Code)
}

func TestRunEndpoint(t *testing.T) {
	d := testAdminDaemon(t)
	run := seedRun(t, d.store, "run-1", runstore.StatusFailed)

	w := adminGet(t, d, "/runs/"+run.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Run    runstore.Run     `json:"run"`
		Events []runstore.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, run.ID, resp.Run.ID)
	require.Equal(t, runstore.StatusFailed, resp.Run.Status)
	require.NotEmpty(t, resp.Events)

	require.Equal(t, http.StatusNotFound, adminGet(t, d, "/runs/nope").Code)
	require.Equal(t, http.StatusNotFound, adminGet(t, d, "/runs/run-1/extra").Code)
}

func TestAdminMuxServesMetrics(t *testing.T) {
	d := testAdminDaemon(t)

	w := adminGet(t, d, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
}
