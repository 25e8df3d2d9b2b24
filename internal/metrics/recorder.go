// Package metrics provides observability hooks for pipeline runs. The
// default NoopRecorder keeps call sites unconditional; the daemon swaps in
// a PrometheusRecorder and serves it from the admin endpoint.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultSkipped  ResultLabel = "skipped"
	ResultCanceled ResultLabel = "canceled"
)

// Publish result label values.
const (
	PublishPushed  = "pushed"
	PublishSkipped = "skipped"
	PublishDryRun  = "dry_run"
)

// Recorder defines observability hooks for run and stage metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome string) // success|failed|skipped|canceled
	IncPublish(result string)     // pushed|skipped|dry_run
	SetQueueDepth(n int)
	IncWebhook(event string, accepted bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) IncPublish(string)                          {}
func (NoopRecorder) SetQueueDepth(int)                          {}
func (NoopRecorder) IncWebhook(string, bool)                    {}
