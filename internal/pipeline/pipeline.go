// Package pipeline orchestrates bookship runs: checkout, build, optional
// link verification and publish, with per-stage accounting, run history,
// and concurrency groups serializing runs per pipeline and ref.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/notify"
	"git.home.luguber.info/inful/bookship/internal/runstore"
	"git.home.luguber.info/inful/bookship/internal/version"
)

// Trigger kinds.
const (
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Trigger describes what started a run.
type Trigger struct {
	Kind   string // webhook|schedule|manual
	Ref    string // pushed or simulated ref; empty follows the pipeline ref
	Commit string // pushed head when known; the checkout records the real one
	DryRun bool   // build everything, publish nothing
	Force  bool   // bypass the unchanged-run skip
}

// Runner executes runs for one configured pipeline.
type Runner struct {
	cfg    *config.Config
	store  runstore.Store
	rec    metrics.Recorder
	notify notify.Notifier

	workDir         string
	skipEngineCheck bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists runs and stage events to the given store.
func WithStore(s runstore.Store) Option {
	return func(r *Runner) {
		if s != nil {
			r.store = s
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// WithNotifier attaches outbound notification sinks.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		if n != nil {
			r.notify = n
		}
	}
}

// WithWorkDir roots checkout workspaces at dir instead of ./data.
func WithWorkDir(dir string) Option {
	return func(r *Runner) {
		if dir != "" {
			r.workDir = dir
		}
	}
}

// WithoutEngineCheck disables the pipeline.engine_version gate.
func WithoutEngineCheck() Option {
	return func(r *Runner) { r.skipEngineCheck = true }
}

// NewRunner creates a run executor for the given configuration. Without
// options, runs are not persisted, measured or announced.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		store:   runstore.Discard,
		rec:     metrics.NoopRecorder{},
		notify:  notify.Multi(nil),
		workDir: "./data",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute performs one full run for the given trigger and returns the final
// state. The error is the first fatal stage error; successful and skipped
// runs return nil.
func (r *Runner) Execute(ctx context.Context, trig Trigger) (*State, error) {
	if err := r.checkEngine(); err != nil {
		return nil, err
	}

	if trig.Kind == "" {
		trig.Kind = TriggerManual
	}
	if trig.Ref == "" {
		trig.Ref = r.cfg.Pipeline.Ref
	} else {
		trig.Ref = config.NormalizeRef(trig.Ref)
	}

	run := &runstore.Run{
		ID:        uuid.NewString(),
		Pipeline:  r.cfg.Pipeline.Name,
		Ref:       trig.Ref,
		Commit:    trig.Commit,
		Trigger:   trig.Kind,
		Status:    runstore.StatusRunning,
		StartedAt: time.Now(),
	}
	st := &State{
		Run:     run,
		Config:  r.cfg,
		Trigger: trig,
		SiteDir: r.cfg.Output.Directory,
	}

	slog.Info("Run started",
		logfields.RunID(run.ID),
		logfields.Pipeline(run.Pipeline),
		logfields.Ref(run.Ref),
		logfields.Trigger(run.Trigger))
	if err := r.store.CreateRun(ctx, run); err != nil {
		slog.Warn("Failed to record run start", logfields.RunID(run.ID), logfields.Error(err))
	}
	if err := r.notify.RunStarted(ctx, run); err != nil {
		slog.Warn("Run start notification failed", logfields.RunID(run.ID), logfields.Error(err))
	}

	err := r.RunStages(ctx, st, r.stages())
	r.finish(ctx, st, err)
	return st, err
}

// RunStages executes stages in order, recording duration and outcome for
// each, stopping at the first fatal error. Cancellation between or inside
// stages settles the run as canceled.
func (r *Runner) RunStages(ctx context.Context, st *State, stages []StageDef) error {
	for i, def := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(def.Name, ctx.Err())
			r.record(ctx, st, StageResult{Name: def.Name, Outcome: metrics.ResultCanceled, Err: se})
			return se
		default:
		}

		r.appendEvent(ctx, st, def.Name, runstore.EventStarted, 0, "")

		t0 := time.Now()
		err := def.Fn(ctx, st)
		dur := time.Since(t0)

		switch {
		case err != nil:
			se := asStageError(def.Name, err)
			if se.Kind == StageErrorWarning {
				slog.Warn("Stage completed with warnings",
					logfields.Stage(def.Name), logfields.RunID(st.Run.ID), logfields.Error(se.Err))
				r.record(ctx, st, StageResult{Name: def.Name, Outcome: metrics.ResultSuccess, Duration: dur, Err: se})
				continue
			}
			outcome := metrics.ResultFailed
			if se.Kind == StageErrorCanceled {
				outcome = metrics.ResultCanceled
			}
			slog.Error("Stage failed",
				logfields.Stage(def.Name), logfields.RunID(st.Run.ID), logfields.Error(se.Err))
			r.record(ctx, st, StageResult{Name: def.Name, Outcome: outcome, Duration: dur, Err: se})
			return se

		case st.stageSkip != "":
			reason := st.stageSkip
			st.stageSkip = ""
			r.record(ctx, st, StageResult{Name: def.Name, Outcome: metrics.ResultSkipped, SkipReason: reason, Duration: dur})

		case st.runSkip != "":
			r.record(ctx, st, StageResult{Name: def.Name, Outcome: metrics.ResultSkipped, SkipReason: st.runSkip, Duration: dur})
			for _, rest := range stages[i+1:] {
				r.record(ctx, st, StageResult{Name: rest.Name, Outcome: metrics.ResultSkipped, SkipReason: st.runSkip})
			}
			return nil

		default:
			slog.Debug("Stage completed",
				logfields.Stage(def.Name), logfields.RunID(st.Run.ID), logfields.DurationMS(float64(dur.Milliseconds())))
			r.record(ctx, st, StageResult{Name: def.Name, Outcome: metrics.ResultSuccess, Duration: dur})
		}
	}
	return nil
}

// finish settles the run record, metrics and notifications.
func (r *Runner) finish(ctx context.Context, st *State, runErr error) {
	run := st.Run
	now := time.Now()
	run.FinishedAt = &now
	run.Duration = now.Sub(run.StartedAt)

	switch {
	case runErr != nil && isCancellation(runErr):
		run.Status = runstore.StatusCanceled
		run.Error = runErr.Error()
	case runErr != nil:
		run.Status = runstore.StatusFailed
		run.Error = runErr.Error()
	case st.runSkip != "":
		run.Status = runstore.StatusSkipped
		run.SkipReason = st.runSkip
	default:
		run.Status = runstore.StatusSuccess
	}

	r.rec.ObserveRunDuration(run.Duration)
	r.rec.IncRunOutcome(run.Status)

	// History and notifications outlive a canceled run context.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.FinishRun(ctx, run); err != nil && !errors.Is(err, runstore.ErrNotFound) {
		slog.Warn("Failed to record run finish", logfields.RunID(run.ID), logfields.Error(err))
	}
	if err := r.notify.RunFinished(ctx, run); err != nil {
		slog.Warn("Run finish notification failed", logfields.RunID(run.ID), logfields.Error(err))
	}

	slog.Info("Run finished",
		logfields.RunID(run.ID),
		slog.String("status", run.Status),
		logfields.DurationMS(float64(run.Duration.Milliseconds())))
}

// record books one stage outcome into the state, metrics and run history.
func (r *Runner) record(ctx context.Context, st *State, res StageResult) {
	st.Stages = append(st.Stages, res)
	if res.Duration > 0 {
		r.rec.ObserveStageDuration(res.Name, res.Duration)
	}
	r.rec.IncStageResult(res.Name, res.Outcome)

	eventType := runstore.EventFinished
	note := ""
	switch res.Outcome {
	case metrics.ResultSkipped:
		eventType = runstore.EventSkipped
		note = res.SkipReason
	case metrics.ResultFailed, metrics.ResultCanceled:
		eventType = runstore.EventFailed
		if res.Err != nil {
			note = res.Err.Error()
		}
	default:
		if res.Err != nil { // warning carried by a completed stage
			note = res.Err.Error()
		}
	}
	r.appendEvent(ctx, st, res.Name, eventType, res.Duration, note)
}

func (r *Runner) appendEvent(ctx context.Context, st *State, stage, eventType string, d time.Duration, note string) {
	// History writes survive run cancellation.
	ctx = context.WithoutCancel(ctx)
	evt := runstore.Event{RunID: st.Run.ID, Stage: stage, Type: eventType, At: time.Now(), Duration: d, Note: note}
	if err := r.store.AppendEvent(ctx, &evt); err != nil {
		slog.Warn("Failed to append run event",
			logfields.RunID(st.Run.ID), logfields.Stage(stage), logfields.Error(err))
	}
}

// stages assembles the stage list for a full run.
func (r *Runner) stages() []StageDef {
	defs := []StageDef{
		{Name: StageCheckout, Fn: r.stageCheckout},
		{Name: StageBuild, Fn: r.stageBuild},
	}
	if r.cfg.Pipeline.LinkCheck.Enabled {
		defs = append(defs, StageDef{Name: StageLinkcheck, Fn: r.stageLinkcheck})
	}
	return append(defs, StageDef{Name: StagePublish, Fn: r.stagePublish})
}

// checkEngine enforces the pipeline.engine_version pin. Unversioned local
// builds log the mismatch instead of refusing to run.
func (r *Runner) checkEngine() error {
	pin := r.cfg.Pipeline.EngineVersion
	if pin == "" || r.skipEngineCheck || version.Satisfies(pin) {
		return nil
	}
	if version.IsDev() {
		slog.Warn("Engine version pin not enforced for unversioned binary",
			slog.String("pin", pin), slog.String("version", version.Version))
		return nil
	}
	return fmt.Errorf("engine version %s does not satisfy pin %s (pipeline.engine_version)", version.Version, pin)
}

func (r *Runner) checkoutRoot() string { return filepath.Join(r.workDir, "checkouts") }

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
