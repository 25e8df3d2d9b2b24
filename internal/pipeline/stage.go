package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/publish"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

// Stage is a discrete unit of work in a run.
type Stage func(ctx context.Context, st *State) error

// StageDef names a stage for reporting.
type StageDef struct {
	Name string
	Fn   Stage
}

// Stage names in execution order.
const (
	StageCheckout  = "checkout"
	StageBuild     = "build"
	StageLinkcheck = "linkcheck"
	StagePublish   = "publish"
)

// Skip reasons recorded on stages and runs.
const (
	SkipRefMismatch = "ref_mismatch"
	SkipDryRun      = "dry_run"
	SkipNoChanges   = "no_changes"
)

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // run must abort
	StageErrorWarning  StageErrorKind = "warning"  // recorded, run continues
	StageErrorCanceled StageErrorKind = "canceled" // context cancellation
)

// StageError carries the stage that produced an error and its category.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func newWarnStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// asStageError returns err as a StageError, recognizing context
// cancellation and wrapping anything else as fatal.
func asStageError(stage string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newCanceledStageError(stage, err)
	}
	return newFatalStageError(stage, err)
}

// State carries mutable run state across stages.
type State struct {
	Run     *runstore.Run
	Config  *config.Config
	Trigger Trigger

	RepoPath string          // source checkout, empty for local builds
	BookDir  string          // directory holding book.toml
	Book     *book.Book      // loaded by the checkout stage
	SiteDir  string          // rendered output directory
	Publish  *publish.Result // set by the publish stage

	Stages []StageResult

	stageSkip string
	runSkip   string
}

// SkipStage records the current stage as skipped for the given reason. The
// run continues with the next stage.
func (st *State) SkipStage(reason string) { st.stageSkip = reason }

// SkipRemaining records the current stage and everything after it as
// skipped and settles the whole run as skipped.
func (st *State) SkipRemaining(reason string) { st.runSkip = reason }

// StageResult is the recorded outcome of one stage.
type StageResult struct {
	Name       string
	Outcome    metrics.ResultLabel
	SkipReason string
	Duration   time.Duration
	Err        error // failure cause, or the warning carried by a completed stage
}
