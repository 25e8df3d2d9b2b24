// Package runstore persists pipeline run history. Every run gets one row
// plus an append-only trail of stage events, which the daemon serves over
// the admin API and the status command prints.
package runstore

import (
	"context"
	"errors"
	"time"
)

// Run status values.
const (
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusCanceled = "canceled"
)

// Stage event types.
const (
	EventStarted  = "stage_started"
	EventFinished = "stage_finished"
	EventFailed   = "stage_failed"
	EventSkipped  = "stage_skipped"
)

// ErrNotFound is returned when a run id has no row.
var ErrNotFound = errors.New("runstore: run not found")

// Run is one pipeline execution.
type Run struct {
	ID              string        `json:"id"`
	Pipeline        string        `json:"pipeline"`
	Ref             string        `json:"ref"`
	Commit          string        `json:"commit,omitempty"`
	Trigger         string        `json:"trigger"`
	Status          string        `json:"status"`
	SkipReason      string        `json:"skip_reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	Fingerprint     string        `json:"fingerprint,omitempty"`
	PublishedCommit string        `json:"published_commit,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
}

// Event is one append-only entry in a run's stage trail.
type Event struct {
	ID       int64         `json:"id"`
	RunID    string        `json:"run_id"`
	Stage    string        `json:"stage"`
	Type     string        `json:"type"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration,omitempty"`
	Note     string        `json:"note,omitempty"`
}

// Store defines the interface for persisting and retrieving runs.
type Store interface {
	// CreateRun inserts a new run. Missing StartedAt and Status default
	// to now and running.
	CreateRun(ctx context.Context, run *Run) error

	// FinishRun records the final state of a run. Missing FinishedAt and
	// Duration are filled in from the clock and StartedAt.
	FinishRun(ctx context.Context, run *Run) error

	// AppendEvent adds a stage event to a run's trail.
	AppendEvent(ctx context.Context, ev *Event) error

	// GetRun retrieves one run and its events, oldest event first.
	GetRun(ctx context.Context, id string) (*Run, []Event, error)

	// RecentRuns retrieves the newest runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]Run, error)

	// LastSuccess retrieves the newest successful run for a pipeline and
	// ref. No prior success is not an error: it returns (nil, nil).
	LastSuccess(ctx context.Context, pipeline, ref string) (*Run, error)

	// Close closes the store and releases resources.
	Close() error
}

// Discard is a Store that keeps nothing. It stands in when no data
// directory is configured, so callers never branch on a nil store.
var Discard Store = discardStore{}

type discardStore struct{}

func (discardStore) CreateRun(context.Context, *Run) error { return nil }

func (discardStore) FinishRun(context.Context, *Run) error { return nil }

func (discardStore) AppendEvent(context.Context, *Event) error { return nil }

func (discardStore) GetRun(context.Context, string) (*Run, []Event, error) {
	return nil, nil, ErrNotFound
}

func (discardStore) RecentRuns(context.Context, int) ([]Run, error) { return nil, nil }

func (discardStore) LastSuccess(context.Context, string, string) (*Run, error) { return nil, nil }

func (discardStore) Close() error { return nil }
