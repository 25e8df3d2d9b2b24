package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed run store. Use ":memory:" for
// an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		ref TEXT NOT NULL,
		commit_sha TEXT NOT NULL DEFAULT '',
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		skip_reason TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		published_commit TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_pipeline_ref ON runs(pipeline, ref);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		event_type TEXT NOT NULL,
		at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const runColumns = "id, pipeline, ref, commit_sha, trigger_kind, status, skip_reason, error, fingerprint, published_commit, started_at, finished_at, duration_ms"

// CreateRun inserts a new run row. A zero StartedAt becomes now, an empty
// Status becomes running.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		return errors.New("runstore: run id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, pipeline, ref, commit_sha, trigger_kind, status, skip_reason, error, fingerprint, published_commit, started_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.Pipeline, run.Ref, run.Commit, run.Trigger, run.Status,
		run.SkipReason, run.Error, run.Fingerprint, run.PublishedCommit, run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the final state of a run. A nil FinishedAt becomes now
// and a zero Duration is derived from StartedAt.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	if run.Duration == 0 && !run.StartedAt.IsZero() {
		run.Duration = run.FinishedAt.Sub(run.StartedAt)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET commit_sha = ?, status = ?, skip_reason = ?, error = ?, fingerprint = ?, published_commit = ?, finished_at = ?, duration_ms = ? WHERE id = ?",
		run.Commit, run.Status, run.SkipReason, run.Error, run.Fingerprint,
		run.PublishedCommit, run.FinishedAt.Unix(), run.Duration.Milliseconds(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent adds a stage event to a run's trail. A zero At becomes now.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, stage, event_type, at, duration_ms, note) VALUES (?, ?, ?, ?, ?, ?)",
		ev.RunID, ev.Stage, ev.Type, ev.At.Unix(), ev.Duration.Milliseconds(), ev.Note,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetRun retrieves one run and its event trail, oldest event first.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, []Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, stage, event_type, at, duration_ms, note FROM run_events WHERE run_id = ? ORDER BY id",
		id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, nil, err
	}
	return run, events, nil
}

// RecentRuns retrieves the newest runs, newest first. A non-positive limit
// defaults to 20.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// LastSuccess retrieves the newest successful run for a pipeline and ref,
// or (nil, nil) when there is none yet.
func (s *SQLiteStore) LastSuccess(ctx context.Context, pipeline, ref string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE pipeline = ? AND ref = ? AND status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1",
		pipeline, ref, StatusSuccess,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last success: %w", err)
	}
	return run, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var r Run
	var startedAt int64
	var finishedAt sql.NullInt64
	var durationMS int64

	err := sc.Scan(&r.ID, &r.Pipeline, &r.Ref, &r.Commit, &r.Trigger, &r.Status,
		&r.SkipReason, &r.Error, &r.Fingerprint, &r.PublishedCommit,
		&startedAt, &finishedAt, &durationMS)
	if err != nil {
		return nil, err
	}

	r.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		r.FinishedAt = &t
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var at int64
		var durationMS int64

		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Type, &at, &durationMS, &e.Note); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.At = time.Unix(at, 0)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}
