package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/runstore"
	"git.home.luguber.info/inful/bookship/internal/version"
)

// captureRecorder collects the metric calls the tests care about.
type captureRecorder struct {
	metrics.NoopRecorder

	mu       sync.Mutex
	depths   []int
	results  []string
	outcomes []string
}

func (c *captureRecorder) SetQueueDepth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depths = append(c.depths, n)
}

func (c *captureRecorder) IncPublish(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

func (c *captureRecorder) IncRunOutcome(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (c *captureRecorder) queueDepths() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.depths...)
}

func (c *captureRecorder) publishes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.results...)
}

func (c *captureRecorder) runOutcomes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.outcomes...)
}

func minimalBook() map[string]string {
	return map[string]string{
		"book.toml":      "[book]\ntitle = \"Handbook\"\n",
		"src/SUMMARY.md": "# Summary\n\n[Intro](README.md)\n\n- [Guide](guide.md)\n",
		"src/README.md":  "# Welcome\n\nHello.\n",
		"src/guide.md":   "# Guide\n\nDo things.\n",
	}
}

func writeBookDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return dir
}

// createSourceRepo seeds a git repository whose book lives under book/.
func createSourceRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}

	wt, err := repo.Worktree()
	require.NoError(t, err)
	for rel := range files {
		_, err = wt.Add(rel)
		require.NoError(t, err)
	}
	_, err = wt.Commit("seed book", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func bareTarget(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "target.git")
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func clonePublished(t *testing.T, bare, branch string) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           bare,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	return dir
}

func branchExists(t *testing.T, bare, branch string) bool {
	t.Helper()
	repo, err := git.PlainOpen(bare)
	require.NoError(t, err)
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	return err == nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Pipeline: config.PipelineConfig{Name: "docs", Ref: "refs/heads/master"},
		Output:   config.OutputConfig{Directory: filepath.Join(t.TempDir(), "site"), Clean: true},
		Publish:  config.PublishConfig{Branch: "gh-pages"},
	}
}

func stageNames(results []StageResult) []string {
	names := make([]string, 0, len(results))
	for _, res := range results {
		names = append(names, res.Name)
	}
	return names
}

func TestExecuteLocalRunPublishes(t *testing.T) {
	bookDir := writeBookDir(t, minimalBook())
	target := bareTarget(t)

	cfg := testConfig(t)
	cfg.Source.Dir = bookDir
	cfg.Publish.Repository = target

	store, err := runstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	rec := &captureRecorder{}
	runner := NewRunner(cfg, WithStore(store), WithRecorder(rec))

	st, err := runner.Execute(t.Context(), Trigger{Kind: TriggerManual})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, st.Run.Status)
	require.NotNil(t, st.Publish)
	require.False(t, st.Publish.Skipped)
	require.NotEmpty(t, st.Run.PublishedCommit)

	require.Equal(t, []string{StageCheckout, StageBuild, StagePublish}, stageNames(st.Stages))
	for _, res := range st.Stages {
		require.Equal(t, metrics.ResultSuccess, res.Outcome, res.Name)
	}

	published := clonePublished(t, target, "gh-pages")
	require.FileExists(t, filepath.Join(published, "index.html"))
	require.FileExists(t, filepath.Join(published, "guide.html"))
	require.FileExists(t, filepath.Join(published, ".nojekyll"))

	run, events, err := store.GetRun(t.Context(), st.Run.ID)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, run.Status)
	require.NotEmpty(t, run.Fingerprint)
	require.GreaterOrEqual(t, len(events), 6, "a started and finished event per stage")

	require.Equal(t, []string{runstore.StatusSuccess}, rec.runOutcomes())
	require.Equal(t, []string{metrics.PublishPushed}, rec.publishes())
}

func TestExecuteRefMismatchSkipsPublish(t *testing.T) {
	bookDir := writeBookDir(t, minimalBook())
	target := bareTarget(t)

	cfg := testConfig(t)
	cfg.Source.Dir = bookDir
	cfg.Publish.Repository = target

	st, err := NewRunner(cfg).Execute(t.Context(), Trigger{Kind: TriggerWebhook, Ref: "refs/heads/feature"})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, st.Run.Status)

	last := st.Stages[len(st.Stages)-1]
	require.Equal(t, StagePublish, last.Name)
	require.Equal(t, metrics.ResultSkipped, last.Outcome)
	require.Equal(t, SkipRefMismatch, last.SkipReason)
	require.Nil(t, st.Publish, "the publisher is never invoked for foreign refs")
	require.False(t, branchExists(t, target, "gh-pages"))
}

func TestExecuteDryRun(t *testing.T) {
	bookDir := writeBookDir(t, minimalBook())
	target := bareTarget(t)

	cfg := testConfig(t)
	cfg.Source.Dir = bookDir
	cfg.Publish.Repository = target

	st, err := NewRunner(cfg).Execute(t.Context(), Trigger{Kind: TriggerManual, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, st.Run.Status)

	last := st.Stages[len(st.Stages)-1]
	require.Equal(t, metrics.ResultSkipped, last.Outcome)
	require.Equal(t, SkipDryRun, last.SkipReason)
	require.NotNil(t, st.Publish)
	require.True(t, st.Publish.DryRun)
	require.True(t, st.Publish.Changed())
	require.False(t, branchExists(t, target, "gh-pages"))
}

func TestExecuteUnchangedSkip(t *testing.T) {
	srcRepo := createSourceRepo(t, map[string]string{
		"book/book.toml":      "[book]\ntitle = \"Handbook\"\n",
		"book/src/SUMMARY.md": "- [One](one.md)\n",
		"book/src/one.md":     "# One\n\nStable.\n",
	})
	target := bareTarget(t)

	cfg := testConfig(t)
	cfg.Source = config.SourceConfig{URL: srcRepo, Branch: "master", Dir: "book"}
	cfg.Publish.Repository = target

	store, err := runstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	runner := NewRunner(cfg, WithStore(store), WithWorkDir(t.TempDir()))

	first, err := runner.Execute(t.Context(), Trigger{Kind: TriggerWebhook, Ref: "refs/heads/master"})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, first.Run.Status)
	require.NotEmpty(t, first.Run.Commit)

	second, err := runner.Execute(t.Context(), Trigger{Kind: TriggerWebhook, Ref: "refs/heads/master"})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSkipped, second.Run.Status)
	require.Equal(t, SkipNoChanges, second.Run.SkipReason)

	require.Equal(t, []string{StageCheckout, StageBuild, StagePublish}, stageNames(second.Stages))
	require.Equal(t, metrics.ResultSuccess, second.Stages[0].Outcome)
	require.Equal(t, metrics.ResultSkipped, second.Stages[1].Outcome)
	require.Equal(t, SkipNoChanges, second.Stages[1].SkipReason)
	require.Equal(t, metrics.ResultSkipped, second.Stages[2].Outcome)

	// A forced run rebuilds; the publisher then detects the identical site.
	third, err := runner.Execute(t.Context(), Trigger{Kind: TriggerSchedule, Force: true})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, third.Run.Status)
	require.NotNil(t, third.Publish)
	require.True(t, third.Publish.Skipped)
}

func TestExecuteFailureRecordsRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Dir = filepath.Join(t.TempDir(), "missing")

	store, err := runstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	st, err := NewRunner(cfg, WithStore(store)).Execute(t.Context(), Trigger{})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageCheckout, se.Stage)
	require.Equal(t, StageErrorFatal, se.Kind)
	require.Equal(t, runstore.StatusFailed, st.Run.Status)
	require.NotEmpty(t, st.Run.Error)

	run, events, err := store.GetRun(t.Context(), st.Run.ID)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusFailed, run.Status)
	require.Equal(t, runstore.EventFailed, events[len(events)-1].Type)
}

func TestExecuteCanceledContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Dir = writeBookDir(t, minimalBook())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := NewRunner(cfg).Execute(ctx, Trigger{})
	require.Error(t, err)
	require.Equal(t, runstore.StatusCanceled, st.Run.Status)
	require.Equal(t, metrics.ResultCanceled, st.Stages[0].Outcome)
}

func TestRunStagesStopsOnFirstFailure(t *testing.T) {
	r := NewRunner(testConfig(t))
	st := &State{Run: &runstore.Run{ID: "run-1"}}

	ranThird := false
	stages := []StageDef{
		{Name: "one", Fn: func(ctx context.Context, st *State) error { return nil }},
		{Name: "two", Fn: func(ctx context.Context, st *State) error { return errors.New("boom") }},
		{Name: "three", Fn: func(ctx context.Context, st *State) error { ranThird = true; return nil }},
	}

	err := r.RunStages(t.Context(), st, stages)
	require.Error(t, err)
	require.False(t, ranThird)
	require.Len(t, st.Stages, 2)
	require.Equal(t, metrics.ResultSuccess, st.Stages[0].Outcome)
	require.Equal(t, metrics.ResultFailed, st.Stages[1].Outcome)
}

func TestRunStagesWarningContinues(t *testing.T) {
	r := NewRunner(testConfig(t))
	st := &State{Run: &runstore.Run{ID: "run-1"}}

	stages := []StageDef{
		{Name: "one", Fn: func(ctx context.Context, st *State) error {
			return newWarnStageError("one", errors.New("3 broken links"))
		}},
		{Name: "two", Fn: func(ctx context.Context, st *State) error { return nil }},
	}

	require.NoError(t, r.RunStages(t.Context(), st, stages))
	require.Len(t, st.Stages, 2)
	require.Equal(t, metrics.ResultSuccess, st.Stages[0].Outcome)
	require.Error(t, st.Stages[0].Err, "the warning rides along on the result")
	require.Equal(t, metrics.ResultSuccess, st.Stages[1].Outcome)
}

func TestRunStagesSkipRemaining(t *testing.T) {
	r := NewRunner(testConfig(t))
	st := &State{Run: &runstore.Run{ID: "run-1"}}

	ranLater := false
	stages := []StageDef{
		{Name: "one", Fn: func(ctx context.Context, st *State) error {
			st.SkipRemaining(SkipNoChanges)
			return nil
		}},
		{Name: "two", Fn: func(ctx context.Context, st *State) error { ranLater = true; return nil }},
		{Name: "three", Fn: func(ctx context.Context, st *State) error { ranLater = true; return nil }},
	}

	require.NoError(t, r.RunStages(t.Context(), st, stages))
	require.False(t, ranLater)
	require.Len(t, st.Stages, 3)
	for _, res := range st.Stages {
		require.Equal(t, metrics.ResultSkipped, res.Outcome, res.Name)
		require.Equal(t, SkipNoChanges, res.SkipReason, res.Name)
	}
}

func TestCheckEngine(t *testing.T) {
	old := version.Version
	t.Cleanup(func() { version.Version = old })

	version.Version = "1.3.4"
	require.NoError(t, NewRunner(&config.Config{
		Pipeline: config.PipelineConfig{EngineVersion: "1.3"},
	}).checkEngine())
	require.Error(t, NewRunner(&config.Config{
		Pipeline: config.PipelineConfig{EngineVersion: "1.4"},
	}).checkEngine())
	require.NoError(t, NewRunner(&config.Config{
		Pipeline: config.PipelineConfig{EngineVersion: "1.4"},
	}, WithoutEngineCheck()).checkEngine())

	// Unversioned local builds log the mismatch instead of refusing.
	version.Version = "unknown"
	require.NoError(t, NewRunner(&config.Config{
		Pipeline: config.PipelineConfig{EngineVersion: "1.4"},
	}).checkEngine())
}
