// Package integration runs the pipeline end to end through its public
// surface: a configuration file on disk, a git-hosted book source, and a
// bare hosting repository standing in for the pages remote.
package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

const configTemplate = `version: "1.0"
pipeline:
  name: handbook
  linkcheck:
    enabled: true
source:
  url: SOURCE_URL
  branch: master
  dir: book
output:
  directory: OUTPUT_DIR
  clean: true
publish:
  repository: TARGET_URL
  branch: gh-pages
daemon:
  data_dir: DATA_DIR
`

func sourceBook() map[string]string {
	return map[string]string{
		"book/book.toml":      "[book]\ntitle = \"Field Manual\"\n",
		"book/src/SUMMARY.md": "# Summary\n\n[Intro](README.md)\n\n- [Guide](guide.md)\n",
		"book/src/README.md":  "# Welcome\n\nSee the [guide](guide.md).\n",
		"book/src/guide.md":   "# Guide\n\nDo things.\n",
	}
}

// setupPipeline seeds a source repository and hosting target, writes the
// configuration, and builds a runner backed by a sqlite store.
func setupPipeline(t *testing.T) (*pipeline.Runner, runstore.Store, string, string) {
	t.Helper()
	srcDir, _ := seedSourceRepo(t, sourceBook())
	target := bareTarget(t)

	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o750))

	cfgPath := writeConfigFile(t, base, configTemplate, map[string]string{
		"SOURCE_URL": srcDir,
		"TARGET_URL": target,
		"OUTPUT_DIR": filepath.Join(base, "site"),
		"DATA_DIR":   dataDir,
	})
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	store, err := runstore.NewSQLiteStore(filepath.Join(dataDir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runner := pipeline.NewRunner(cfg, pipeline.WithStore(store), pipeline.WithWorkDir(dataDir))
	return runner, store, srcDir, target
}

func TestPipelinePublishesBookFromGitSource(t *testing.T) {
	runner, store, _, target := setupPipeline(t)

	st, err := runner.Execute(t.Context(), pipeline.Trigger{
		Kind: pipeline.TriggerWebhook,
		Ref:  "refs/heads/master",
	})
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, st.Run.Status)
	require.NotEmpty(t, st.Run.Commit, "checkout records the resolved head")
	require.NotEmpty(t, st.Run.Fingerprint)
	require.NotEmpty(t, st.Run.PublishedCommit)

	var names []string
	for _, res := range st.Stages {
		names = append(names, res.Name)
		require.Equal(t, metrics.ResultSuccess, res.Outcome, res.Name)
	}
	require.Equal(t, []string{
		pipeline.StageCheckout, pipeline.StageBuild, pipeline.StageLinkcheck, pipeline.StagePublish,
	}, names)

	published := clonePublished(t, target, "gh-pages")
	require.Equal(t, []string{
		".nojekyll", "404.html", "book.css", "guide.html", "index.html", "searchindex.json",
	}, manifest(t, published))
	require.Contains(t, readPublished(t, published, "index.html"), "Field Manual")
	require.Contains(t, readPublished(t, published, "guide.html"), "Do things.")

	run, events, err := store.GetRun(t.Context(), st.Run.ID)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, run.Status)
	require.GreaterOrEqual(t, len(events), 8, "a started and finished event per stage")
}

func TestPipelineSkipsUnchangedThenRebuildsOnCommit(t *testing.T) {
	runner, store, srcDir, target := setupPipeline(t)
	trig := pipeline.Trigger{Kind: pipeline.TriggerWebhook, Ref: "refs/heads/master"}

	first, err := runner.Execute(t.Context(), trig)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, first.Run.Status)

	// Same source, same fingerprint: the second delivery settles as skipped
	// after the checkout confirms nothing moved.
	second, err := runner.Execute(t.Context(), trig)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSkipped, second.Run.Status)
	require.Equal(t, pipeline.SkipNoChanges, second.Run.SkipReason)
	require.Equal(t, first.Run.Commit, second.Run.Commit)
	for _, res := range second.Stages[1:] {
		require.Equal(t, metrics.ResultSkipped, res.Outcome, res.Name)
		require.Equal(t, pipeline.SkipNoChanges, res.SkipReason, res.Name)
	}

	commitChange(t, srcDir, "book/src/guide.md", "# Guide\n\nRevised instructions.\n")

	third, err := runner.Execute(t.Context(), trig)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, third.Run.Status)
	require.NotEqual(t, first.Run.Commit, third.Run.Commit)
	require.NotNil(t, third.Publish)
	require.GreaterOrEqual(t, third.Publish.Modified, 1)

	published := clonePublished(t, target, "gh-pages")
	require.Contains(t, readPublished(t, published, "guide.html"), "Revised instructions.")

	runs, err := store.RecentRuns(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, third.Run.ID, runs[0].ID)
	require.Equal(t, []string{
		runstore.StatusSuccess, runstore.StatusSkipped, runstore.StatusSuccess,
	}, []string{runs[0].Status, runs[1].Status, runs[2].Status})
}

func TestPipelineForceRebuildsUnchangedSource(t *testing.T) {
	runner, _, _, _ := setupPipeline(t)
	trig := pipeline.Trigger{Kind: pipeline.TriggerSchedule, Ref: "refs/heads/master"}

	first, err := runner.Execute(t.Context(), trig)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, first.Run.Status)

	trig.Force = true
	forced, err := runner.Execute(t.Context(), trig)
	require.NoError(t, err)
	require.Equal(t, runstore.StatusSuccess, forced.Run.Status)
	require.NotNil(t, forced.Publish)
	require.True(t, forced.Publish.Skipped, "an identical site publishes nothing")
}
