package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/deploykey"
	"git.home.luguber.info/inful/bookship/internal/git"
	"git.home.luguber.info/inful/bookship/internal/linkcheck"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/publish"
	"git.home.luguber.info/inful/bookship/internal/render"
)

// stageCheckout syncs the source repository and loads the book. Pipelines
// without a source URL build the local working tree directly.
func (r *Runner) stageCheckout(ctx context.Context, st *State) error {
	src := st.Config.Source
	if src.URL == "" {
		dir, err := book.LocateBookDir(".", src.Dir)
		if err != nil {
			return err
		}
		st.BookDir = dir
		slog.Debug("No source repository configured, building local working tree", logfields.Dir(dir))
	} else {
		client := git.NewClient(r.checkoutRoot()).WithSource(src)
		repoPath, err := client.Sync()
		if err != nil {
			return err
		}
		st.RepoPath = repoPath

		head, err := git.ReadRepoHead(repoPath)
		if err != nil {
			return fmt.Errorf("read checkout head: %w", err)
		}
		if st.Run.Commit != "" && st.Run.Commit != head {
			// The trigger's pushed head is advisory; coalesced and replayed
			// triggers build whatever the checkout actually resolved.
			slog.Debug("Checkout head differs from trigger commit",
				logfields.Commit(head), slog.String("trigger_commit", st.Run.Commit))
		}
		st.Run.Commit = head

		dir, err := book.LocateBookDir(repoPath, src.Dir)
		if err != nil {
			return err
		}
		st.BookDir = dir
	}

	b, err := book.Load(st.BookDir)
	if err != nil {
		return err
	}
	st.Book = b
	st.Run.Fingerprint = b.Fingerprint
	slog.Info("Book loaded",
		slog.String("title", b.Title()),
		logfields.Count(len(b.Chapters())),
		logfields.Dir(st.BookDir))
	return nil
}

// stageBuild renders the site. When the checkout commit and book
// fingerprint both match the previous successful run for this pipeline and
// ref, the rest of the run is settled as skipped instead.
func (r *Runner) stageBuild(ctx context.Context, st *State) error {
	if r.unchangedSinceLastSuccess(ctx, st) {
		st.SkipRemaining(SkipNoChanges)
		return nil
	}

	if st.Config.Output.Clean {
		if err := CleanSiteDir(st.SiteDir); err != nil {
			return err
		}
	}

	res, err := render.New().Render(st.Book, st.SiteDir)
	if err != nil {
		return err
	}
	slog.Info("Site rendered",
		logfields.Dir(res.OutDir), slog.Int("pages", res.Pages), slog.Int("assets", res.Assets))
	return nil
}

// unchangedSinceLastSuccess reports whether this run would rebuild exactly
// what the previous successful run already published. Forced and dry runs
// never take the shortcut; dry runs exist to show the change set.
func (r *Runner) unchangedSinceLastSuccess(ctx context.Context, st *State) bool {
	if st.Trigger.Force || st.Trigger.DryRun {
		return false
	}
	if st.Run.Commit == "" || st.Run.Fingerprint == "" {
		return false
	}
	last, err := r.store.LastSuccess(ctx, st.Run.Pipeline, st.Run.Ref)
	if err != nil {
		slog.Warn("Failed to look up previous successful run", logfields.Error(err))
		return false
	}
	if last == nil || last.Commit != st.Run.Commit || last.Fingerprint != st.Run.Fingerprint {
		return false
	}
	slog.Info("No changes since previous successful run",
		logfields.Commit(st.Run.Commit), logfields.RunID(last.ID))
	return true
}

// CleanSiteDir empties the output directory before a render so pages from
// removed chapters do not linger.
func CleanSiteDir(dir string) error {
	if dir == "" || dir == "/" || dir == "." {
		return fmt.Errorf("refusing to clean output directory %q", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean output directory: %w", err)
	}
	return nil
}

// stageLinkcheck verifies intra-site references in the rendered output.
// Broken links are warnings unless pipeline.linkcheck.fatal promotes them.
func (r *Runner) stageLinkcheck(ctx context.Context, st *State) error {
	report, err := linkcheck.Check(st.SiteDir)
	if err != nil {
		return err
	}
	if report.Ok() {
		return nil
	}
	issueErr := fmt.Errorf("%d broken links across %d pages", len(report.Issues), report.Pages)
	if st.Config.Pipeline.LinkCheck.Fatal {
		return issueErr
	}
	return newWarnStageError(StageLinkcheck, issueErr)
}

// stagePublish pushes the rendered site to the hosting repository. The run
// ref must match the configured pipeline ref; every other ref builds
// without publishing.
func (r *Runner) stagePublish(ctx context.Context, st *State) error {
	if st.Trigger.Ref != st.Config.Pipeline.Ref {
		slog.Info("Publish skipped, run ref does not match pipeline ref",
			logfields.Ref(st.Trigger.Ref), slog.String("pipeline_ref", st.Config.Pipeline.Ref))
		st.SkipStage(SkipRefMismatch)
		return nil
	}

	key, err := r.loadDeployKey()
	if err != nil {
		return err
	}

	res, err := publish.New(st.Config.Publish, key).Publish(ctx, publish.Request{
		SiteDir:  st.SiteDir,
		Pipeline: st.Run.Pipeline,
		Ref:      st.Run.Ref,
		Commit:   st.Run.Commit,
		DryRun:   st.Trigger.DryRun,
	})
	if err != nil {
		return err
	}
	st.Publish = res

	switch {
	case res.DryRun:
		r.rec.IncPublish(metrics.PublishDryRun)
		st.SkipStage(SkipDryRun)
	case res.Skipped:
		r.rec.IncPublish(metrics.PublishSkipped)
		slog.Info("Publish skipped, target already matches", logfields.Branch(res.Branch))
	default:
		r.rec.IncPublish(metrics.PublishPushed)
		st.Run.PublishedCommit = res.CommitHash
	}
	return nil
}

// loadDeployKey resolves the publish credential when one is configured.
// Targets without a key (local mirrors, tests) publish unauthenticated.
func (r *Runner) loadDeployKey() (*deploykey.Key, error) {
	pub := r.cfg.Publish
	if pub.DeployKeyEnv == "" && pub.DeployKeyPath == "" {
		return nil, nil
	}
	key, err := deploykey.Load(pub)
	if err != nil {
		return nil, err
	}
	slog.Info("Deploy key loaded",
		slog.String("fingerprint", key.Fingerprint), slog.String("source", key.Source))
	return key, nil
}
