// Package publish pushes a rendered site to the hosting repository. The
// publish branch is replaced wholesale on every run: its content becomes
// exactly the rendered output (plus configured keep paths), so chapters
// deleted from the book disappear from the published site.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/deploykey"
	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// DefaultBranch is the publish branch when none is configured.
const DefaultBranch = "main"

const defaultCommitTemplate = "deploy: {short_commit}"

// Request carries one publishable build.
type Request struct {
	SiteDir  string // rendered output to publish
	Pipeline string // pipeline name, for the commit message template
	Ref      string // source ref that produced the build
	Commit   string // source commit that produced the build
	DryRun   bool   // stage and report, commit and push nothing
}

// Result reports what a publish did.
type Result struct {
	Skipped    bool   // nothing to publish, target already matches
	DryRun     bool   // change set computed, nothing pushed
	Branch     string // target branch
	CommitHash string // publish commit, empty when skipped or dry-run
	Added      int
	Modified   int
	Deleted    int
}

// Changed reports whether the staged site differed from the target branch.
func (r *Result) Changed() bool { return r.Added+r.Modified+r.Deleted > 0 }

// Publisher pushes rendered sites to the configured hosting repository.
// The deploy key may be nil for targets that need no authentication
// (local mirrors, test fixtures).
type Publisher struct {
	cfg config.PublishConfig
	key *deploykey.Key
}

func New(cfg config.PublishConfig, key *deploykey.Key) *Publisher {
	return &Publisher{cfg: cfg, key: key}
}

// Publish clones the target branch into a scratch directory, replaces its
// content with the rendered site, and pushes a single commit. A target that
// already matches the build is left untouched.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	if p.cfg.Repository == "" {
		return nil, errors.New("publish: no target repository configured")
	}
	if info, err := os.Stat(req.SiteDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("publish: site directory %s not found", req.SiteDir)
	}

	scratch, err := os.MkdirTemp("", "bookship-publish-")
	if err != nil {
		return nil, fmt.Errorf("publish: create scratch directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	logAttrs := []any{
		logfields.URL(p.cfg.Repository),
		logfields.Branch(p.branch()),
	}
	if p.key != nil {
		logAttrs = append(logAttrs, slog.String("deploy_key", p.key.Fingerprint))
	}
	slog.Info("Publishing site", logAttrs...)

	repo, branchExisted, err := p.cloneTarget(ctx, scratch)
	if err != nil {
		return nil, err
	}

	if err := replaceContent(scratch, req.SiteDir, p.keepPaths()); err != nil {
		return nil, err
	}
	if err := p.writeMarkers(scratch); err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("publish: open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("publish: stage content: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("publish: read status: %w", err)
	}

	res := &Result{Branch: p.branch()}
	countChanges(status, res)

	if status.IsClean() {
		res.Skipped = true
		slog.Info("Publish skipped, target already matches build", logfields.Branch(res.Branch))
		return res, nil
	}

	if req.DryRun {
		res.DryRun = true
		p.reportDryRun(repo, scratch, status, branchExisted)
		return res, nil
	}

	if p.cfg.ForceOrphan && branchExisted {
		if err := p.restartBranch(repo); err != nil {
			return nil, err
		}
	}

	hash, err := wt.Commit(p.commitMessage(req), &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.authorName(),
			Email: p.authorEmail(),
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("publish: commit: %w", err)
	}
	res.CommitHash = hash.String()

	if err := p.push(ctx, repo); err != nil {
		return nil, err
	}

	slog.Info("Site published",
		logfields.Branch(res.Branch),
		logfields.Commit(res.CommitHash),
		slog.Int("added", res.Added),
		slog.Int("modified", res.Modified),
		slog.Int("deleted", res.Deleted))
	return res, nil
}

// restartBranch discards the publish branch history so the next commit is a
// fresh root, force-pushed over whatever the remote holds.
func (p *Publisher) restartBranch(repo *git.Repository) error {
	branchRef := plumbing.NewBranchReferenceName(p.branch())
	if err := repo.Storer.RemoveReference(branchRef); err != nil {
		return fmt.Errorf("publish: reset branch %s: %w", p.branch(), err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return fmt.Errorf("publish: reset HEAD: %w", err)
	}
	return nil
}

func (p *Publisher) push(ctx context.Context, repo *git.Repository) error {
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []ggitcfg.RefSpec{p.pushRefSpec()},
		Auth:       p.authMethod(),
		Force:      p.cfg.ForceOrphan,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("publish: push to %s: %w", p.cfg.Repository, err)
	}
	return nil
}

func (p *Publisher) authMethod() transport.AuthMethod {
	if p.key == nil {
		return nil
	}
	return p.key.AuthMethod()
}

// writeMarkers ensures the hosting markers exist in the staged content. The
// renderer may already have written them from book.toml; publish config
// wins when both are set.
func (p *Publisher) writeMarkers(scratch string) error {
	if !p.cfg.EnableJekyll {
		if err := os.WriteFile(filepath.Join(scratch, ".nojekyll"), nil, 0o644); err != nil { // #nosec G306 -- public site marker
			return fmt.Errorf("publish: write .nojekyll: %w", err)
		}
	}
	if p.cfg.CNAME != "" {
		if err := os.WriteFile(filepath.Join(scratch, "CNAME"), []byte(p.cfg.CNAME+"\n"), 0o644); err != nil { // #nosec G306 -- public site marker
			return fmt.Errorf("publish: write CNAME: %w", err)
		}
	}
	return nil
}

func (p *Publisher) branch() string {
	if p.cfg.Branch != "" {
		return p.cfg.Branch
	}
	return DefaultBranch
}

func (p *Publisher) keepPaths() []string {
	keep := []string{".git"}
	return append(keep, p.cfg.KeepPaths...)
}

func (p *Publisher) commitMessage(req Request) string {
	tpl := p.cfg.CommitTemplate
	if tpl == "" {
		tpl = defaultCommitTemplate
	}
	return strings.NewReplacer(
		"{pipeline}", req.Pipeline,
		"{ref}", req.Ref,
		"{commit}", req.Commit,
		"{short_commit}", shortCommit(req.Commit),
	).Replace(tpl)
}

func (p *Publisher) authorName() string {
	if p.cfg.AuthorName != "" {
		return p.cfg.AuthorName
	}
	return "bookship"
}

func (p *Publisher) authorEmail() string {
	if p.cfg.AuthorEmail != "" {
		return p.cfg.AuthorEmail
	}
	return "bookship@localhost"
}

func shortCommit(commit string) string {
	if commit == "" {
		return "local build"
	}
	if len(commit) <= 8 {
		return commit
	}
	return commit[:8]
}

// countChanges tallies the staged change set.
func countChanges(status git.Status, res *Result) {
	for _, st := range status {
		switch st.Staging {
		case git.Added:
			res.Added++
		case git.Modified:
			res.Modified++
		case git.Deleted:
			res.Deleted++
		}
	}
}
