package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// cloneTarget brings the publish branch into scratch. When the remote is
// empty or the branch does not exist yet, an unborn local branch is prepared
// instead; its first commit has no parent and the push creates the branch.
func (p *Publisher) cloneTarget(ctx context.Context, scratch string) (*git.Repository, bool, error) {
	repo, err := git.PlainCloneContext(ctx, scratch, false, &git.CloneOptions{
		URL:           p.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(p.branch()),
		SingleBranch:  true,
		Auth:          p.authMethod(),
	})
	switch {
	case err == nil:
		return repo, true, nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository) || isMissingBranch(err):
		repo, err := p.initScratch(scratch)
		return repo, false, err
	default:
		return nil, false, fmt.Errorf("publish: clone %s: %w", p.cfg.Repository, err)
	}
}

// initScratch sets up a fresh repository whose HEAD points at the unborn
// publish branch. A failed clone attempt may have left files behind, so the
// scratch dir is reset first.
func (p *Publisher) initScratch(scratch string) (*git.Repository, error) {
	if err := resetDir(scratch); err != nil {
		return nil, err
	}

	repo, err := git.PlainInit(scratch, false)
	if err != nil {
		return nil, fmt.Errorf("publish: init scratch repository: %w", err)
	}
	if _, err := repo.CreateRemote(&ggitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{p.cfg.Repository},
	}); err != nil {
		return nil, fmt.Errorf("publish: configure origin: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(p.branch())
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return nil, fmt.Errorf("publish: point HEAD at %s: %w", p.branch(), err)
	}
	return repo, nil
}

func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("publish: read scratch directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("publish: reset scratch directory: %w", err)
		}
	}
	return nil
}

// isMissingBranch matches the clone failure for a remote that exists but
// does not hold the publish branch yet.
func isMissingBranch(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	if errors.As(err, &noMatch) {
		return true
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "couldn't find remote ref")
}

func (p *Publisher) pushRefSpec() ggitcfg.RefSpec {
	spec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", p.branch(), p.branch())
	if p.cfg.ForceOrphan {
		spec = "+" + spec
	}
	return ggitcfg.RefSpec(spec)
}
