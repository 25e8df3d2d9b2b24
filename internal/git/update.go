package git

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/bookship/internal/logfields"
)

func (c *Client) updateExisting(repoPath string) (string, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	slog.Info("Updating checkout", logfields.Repository(c.source.URL), logfields.Path(repoPath))
	wt, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}

	// 1. Fetch remote refs
	if err := c.fetchOrigin(repository); err != nil {
		return "", classifyFetchError(c.source.URL, err)
	}

	// 2. Resolve target branch
	branch := c.resolveTargetBranch(repository)

	// 3. Checkout/create local branch & obtain refs
	localRef, remoteRef, err := checkoutAndGetRefs(repository, wt, branch)
	if err != nil {
		return "", err
	}

	// 4. Fast-forward or handle divergence
	if err := c.syncWithRemote(repository, wt, branch, localRef, remoteRef); err != nil {
		// Divergence without hard reset is permanent: retrying cannot heal it
		if strings.Contains(strings.ToLower(err.Error()), "diverged") {
			return "", &RemoteDivergedError{Op: "sync", URL: c.source.URL, Branch: branch, Err: err}
		}
		return "", err
	}

	// 5. Logging
	logUpdated(repository, c.source.URL, branch)
	return repoPath, nil
}

// fetchOrigin performs a fetch of the origin remote with appropriate depth,
// refspec, and authentication.
func (c *Client) fetchOrigin(repository *git.Repository) error {
	fetchOpts := &git.FetchOptions{RemoteName: "origin", Tags: git.NoTags, RefSpecs: []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"}}
	if c.source.ShallowDepth > 0 {
		fetchOpts.Depth = c.source.ShallowDepth
	}
	authMethod, err := c.authMethod()
	if err != nil {
		return err
	}
	fetchOpts.Auth = authMethod
	if err := repository.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// resolveTargetBranch determines the branch to sync, following precedence:
// 1. Explicit branch in config, 2. Current HEAD branch, 3. Remote default
// branch, 4. "master" fallback. Config defaulting sets an explicit branch in
// normal operation, so the later rules only matter for bare clients.
func (c *Client) resolveTargetBranch(repository *git.Repository) string {
	if c.source.Branch != "" {
		return c.source.Branch
	}
	if headRef, err := repository.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short()
	}
	if def, err := resolveRemoteDefaultBranch(repository); err == nil && def != "" {
		return def
	}
	return "master"
}

// checkoutAndGetRefs ensures the local branch exists and is checked out,
// returning both local and remote references.
func checkoutAndGetRefs(repository *git.Repository, wt *git.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localBranchRef := plumbing.NewBranchReferenceName(branch)
	remoteBranchRef := plumbing.NewRemoteReferenceName("origin", branch)
	remoteRef, err = repository.Reference(remoteBranchRef, true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref: %w", err)
	}
	localRef, lerr := repository.Reference(localBranchRef, true)
	if lerr != nil { // create local branch
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
		localRef, _ = repository.Reference(localBranchRef, true)
	} else {
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
		}
	}
	return localRef, remoteRef, nil
}

// syncWithRemote fast-forwards or hard-resets the local branch depending on
// divergence and source config.
func (c *Client) syncWithRemote(repository *git.Repository, wt *git.Worktree, branch string, localRef, remoteRef *plumbing.Reference) error {
	fastForwardPossible, ffErr := isAncestor(repository, localRef.Hash(), remoteRef.Hash())
	if ffErr != nil {
		slog.Warn("ancestor check failed", logfields.Error(ffErr))
	}
	if fastForwardPossible {
		currentHead, _ := repository.Head()
		if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
			return fmt.Errorf("fast-forward reset: %w", err)
		}
		if currentHead != nil && currentHead.Hash() == remoteRef.Hash() {
			slog.Info("Checkout already up-to-date", logfields.Repository(c.source.URL), logfields.Branch(branch), logfields.Commit(remoteRef.Hash().String()[:8]))
		} else {
			slog.Info("Fast-forwarded checkout", logfields.Repository(c.source.URL), logfields.Branch(branch), slog.String("from", currentHead.Hash().String()[:8]), slog.String("to", remoteRef.Hash().String()[:8]))
		}
		return nil
	}
	if c.source.HardResetOnDiverge {
		slog.Warn("diverged branch, hard resetting", logfields.Repository(c.source.URL), logfields.Branch(branch))
		if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
			return fmt.Errorf("hard reset: %w", err)
		}
		return nil
	}
	return fmt.Errorf("local branch diverged from remote (enable hard_reset_on_diverge to override)")
}

// logUpdated logs a checkout update summary, including the short commit hash
// if available.
func logUpdated(repository *git.Repository, url, branch string) {
	if headRef, err := repository.Head(); err == nil {
		slog.Info("Checkout updated", logfields.Repository(url), logfields.Branch(branch), logfields.Commit(headRef.Hash().String()[:8]))
	} else {
		slog.Info("Checkout updated", logfields.Repository(url), logfields.Branch(branch))
	}
}

func resolveRemoteDefaultBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true)
	if err != nil {
		return "", err
	}
	target := ref.Target()
	if target == "" {
		return "", fmt.Errorf("origin/HEAD target empty")
	}
	return plumbing.ReferenceName(target).Short(), nil
}

func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}
