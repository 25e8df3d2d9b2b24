package git

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/bookship/internal/auth"
	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// Client checks out and synchronizes the book source repository inside a
// workspace directory.
type Client struct {
	workspaceDir string
	source       config.SourceConfig
	inRetry      bool // internal guard to avoid nested retry wrapping
}

// NewClient creates a new Git client rooted at the given workspace directory.
func NewClient(workspaceDir string) *Client { return &Client{workspaceDir: workspaceDir} }

// WithSource attaches the source configuration to the client (fluent helper).
func (c *Client) WithSource(src config.SourceConfig) *Client { c.source = src; return c }

// CheckoutDir returns the directory the source repository is checked out to.
func (c *Client) CheckoutDir() string {
	return filepath.Join(c.workspaceDir, repoDirName(c.source.URL))
}

// Clone performs a fresh checkout, replacing any existing one (with retry
// wrapper if enabled).
func (c *Client) Clone() (string, error) {
	if c.inRetry {
		return c.cloneOnce()
	}
	return c.withRetry("clone", c.cloneOnce)
}

func (c *Client) cloneOnce() (string, error) {
	repoPath := c.CheckoutDir()
	slog.Debug("Cloning source repository", logfields.Repository(c.source.URL), logfields.Branch(c.source.Branch), logfields.Path(repoPath))
	if err := os.RemoveAll(repoPath); err != nil {
		return "", fmt.Errorf("failed to remove existing checkout: %w", err)
	}

	cloneOptions := &git.CloneOptions{URL: c.source.URL}
	if c.source.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(c.source.Branch)
		cloneOptions.SingleBranch = true
	}
	if c.source.ShallowDepth > 0 {
		cloneOptions.Depth = c.source.ShallowDepth
	}
	authMethod, err := c.authMethod()
	if err != nil {
		return "", fmt.Errorf("failed to setup authentication: %w", err)
	}
	cloneOptions.Auth = authMethod

	repository, err := git.PlainClone(repoPath, false, cloneOptions)
	if err != nil {
		return "", classifyCloneError(c.source.URL, err)
	}
	if ref, herr := repository.Head(); herr == nil {
		slog.Info("Source repository checked out", logfields.Repository(c.source.URL), logfields.Commit(ref.Hash().String()[:8]), logfields.Path(repoPath))
	} else {
		slog.Info("Source repository checked out", logfields.Repository(c.source.URL), logfields.Path(repoPath))
	}
	return repoPath, nil
}

// Sync updates an existing checkout or clones when missing.
func (c *Client) Sync() (string, error) {
	if c.inRetry {
		return c.syncOnce()
	}
	return c.withRetry("sync", c.syncOnce)
}

func (c *Client) syncOnce() (string, error) {
	repoPath := c.CheckoutDir()
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil { // missing => clone
		slog.Debug("Checkout missing, cloning", logfields.Repository(c.source.URL))
		return c.cloneOnce()
	}
	return c.updateExisting(repoPath)
}

// authMethod returns the go-git AuthMethod for the configured source auth.
func (c *Client) authMethod() (transport.AuthMethod, error) {
	if c.source.Auth.IsZero() {
		return nil, nil
	}
	return auth.CreateAuth(c.source.Auth)
}

// repoDirName derives a stable checkout directory name from the repository
// URL so logs and workspaces stay readable. Falls back to "source" when the
// URL yields nothing usable.
func repoDirName(url string) string {
	s := strings.TrimSuffix(strings.TrimSpace(url), ".git")
	s = strings.TrimSuffix(s, "/")
	base := path.Base(filepath.ToSlash(s))
	// scp-like syntax (git@host:repo) keeps the host prefix when no slash follows
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[i+1:]
	}
	if base == "" || base == "." || base == "/" {
		return "source"
	}
	return base
}
