package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v68/github"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

const statusTimeout = 10 * time.Second

// maxDescription is GitHub's commit status description limit.
const maxDescription = 140

// GitHubStatusNotifier mirrors run state onto the source commit as a
// status check with context "bookship/<pipeline>": pending when the run
// starts, success/failure/error when it finishes.
type GitHubStatusNotifier struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubStatusNotifier builds a notifier from token or GitHub App
// credentials. App credentials win when both are configured.
func NewGitHubStatusNotifier(cfg config.GitHubNotifyConfig) (*GitHubStatusNotifier, error) {
	client, err := newGitHubClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GitHubStatusNotifier{client: client, owner: cfg.Owner, repo: cfg.Repo}, nil
}

func newGitHubClient(cfg config.GitHubNotifyConfig) (*github.Client, error) {
	var client *github.Client
	switch {
	case cfg.App != nil:
		itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport,
			cfg.App.ID, cfg.App.InstallationID, cfg.App.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("notify: load GitHub App key: %w", err)
		}
		client = github.NewClient(&http.Client{Transport: itr})
	case cfg.Token != "":
		client = github.NewClient(nil).WithAuthToken(cfg.Token)
	default:
		return nil, errors.New("notify: github status needs a token or app credentials")
	}
	if cfg.APIURL != "" {
		enterprise, err := client.WithEnterpriseURLs(cfg.APIURL, cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("notify: enterprise URL: %w", err)
		}
		client = enterprise
	}
	return client, nil
}

func (n *GitHubStatusNotifier) RunStarted(ctx context.Context, run *runstore.Run) error {
	return n.post(ctx, run, "pending", "run started")
}

func (n *GitHubStatusNotifier) RunFinished(ctx context.Context, run *runstore.Run) error {
	state, desc := finalState(run)
	return n.post(ctx, run, state, desc)
}

// post sets the commit status. Runs without a resolved commit (manual
// builds of a local directory) have nothing to attach a status to.
func (n *GitHubStatusNotifier) post(ctx context.Context, run *runstore.Run, state, desc string) error {
	if run.Commit == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	status := &github.RepoStatus{
		State:       github.String(state),
		Context:     github.String("bookship/" + run.Pipeline),
		Description: github.String(truncate(desc, maxDescription)),
	}
	if _, _, err := n.client.Repositories.CreateStatus(ctx, n.owner, n.repo, run.Commit, status); err != nil {
		return fmt.Errorf("notify: set commit status: %w", err)
	}
	return nil
}

func finalState(run *runstore.Run) (state, desc string) {
	switch run.Status {
	case runstore.StatusSuccess:
		return "success", fmt.Sprintf("run succeeded in %s", run.Duration.Truncate(time.Millisecond))
	case runstore.StatusSkipped:
		return "success", "skipped: " + run.SkipReason
	case runstore.StatusCanceled:
		return "error", "run canceled"
	default:
		desc = run.Error
		if desc == "" {
			desc = "run failed"
		}
		return "failure", desc
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
