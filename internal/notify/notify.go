// Package notify fans out run lifecycle events to optional sinks: Slack
// webhooks, GitHub commit statuses and a NATS JetStream subject. Every
// sink is best-effort. Delivery failures are logged and never fail the
// run that triggered them.
package notify

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

// Notifier receives run lifecycle events.
type Notifier interface {
	RunStarted(ctx context.Context, run *runstore.Run) error
	RunFinished(ctx context.Context, run *runstore.Run) error
}

// Multi fans out to a set of notifiers. Individual failures are logged
// and do not stop delivery to the remaining sinks.
type Multi []Notifier

func (m Multi) RunStarted(ctx context.Context, run *runstore.Run) error {
	for _, n := range m {
		if err := n.RunStarted(ctx, run); err != nil {
			slog.Warn("Notifier failed on run start", logfields.RunID(run.ID), logfields.Error(err))
		}
	}
	return nil
}

func (m Multi) RunFinished(ctx context.Context, run *runstore.Run) error {
	for _, n := range m {
		if err := n.RunFinished(ctx, run); err != nil {
			slog.Warn("Notifier failed on run finish", logfields.RunID(run.ID), logfields.Error(err))
		}
	}
	return nil
}

// Close shuts down sinks holding connections.
func (m Multi) Close() {
	for _, n := range m {
		if c, ok := n.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// FromConfig assembles the configured notifiers. An empty config yields
// an empty Multi, which is safe to use.
func FromConfig(cfg config.NotifyConfig) (Multi, error) {
	var sinks Multi
	if cfg.Slack != nil && cfg.Slack.WebhookURL != "" {
		sinks = append(sinks, NewSlackNotifier(*cfg.Slack))
	}
	if cfg.GitHub != nil && cfg.GitHub.Owner != "" {
		gh, err := NewGitHubStatusNotifier(*cfg.GitHub)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, gh)
	}
	if cfg.NATS != nil && cfg.NATS.URL != "" {
		nn, err := NewNATSNotifier(*cfg.NATS)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, nn)
	}
	return sinks, nil
}
