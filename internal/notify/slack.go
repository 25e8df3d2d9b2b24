package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

const slackTimeout = 10 * time.Second

// SlackNotifier posts run outcomes to a Slack incoming webhook. Failures
// are always announced; successes and skips only with on_success.
type SlackNotifier struct {
	cfg config.SlackNotifyConfig
}

func NewSlackNotifier(cfg config.SlackNotifyConfig) *SlackNotifier {
	return &SlackNotifier{cfg: cfg}
}

// RunStarted is a no-op. Slack only hears about finished runs.
func (n *SlackNotifier) RunStarted(context.Context, *runstore.Run) error { return nil }

func (n *SlackNotifier) RunFinished(ctx context.Context, run *runstore.Run) error {
	if !n.shouldAnnounce(run) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, slackTimeout)
	defer cancel()
	return slack.PostWebhookContext(ctx, n.cfg.WebhookURL, n.message(run))
}

func (n *SlackNotifier) shouldAnnounce(run *runstore.Run) bool {
	return run.Status == runstore.StatusFailed || n.cfg.OnSuccess
}

func (n *SlackNotifier) message(run *runstore.Run) *slack.WebhookMessage {
	fields := []slack.AttachmentField{
		{Title: "Pipeline", Value: run.Pipeline, Short: true},
		{Title: "Ref", Value: run.Ref, Short: true},
	}
	if run.Commit != "" {
		fields = append(fields, slack.AttachmentField{Title: "Commit", Value: shortSHA(run.Commit), Short: true})
	}
	if run.Duration > 0 {
		fields = append(fields, slack.AttachmentField{Title: "Duration", Value: run.Duration.Truncate(time.Millisecond).String(), Short: true})
	}
	if run.SkipReason != "" {
		fields = append(fields, slack.AttachmentField{Title: "Skipped", Value: run.SkipReason, Short: true})
	}
	if run.Error != "" {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: run.Error})
	}

	return &slack.WebhookMessage{
		Attachments: []slack.Attachment{{
			Color:  statusColor(run.Status),
			Title:  fmt.Sprintf("bookship: %s run %s", run.Pipeline, statusVerb(run.Status)),
			Fields: fields,
			Footer: run.ID,
		}},
	}
}

func statusColor(status string) string {
	switch status {
	case runstore.StatusSuccess:
		return "good"
	case runstore.StatusFailed:
		return "danger"
	default:
		return "warning"
	}
}

func statusVerb(status string) string {
	switch status {
	case runstore.StatusSuccess:
		return "succeeded"
	case runstore.StatusFailed:
		return "failed"
	case runstore.StatusSkipped:
		return "skipped"
	case runstore.StatusCanceled:
		return "canceled"
	default:
		return status
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
