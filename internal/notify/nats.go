package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

const (
	defaultSubject = "bookship.runs"
	defaultStream  = "BOOKSHIP"
	natsTimeout    = 5 * time.Second
)

// NATSNotifier publishes run lifecycle events as JSON to a JetStream
// subject for downstream consumers (dashboards, chat bridges).
type NATSNotifier struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSNotifier connects and makes sure the target stream exists.
func NewNATSNotifier(cfg config.NATSNotifyConfig) (*NATSNotifier, error) {
	var opts []nats.Option
	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: create JetStream context: %w", err)
	}

	n := &NATSNotifier{conn: conn, js: js, subject: cfg.Subject}
	if n.subject == "" {
		n.subject = defaultSubject
	}
	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}
	if err := n.ensureStream(stream); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("NATS notifier initialized", logfields.URL(cfg.URL), slog.String("subject", n.subject))
	return n, nil
}

// ensureStream creates the stream when it does not exist yet.
func (n *NATSNotifier) ensureStream(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := n.js.Stream(ctx, name); err == nil {
		return nil
	}
	_, err := n.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "bookship run lifecycle events",
		Subjects:    []string{n.subject},
		MaxAge:      30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("notify: create stream %s: %w", name, err)
	}
	return nil
}

type runEvent struct {
	Type string        `json:"type"`
	At   time.Time     `json:"at"`
	Run  *runstore.Run `json:"run"`
}

func (n *NATSNotifier) RunStarted(ctx context.Context, run *runstore.Run) error {
	return n.publish(ctx, "run_started", run)
}

func (n *NATSNotifier) RunFinished(ctx context.Context, run *runstore.Run) error {
	return n.publish(ctx, "run_finished", run)
}

func (n *NATSNotifier) publish(ctx context.Context, eventType string, run *runstore.Run) error {
	ctx, cancel := context.WithTimeout(ctx, natsTimeout)
	defer cancel()

	data, err := json.Marshal(runEvent{Type: eventType, At: time.Now(), Run: run})
	if err != nil {
		return fmt.Errorf("notify: marshal run event: %w", err)
	}
	if _, err := n.js.Publish(ctx, n.subject, data); err != nil {
		return fmt.Errorf("notify: publish run event: %w", err)
	}
	slog.Debug("Published run event", logfields.RunID(run.ID), slog.String("type", eventType))
	return nil
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
