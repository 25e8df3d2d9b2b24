// Package commands defines the bookship command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

const defaultConfigName = "bookship.yaml"

// Global is passed to subcommands for state shared beyond the root flags.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command grammar with the global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"bookship.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Build   BuildCmd   `cmd:"" help:"Build the book from a local source directory"`
	Run     RunCmd     `cmd:"" help:"Execute the full pipeline once: checkout, build, publish"`
	Publish PublishCmd `cmd:"" help:"Publish an already built site directory"`
	Serve   ServeCmd   `cmd:"" help:"Preview the book locally with live reload"`
	Daemon  DaemonCmd  `cmd:"" help:"Run the webhook-triggered build service"`
	Status  StatusCmd  `cmd:"" help:"Show recent pipeline runs"`
}

// AfterApply runs after flag parsing; set up logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the configuration file and applies its logging settings.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyLogging(cfg, root.Verbose)
	return cfg, nil
}

// loadConfigOrDefault is loadConfig, except a missing default config file
// falls back to built-in defaults so the preview works in a bare book
// checkout. An explicitly passed -c path must still exist.
func loadConfigOrDefault(root *CLI) (*config.Config, error) {
	if root.Config == defaultConfigName {
		if _, err := os.Stat(root.Config); os.IsNotExist(err) {
			slog.Debug("No configuration file found, using defaults", logfields.Path(root.Config))
			return config.Default(), nil
		}
	}
	return loadConfig(root)
}

// applyLogging swaps the default logger for one matching the logging
// section. The -v flag wins over the configured level.
func applyLogging(cfg *config.Config, verbose bool) {
	var level slog.Level
	switch cfg.Logging.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openRunStore opens the sqlite run store under the daemon data dir, or
// returns nil when no data dir is configured.
func openRunStore(cfg *config.Config) (runstore.Store, error) {
	if cfg.Daemon == nil || cfg.Daemon.DataDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Daemon.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return runstore.NewSQLiteStore(filepath.Join(cfg.Daemon.DataDir, "runs.db"))
}
