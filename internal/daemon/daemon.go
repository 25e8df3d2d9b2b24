// Package daemon is the long-running trigger service: it accepts forge
// webhooks, debounces push bursts, schedules drift-repair runs and serves
// the admin endpoints over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/metrics"
	"git.home.luguber.info/inful/bookship/internal/notify"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
	"git.home.luguber.info/inful/bookship/internal/runstore"
)

const (
	shutdownTimeout   = 30 * time.Second
	forceCancelWindow = 5 * time.Second
)

// Daemon wires the webhook intake, the run scheduler and the admin API
// around one pipeline runner.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string
	runner     *pipeline.Runner
	notifier   notify.Multi

	store       runstore.Store
	rec         metrics.Recorder
	metricsHTTP http.Handler
	groups      *pipeline.Groups
	debounce    *debouncer
	triggers    chan pipeline.Trigger
	sem         chan struct{}

	webhookSrv *http.Server
	adminSrv   *http.Server
	watcher    *ConfigWatcher
	sched      gocron.Scheduler

	// runCtx outlives the signal context so active runs can drain after
	// shutdown starts; runCancel is the force stop once the drain window
	// is spent.
	runCtx    context.Context
	runCancel context.CancelFunc
	startTime time.Time
}

// New builds a daemon from a loaded configuration. configPath enables the
// config watcher; pass "" to disable live reload.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon section missing in configuration")
	}
	quiet, err := time.ParseDuration(cfg.Daemon.QuietWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet_window: %w", err)
	}
	maxDelay, err := time.ParseDuration(cfg.Daemon.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid max_delay: %w", err)
	}

	if err := os.MkdirAll(cfg.Daemon.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := runstore.NewSQLiteStore(filepath.Join(cfg.Daemon.DataDir, "runs.db"))
	if err != nil {
		return nil, err
	}
	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(registry)

	d := &Daemon{
		cfg:         cfg,
		configPath:  configPath,
		notifier:    notifier,
		store:       store,
		rec:         rec,
		metricsHTTP: metrics.HTTPHandler(registry),
		triggers:    make(chan pipeline.Trigger, cfg.Daemon.QueueSize),
		sem:         make(chan struct{}, cfg.Daemon.Workers),
		startTime:   time.Now(),
	}
	d.runCtx, d.runCancel = context.WithCancel(context.Background())
	d.runner = pipeline.NewRunner(cfg,
		pipeline.WithStore(store),
		pipeline.WithRecorder(rec),
		pipeline.WithNotifier(notifier),
		pipeline.WithWorkDir(cfg.Daemon.DataDir))
	d.groups = pipeline.NewGroups(d.runGroup, rec)
	d.debounce = newDebouncer(quiet, maxDelay, d.submitRun)
	return d, nil
}

// Run starts the servers, the scheduler and the config watcher, then
// blocks until ctx is canceled and shuts everything down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.currentConfig()

	if err := d.startServers(); err != nil {
		d.runCancel()
		d.notifier.Close()
		_ = d.store.Close()
		return err
	}
	go d.dispatch()

	if err := d.startScheduler(cfg.Daemon.Schedule); err != nil {
		slog.Error("Scheduler failed to start", logfields.Error(err))
		_ = d.shutdown()
		return err
	}

	if d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			slog.Warn("Config watcher unavailable, live reload disabled", logfields.Error(err))
		} else {
			d.watcher = w
			w.Start(d.runCtx)
		}
	}

	slog.Info("Daemon started",
		logfields.Pipeline(cfg.Pipeline.Name),
		logfields.Ref(cfg.Pipeline.Ref),
		slog.Int("webhook_port", cfg.Daemon.HTTP.WebhookPort),
		slog.Int("admin_port", cfg.Daemon.HTTP.AdminPort))

	<-ctx.Done()
	slog.Info("Shutdown signal received, draining", slog.Duration("timeout", shutdownTimeout))
	return d.shutdown()
}

// dispatch feeds queued webhook triggers into the per-group debouncer.
func (d *Daemon) dispatch() {
	for {
		select {
		case <-d.runCtx.Done():
			return
		case trig := <-d.triggers:
			key := pipeline.GroupKey(d.currentConfig().Pipeline.Name, trig.Ref)
			d.debounce.Trigger(key, trig)
		}
	}
}

// runGroup executes one run. Groups serialize runs within a group; the
// semaphore caps how many groups run at once.
func (d *Daemon) runGroup(ctx context.Context, trig pipeline.Trigger) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.sem }()

	// Outcomes are settled, recorded and logged by the runner.
	_, _ = d.currentRunner().Execute(ctx, trig)
}

// submitRun hands a debounced trigger to its concurrency group.
func (d *Daemon) submitRun(key string, trig pipeline.Trigger) {
	if !d.groups.Submit(d.runCtx, key, trig) {
		slog.Warn("Trigger dropped, daemon is shutting down", logfields.Group(key))
	}
}

// runScheduled fires a periodic drift-repair run. Forced runs rebuild even
// when the source is unchanged; the publisher still detects true no-ops.
func (d *Daemon) runScheduled() {
	cfg := d.currentConfig()
	trig := pipeline.Trigger{Kind: pipeline.TriggerSchedule, Ref: cfg.Pipeline.Ref, Force: true}
	slog.Info("Scheduled run triggered", logfields.Pipeline(cfg.Pipeline.Name), logfields.Ref(trig.Ref))
	d.submitRun(pipeline.GroupKey(cfg.Pipeline.Name, trig.Ref), trig)
}

func (d *Daemon) startScheduler(schedule string) error {
	if schedule == "" {
		return nil
	}
	interval, err := time.ParseDuration(schedule)
	if err != nil {
		return fmt.Errorf("invalid daemon schedule: %w", err)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	job, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(d.runScheduled),
		gocron.WithName("drift-repair"),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule periodic run: %w", err)
	}
	d.sched = s
	s.Start()
	slog.Info("Scheduler started",
		slog.String("interval", schedule),
		logfields.ScheduleName(job.Name()),
		logfields.ScheduleID(job.ID().String()))
	return nil
}

func (d *Daemon) shutdown() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	// Stop intake first so nothing new enters while draining.
	if d.webhookSrv != nil {
		if err := d.webhookSrv.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.sched != nil {
		if err := d.sched.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	d.debounce.Close()

	if err := d.groups.Close(stopCtx); err != nil {
		slog.Warn("Drain timeout exceeded, canceling active runs", logfields.Error(err))
		d.runCancel()
		forceCtx, cancelForce := context.WithTimeout(context.Background(), forceCancelWindow)
		defer cancelForce()
		if err := d.groups.Close(forceCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain active runs: %w", err))
		}
	}
	d.runCancel()

	// The admin server stays up through the drain so health checks keep
	// answering.
	if d.adminSrv != nil {
		if err := d.adminSrv.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	d.notifier.Close()
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close run store: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("Daemon stopped")
	return nil
}

// Reload applies a changed configuration to everything that can change
// without a restart. Listener ports, the pipeline name, the data
// directory and the schedule keep their running values.
func (d *Daemon) Reload(newCfg *config.Config) error {
	if newCfg.Daemon == nil {
		return fmt.Errorf("daemon section removed; restart required")
	}
	old := d.currentConfig()
	keepRunningValues(old, newCfg)

	notifier, err := notify.FromConfig(newCfg.Notify)
	if err != nil {
		return fmt.Errorf("notify configuration: %w", err)
	}
	runner := pipeline.NewRunner(newCfg,
		pipeline.WithStore(d.store),
		pipeline.WithRecorder(d.rec),
		pipeline.WithNotifier(notifier),
		pipeline.WithWorkDir(newCfg.Daemon.DataDir))

	d.mu.Lock()
	oldNotifier := d.notifier
	d.cfg = newCfg
	d.notifier = notifier
	d.runner = runner
	d.mu.Unlock()

	oldNotifier.Close()
	slog.Info("Configuration reloaded")
	return nil
}

// keepRunningValues pins the settings that only a restart can change,
// logging each ignored edit.
func keepRunningValues(old, next *config.Config) {
	if next.Daemon.HTTP != old.Daemon.HTTP {
		slog.Warn("Listener port change requires restart, keeping current ports",
			slog.Int("webhook_port", old.Daemon.HTTP.WebhookPort),
			slog.Int("admin_port", old.Daemon.HTTP.AdminPort))
		next.Daemon.HTTP = old.Daemon.HTTP
	}
	if next.Pipeline.Name != old.Pipeline.Name {
		slog.Warn("Pipeline rename requires restart, keeping current name",
			logfields.Pipeline(old.Pipeline.Name))
		next.Pipeline.Name = old.Pipeline.Name
	}
	if next.Daemon.DataDir != old.Daemon.DataDir {
		slog.Warn("Data directory change requires restart, keeping current directory",
			logfields.Dir(old.Daemon.DataDir))
		next.Daemon.DataDir = old.Daemon.DataDir
	}
	if next.Daemon.Schedule != old.Daemon.Schedule {
		slog.Warn("Schedule change requires restart, keeping current schedule",
			slog.String("schedule", old.Daemon.Schedule))
		next.Daemon.Schedule = old.Daemon.Schedule
	}
}

func (d *Daemon) currentConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) currentRunner() *pipeline.Runner {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runner
}
