package daemon

import (
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
)

// debouncer coalesces bursts of push triggers per concurrency group: a
// trigger fires once the group has been quiet for the quiet window, and
// never later than maxDelay after the first push of a burst. The newest
// trigger wins; intermediate ones are dropped.
type debouncer struct {
	quiet    time.Duration
	maxDelay time.Duration
	fire     func(key string, trig pipeline.Trigger)

	mu      sync.Mutex
	closed  bool
	pending map[string]*pendingTrigger
}

type pendingTrigger struct {
	trig     pipeline.Trigger
	timer    *time.Timer
	deadline time.Time // first trigger of the burst + maxDelay
	count    int
}

func newDebouncer(quiet, maxDelay time.Duration, fire func(key string, trig pipeline.Trigger)) *debouncer {
	return &debouncer{
		quiet:    quiet,
		maxDelay: maxDelay,
		fire:     fire,
		pending:  make(map[string]*pendingTrigger),
	}
}

// Trigger schedules trig for its group, replacing any pending trigger and
// restarting the quiet window.
func (d *debouncer) Trigger(key string, trig pipeline.Trigger) {
	if d.quiet <= 0 {
		d.fire(key, trig)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	p := d.pending[key]
	if p == nil {
		p = &pendingTrigger{deadline: time.Now().Add(d.maxDelay)}
		d.pending[key] = p
	} else {
		p.timer.Stop()
	}
	p.trig = trig
	p.count++

	delay := d.quiet
	if until := time.Until(p.deadline); until < delay {
		// The burst has been deferred long enough; the max delay wins.
		delay = until
	}
	if delay < 0 {
		delay = 0
	}
	p.timer = time.AfterFunc(delay, func() { d.emit(key) })
	d.mu.Unlock()
}

func (d *debouncer) emit(key string) {
	d.mu.Lock()
	p := d.pending[key]
	if p == nil || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	if p.count > 1 {
		slog.Debug("Coalesced trigger burst", logfields.Group(key), logfields.Count(p.count))
	}
	d.fire(key, p.trig)
}

// Close stops all timers and drops pending triggers.
func (d *debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, p := range d.pending {
		p.timer.Stop()
		slog.Debug("Dropping pending trigger on shutdown", logfields.Group(key))
		delete(d.pending, key)
	}
}
