package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/metrics"
)

// Groups serializes runs per concurrency group while letting distinct
// groups run concurrently. A group runs at most one trigger at a time;
// triggers arriving while a run is active coalesce into exactly one queued
// follow-up carrying the newest trigger.
type Groups struct {
	run func(ctx context.Context, trig Trigger)
	rec metrics.Recorder

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	groups map[string]*group
}

type group struct {
	active bool
	queued *Trigger
}

// GroupKey builds the concurrency group key for a pipeline and ref.
func GroupKey(pipeline, ref string) string { return pipeline + "@" + ref }

// NewGroups creates a group scheduler delivering triggers to run. A nil
// recorder disables queue depth reporting.
func NewGroups(run func(ctx context.Context, trig Trigger), rec metrics.Recorder) *Groups {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Groups{run: run, rec: rec, groups: make(map[string]*group)}
}

// Submit hands a trigger to its group. The trigger starts immediately when
// the group is idle, otherwise it replaces the group's queued follow-up.
// Returns false when the scheduler is already closed.
func (g *Groups) Submit(ctx context.Context, key string, trig Trigger) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}

	grp := g.groups[key]
	if grp == nil {
		grp = &group{}
		g.groups[key] = grp
	}
	if grp.active {
		if grp.queued != nil {
			slog.Debug("Coalescing trigger into queued follow-up", logfields.Group(key))
		}
		grp.queued = &trig
		g.reportQueueDepthLocked()
		return true
	}

	grp.active = true
	g.wg.Add(1)
	go g.drain(ctx, key, trig)
	return true
}

// drain runs the active trigger and any follow-up queued while it ran.
func (g *Groups) drain(ctx context.Context, key string, trig Trigger) {
	defer g.wg.Done()
	for {
		g.run(ctx, trig)

		g.mu.Lock()
		grp := g.groups[key]
		if grp.queued == nil || g.closed || ctx.Err() != nil {
			grp.active = false
			g.mu.Unlock()
			return
		}
		trig = *grp.queued
		grp.queued = nil
		g.reportQueueDepthLocked()
		g.mu.Unlock()
		slog.Debug("Starting queued follow-up run", logfields.Group(key))
	}
}

func (g *Groups) reportQueueDepthLocked() {
	n := 0
	for _, grp := range g.groups {
		if grp.queued != nil {
			n++
		}
	}
	g.rec.SetQueueDepth(n)
}

// Close stops accepting triggers and waits for active runs to finish,
// bounded by ctx. Queued follow-ups are dropped.
func (g *Groups) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GroupStatus describes one concurrency group for the status endpoints.
type GroupStatus struct {
	Key    string `json:"key"`
	Active bool   `json:"active"`
	Queued bool   `json:"queued"`
}

// Snapshot lists all known groups sorted by key.
func (g *Groups) Snapshot() []GroupStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]GroupStatus, 0, len(g.groups))
	for key, grp := range g.groups {
		out = append(out, GroupStatus{Key: key, Active: grp.active, Queued: grp.queued != nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
