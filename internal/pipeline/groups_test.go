package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupKey(t *testing.T) {
	require.Equal(t, "docs@refs/heads/master", GroupKey("docs", "refs/heads/master"))
}

func TestGroupsCoalesceWhileActive(t *testing.T) {
	var mu sync.Mutex
	var got []string
	started := make(chan struct{}, 8)
	release := make(chan struct{})

	g := NewGroups(func(ctx context.Context, trig Trigger) {
		mu.Lock()
		got = append(got, trig.Commit)
		mu.Unlock()
		started <- struct{}{}
		<-release
	}, nil)

	key := GroupKey("docs", "refs/heads/master")
	require.True(t, g.Submit(context.Background(), key, Trigger{Commit: "a"}))
	<-started

	// Both arrive while "a" runs; "c" replaces "b" as the single follow-up.
	require.True(t, g.Submit(context.Background(), key, Trigger{Commit: "b"}))
	require.True(t, g.Submit(context.Background(), key, Trigger{Commit: "c"}))

	snap := g.Snapshot()
	require.Len(t, snap, 1)
	require.True(t, snap[0].Active)
	require.True(t, snap[0].Queued)

	close(release)
	// Wait for the follow-up to start before closing; Close drops triggers
	// still sitting in the queue.
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "c"}, got)
}

func TestGroupsDistinctKeysRunConcurrently(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})

	g := NewGroups(func(ctx context.Context, trig Trigger) {
		started <- trig.Ref
		<-release
	}, nil)

	require.True(t, g.Submit(context.Background(), GroupKey("docs", "refs/heads/a"), Trigger{Ref: "refs/heads/a"}))
	require.True(t, g.Submit(context.Background(), GroupKey("docs", "refs/heads/b"), Trigger{Ref: "refs/heads/b"}))

	// Neither run has been released yet, so seeing both start proves the
	// groups are not serialized against each other.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ref := <-started:
			seen[ref] = true
		case <-time.After(5 * time.Second):
			t.Fatal("second group did not start while the first was active")
		}
	}
	require.Len(t, seen, 2)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Close(ctx))
}

func TestGroupsClosedRejectsTriggers(t *testing.T) {
	g := NewGroups(func(ctx context.Context, trig Trigger) {}, nil)
	require.NoError(t, g.Close(context.Background()))
	require.False(t, g.Submit(context.Background(), GroupKey("docs", "refs/heads/master"), Trigger{}))
}

func TestGroupsCloseTimesOutOnStuckRun(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	g := NewGroups(func(ctx context.Context, trig Trigger) { <-release }, nil)
	require.True(t, g.Submit(context.Background(), GroupKey("docs", "refs/heads/master"), Trigger{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Close(ctx), context.DeadlineExceeded)
}

func TestGroupsReportQueueDepth(t *testing.T) {
	rec := &captureRecorder{}
	started := make(chan struct{}, 8)
	release := make(chan struct{})

	g := NewGroups(func(ctx context.Context, trig Trigger) {
		started <- struct{}{}
		<-release
	}, rec)

	key := GroupKey("docs", "refs/heads/master")
	g.Submit(context.Background(), key, Trigger{Commit: "a"})
	<-started
	g.Submit(context.Background(), key, Trigger{Commit: "b"})

	close(release)
	<-started // the follow-up is picked up, clearing the queue
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Close(ctx))

	depths := rec.queueDepths()
	require.NotEmpty(t, depths)
	require.Equal(t, 1, depths[0], "queuing the follow-up raises the depth")
	require.Equal(t, 0, depths[len(depths)-1], "draining the follow-up clears it")
}
