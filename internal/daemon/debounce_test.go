package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookship/internal/pipeline"
)

type firedTrigger struct {
	key  string
	trig pipeline.Trigger
}

func collectFires() (chan firedTrigger, func(string, pipeline.Trigger)) {
	ch := make(chan firedTrigger, 16)
	return ch, func(key string, trig pipeline.Trigger) {
		ch <- firedTrigger{key: key, trig: trig}
	}
}

func TestDebounceBurstCoalescesToSingleRun(t *testing.T) {
	fired, fire := collectFires()
	d := newDebouncer(25*time.Millisecond, 200*time.Millisecond, fire)
	defer d.Close()

	key := "docs@refs/heads/master"
	for _, commit := range []string{"a", "b", "c"} {
		d.Trigger(key, pipeline.Trigger{Kind: pipeline.TriggerWebhook, Commit: commit})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-fired:
		require.Equal(t, key, got.key)
		require.Equal(t, "c", got.trig.Commit, "the newest trigger wins")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for debounced trigger")
	}

	select {
	case <-fired:
		t.Fatal("expected only one fire for the burst")
	case <-time.After(75 * time.Millisecond):
	}
}

func TestDebounceMaxDelayForcesRun(t *testing.T) {
	fired, fire := collectFires()
	// The quiet window would postpone forever if pushes keep coming.
	d := newDebouncer(200*time.Millisecond, 60*time.Millisecond, fire)
	defer d.Close()

	key := "docs@refs/heads/master"
	deadline := time.Now().Add(400 * time.Millisecond)
	got := false
	for time.Now().Before(deadline) && !got {
		d.Trigger(key, pipeline.Trigger{Kind: pipeline.TriggerWebhook})
		select {
		case <-fired:
			got = true
		case <-time.After(10 * time.Millisecond):
		}
	}
	require.True(t, got, "max delay should force a fire despite constant re-triggering")
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	fired, fire := collectFires()
	d := newDebouncer(20*time.Millisecond, 200*time.Millisecond, fire)
	defer d.Close()

	d.Trigger("docs@refs/heads/a", pipeline.Trigger{Commit: "a1"})
	d.Trigger("docs@refs/heads/b", pipeline.Trigger{Commit: "b1"})

	seen := map[string]string{}
	for range 2 {
		select {
		case got := <-fired:
			seen[got.key] = got.trig.Commit
		case <-time.After(500 * time.Millisecond):
			t.Fatal("timed out waiting for both groups to fire")
		}
	}
	require.Equal(t, map[string]string{
		"docs@refs/heads/a": "a1",
		"docs@refs/heads/b": "b1",
	}, seen)
}

func TestDebounceCloseDropsPending(t *testing.T) {
	fired, fire := collectFires()
	d := newDebouncer(20*time.Millisecond, 200*time.Millisecond, fire)

	d.Trigger("docs@refs/heads/master", pipeline.Trigger{})
	d.Close()

	select {
	case <-fired:
		t.Fatal("pending trigger should be dropped on close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebounceZeroQuietFiresInline(t *testing.T) {
	fired, fire := collectFires()
	d := newDebouncer(0, 0, fire)
	defer d.Close()

	d.Trigger("docs@refs/heads/master", pipeline.Trigger{Commit: "x"})
	select {
	case got := <-fired:
		require.Equal(t, "x", got.trig.Commit)
	default:
		t.Fatal("zero quiet window should fire synchronously")
	}
}
