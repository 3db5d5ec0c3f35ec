package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed before a change arrived")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestNotifyDelivers(t *testing.T) {
	n := New(5 * time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	defer cancel()

	n.Notify("s1")
	c := waitChange(t, ch)
	assert.Equal(t, "s1", c.SessionID)
	assert.False(t, c.At.IsZero())
}

func TestNotifyCollapsesBurst(t *testing.T) {
	n := New(20 * time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		n.Notify("s1")
	}

	waitChange(t, ch)

	// Only one signal for the burst.
	select {
	case c := <-ch:
		t.Fatalf("unexpected second change: %+v", c)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestNotifyKeysAreIndependent(t *testing.T) {
	n := New(5 * time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	defer cancel()

	n.Notify("a")
	n.Notify("b")

	got := map[string]bool{}
	got[waitChange(t, ch).SessionID] = true
	got[waitChange(t, ch).SessionID] = true
	assert.True(t, got["a"])
	assert.True(t, got["b"])
}

func TestBroadcastUsesEmptyID(t *testing.T) {
	n := New(5 * time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	defer cancel()

	n.Broadcast()
	assert.Equal(t, "", waitChange(t, ch).SessionID)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	n := New(time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	defer cancel()

	// Fill the buffer without draining; emissions past it are dropped.
	for i := 0; i < 40; i++ {
		n.Notify("s1")
		time.Sleep(3 * time.Millisecond)
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	assert.Greater(t, drained, 0)
	assert.LessOrEqual(t, drained, cap(ch))
}

func TestCancelClosesChannel(t *testing.T) {
	n := New(time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Cancel twice is safe.
	cancel()
}

func TestStopClosesSubscribersAndSilencesNotify(t *testing.T) {
	n := New(time.Millisecond)
	ch, _ := n.Subscribe()

	n.Stop()

	_, ok := <-ch
	assert.False(t, ok)

	// Notify after stop is a no-op, not a panic.
	n.Notify("s1")
	time.Sleep(5 * time.Millisecond)
}

func TestNotifyAfterWindowFiresAgain(t *testing.T) {
	n := New(5 * time.Millisecond)
	defer n.Stop()

	ch, cancel := n.Subscribe()
	defer cancel()

	n.Notify("s1")
	waitChange(t, ch)

	n.Notify("s1")
	assert.Equal(t, "s1", waitChange(t, ch).SessionID)
}
