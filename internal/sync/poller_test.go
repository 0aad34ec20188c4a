package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestPoller_FetchesWhileNotLive verifies polling runs while the feed is
// connecting or degraded.
func TestPoller_FetchesWhileNotLive(t *testing.T) {
	h := NewConnectionHealth() // connecting
	var fetches atomic.Int64
	p := newPoller(h, 10*time.Millisecond, func(ctx context.Context) error {
		fetches.Add(1)
		return nil
	}, testLogger())

	p.start()
	defer p.stop()

	waitFor(t, "poll fetches while connecting", func() bool {
		return fetches.Load() >= 3
	})
}

// TestPoller_SuppressedWhileLive verifies polling stops when the feed is
// live and resumes when it degrades.
func TestPoller_SuppressedWhileLive(t *testing.T) {
	h := NewConnectionHealth()
	h.set(StateLive)

	var fetches atomic.Int64
	p := newPoller(h, 10*time.Millisecond, func(ctx context.Context) error {
		fetches.Add(1)
		return nil
	}, testLogger())

	p.start()
	defer p.stop()

	time.Sleep(100 * time.Millisecond)
	if n := fetches.Load(); n != 0 {
		t.Fatalf("poller issued %d fetches while live, want 0", n)
	}

	h.set(StateDegraded)
	waitFor(t, "polling to resume after degrade", func() bool {
		return fetches.Load() > 0
	})
}

// TestPoller_NoOverlappingFetches verifies a slow fetch suppresses ticks
// instead of running concurrently.
func TestPoller_NoOverlappingFetches(t *testing.T) {
	h := NewConnectionHealth() // connecting, so polling is active

	var active, maxActive atomic.Int64
	p := newPoller(h, 10*time.Millisecond, func(ctx context.Context) error {
		n := active.Add(1)
		for {
			prev := maxActive.Load()
			if n <= prev || maxActive.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(35 * time.Millisecond) // spans several intervals
		active.Add(-1)
		return nil
	}, testLogger())

	p.start()
	time.Sleep(200 * time.Millisecond)
	p.stop()

	if maxActive.Load() > 1 {
		t.Errorf("observed %d concurrent fetches, want at most 1", maxActive.Load())
	}
}

// TestPoller_ErrorsAreRetried verifies fetch errors do not stop the loop.
func TestPoller_ErrorsAreRetried(t *testing.T) {
	h := NewConnectionHealth()
	var fetches atomic.Int64
	p := newPoller(h, 10*time.Millisecond, func(ctx context.Context) error {
		fetches.Add(1)
		return context.DeadlineExceeded
	}, testLogger())

	p.start()
	defer p.stop()

	waitFor(t, "fetches to continue despite errors", func() bool {
		return fetches.Load() >= 3
	})
}

// TestPoller_StopTerminates verifies stop returns after the loop exits.
func TestPoller_StopTerminates(t *testing.T) {
	h := NewConnectionHealth()
	p := newPoller(h, 10*time.Millisecond, func(ctx context.Context) error { return nil }, testLogger())
	p.start()

	done := make(chan struct{})
	go func() {
		p.stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}
