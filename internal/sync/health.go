package sync

import (
	"sync"
	"time"
)

// HealthState describes the change feed connection.
type HealthState string

const (
	StateConnecting HealthState = "connecting"
	StateLive       HealthState = "live"
	StateDegraded   HealthState = "degraded"
	StateClosed     HealthState = "closed"
)

// ConnectionHealth is the process-local connection-state signal. It has a
// single writer (the change feed) and any number of readers (pollers, UI
// indicators). Subscribers receive transitions on a 1-buffered channel:
// rapid consecutive transitions are coalesced so a reader only ever observes
// the most recent state.
type ConnectionHealth struct {
	mu               sync.Mutex
	state            HealthState
	lastTransitionAt time.Time
	subs             map[chan HealthState]struct{}
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		state:            StateConnecting,
		lastTransitionAt: time.Now(),
		subs:             make(map[chan HealthState]struct{}),
	}
}

// State returns the current connection state.
func (h *ConnectionHealth) State() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastTransitionAt returns when the state last changed.
func (h *ConnectionHealth) LastTransitionAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTransitionAt
}

// Subscribe returns a channel of state transitions and a cancel function.
// The channel never blocks the writer; a pending unread state is replaced
// by the newer one.
func (h *ConnectionHealth) Subscribe() (<-chan HealthState, func()) {
	ch := make(chan HealthState, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// set transitions the state and fans out to subscribers. Only the change
// feed calls this. A transition to Closed is terminal except that it never
// happens implicitly; only an explicit feed Close sets it.
func (h *ConnectionHealth) set(s HealthState) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.lastTransitionAt = time.Now()
	for ch := range h.subs {
		// Coalesce: drop the stale pending value, keep the newest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
	h.mu.Unlock()
}
