package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tutorbase/internal/models"
)

// completionBuffer bounds the completion stream for the notification
// scheduler collaborator. It is a best-effort signal, not a ledger.
const completionBuffer = 16

type msgKind int

const (
	msgEvent msgKind = iota
	msgSnapshot
	msgSetWindow
	msgOptimistic
	msgRollback
)

// message is one unit of work for the apply queue. Every message carries the
// window epoch it was produced under; the queue discards messages from a
// window that is no longer active.
type message struct {
	kind  msgKind
	epoch uint64

	event    Event         // msgEvent, msgOptimistic, msgRollback
	snapshot []models.Task // msgSnapshot
	start    models.DateOnly
	end      models.DateOnly // msgSetWindow
}

// windowTrack mirrors the active window bounds for fetch goroutines, which
// must not touch the loop-owned reconciler.
type windowTrack struct {
	mu    sync.RWMutex
	epoch uint64
	start models.DateOnly
	end   models.DateOnly
}

// EngineConfig assembles an engine for one (user, window) pair.
type EngineConfig struct {
	Scope        models.TaskScope
	WindowStart  models.DateOnly
	WindowEnd    models.DateOnly
	Feed         ChangeFeed
	Fetcher      SnapshotFetcher
	PollInterval time.Duration
	Logger       *log.Logger
}

// Engine owns the authoritative TaskView for one user and window. All state
// signals - feed events, poll snapshots, optimistic applies and rollbacks -
// are serialized through one apply goroutine, so per-id arrival order is
// preserved and a snapshot application is a barrier between the events
// before and after it. The view is never shared across windows or across
// concurrently open surfaces; each gets its own engine.
type Engine struct {
	scope   models.TaskScope
	feed    ChangeFeed
	fetcher SnapshotFetcher
	logger  *log.Logger

	// reconciler is owned by the apply goroutine once Start runs.
	reconciler *Reconciler
	epoch      atomic.Uint64
	window     windowTrack

	msgs       chan message
	done       chan struct{}
	loopDone   chan struct{}
	poller     *Poller
	feedCancel func()
	closeOnce  sync.Once

	// published is the last view the loop produced; readers never touch the
	// reconciler directly.
	mu        sync.RWMutex
	published []models.Task

	updates     chan struct{}
	completions chan models.Task
}

// NewEngine validates the config and builds an engine. Call Start to run it
// and Close to release the subscription, the poller and the queue.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Feed == nil {
		return nil, fmt.Errorf("feed cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if cfg.WindowStart.IsZero() || cfg.WindowEnd.IsZero() {
		return nil, fmt.Errorf("window bounds are required")
	}
	if cfg.WindowEnd.Before(cfg.WindowStart) {
		return nil, fmt.Errorf("window end %s precedes start %s", cfg.WindowEnd, cfg.WindowStart)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	e := &Engine{
		scope:       cfg.Scope,
		feed:        cfg.Feed,
		fetcher:     cfg.Fetcher,
		logger:      cfg.Logger,
		msgs:        make(chan message, 64),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		updates:     make(chan struct{}, 1),
		completions: make(chan models.Task, completionBuffer),
	}
	e.poller = newPoller(cfg.Feed.Health(), cfg.PollInterval, e.pollOnce, cfg.Logger)

	e.reconciler = NewReconciler(cfg.WindowStart, cfg.WindowEnd, cfg.Logger)
	e.reconciler.OnCompleted = e.emitCompletion
	e.setWindowBounds(0, cfg.WindowStart, cfg.WindowEnd)
	return e, nil
}

// Start subscribes to the feed, issues the initial snapshot fetch and starts
// the apply loop and the fallback poller.
func (e *Engine) Start() error {
	events, cancel, err := e.feed.Subscribe(e.scope)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}
	e.feedCancel = cancel

	go e.loop(events)
	e.poller.start()

	// Initial load runs regardless of feed health.
	go func() {
		ctx, cancelFetch := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelFetch()
		if err := e.pollOnce(ctx); err != nil {
			e.logger.Printf("[sync] initial snapshot fetch failed (poller will retry): %v", err)
		}
	}()
	return nil
}

// Close releases the feed subscription, the poller and the apply loop. Safe
// on every exit path, including error exits; idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.feedCancel != nil {
			e.feedCancel()
		}
		e.poller.stop()
		close(e.done)
		<-e.loopDone
	})
}

// Health exposes the shared connection-state signal for UI indicators.
func (e *Engine) Health() *ConnectionHealth {
	return e.feed.Health()
}

// Window returns the active date range.
func (e *Engine) Window() (start, end models.DateOnly) {
	e.window.mu.RLock()
	defer e.window.mu.RUnlock()
	return e.window.start, e.window.end
}

// Tasks returns the current view, ordered, as produced by the last apply.
func (e *Engine) Tasks() []models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Task, len(e.published))
	copy(out, e.published)
	return out
}

// Get returns the task with the given id from the current view, or nil.
func (e *Engine) Get(id string) *models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.published {
		if e.published[i].ID == id {
			return e.published[i].Clone()
		}
	}
	return nil
}

// Updates signals that the view changed. Coalesced: a reader that is behind
// gets one pending signal, not a backlog.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// Completions streams tasks whose status transitioned into completed. The
// notification scheduler subscribes here; the reconciler never calls into it
// directly.
func (e *Engine) Completions() <-chan models.Task {
	return e.completions
}

// SetWindow activates a new date range. The view is rebuilt from scratch: a
// fresh snapshot is fetched and anything still in flight for the old window
// is discarded when it arrives, not applied.
func (e *Engine) SetWindow(start, end models.DateOnly) error {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return fmt.Errorf("invalid window %s..%s", start, end)
	}
	select {
	case <-e.done:
		return ErrEngineClosed
	default:
	}
	epoch := e.epoch.Add(1)
	e.setWindowBounds(epoch, start, end)
	e.enqueue(message{kind: msgSetWindow, epoch: epoch, start: start, end: end})
	go func() {
		ctx, cancelFetch := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelFetch()
		if err := e.fetchSnapshot(ctx, epoch); err != nil {
			e.logger.Printf("[sync] window snapshot fetch failed (poller will retry): %v", err)
		}
	}()
	return nil
}

// pollOnce fetches the current window under the current epoch. Used for the
// initial load and by the poller.
func (e *Engine) pollOnce(ctx context.Context) error {
	return e.fetchSnapshot(ctx, e.epoch.Load())
}

// fetchSnapshot runs one window-bounded fetch and enqueues the result tagged
// with the epoch the fetch was requested under. A fetch that outlives its
// window is discarded by the loop.
func (e *Engine) fetchSnapshot(ctx context.Context, epoch uint64) error {
	start, end, ok := e.windowAt(epoch)
	if !ok {
		return nil // window already rotated away
	}
	tasks, err := e.fetcher.Fetch(ctx, e.scope, start, end)
	if err != nil {
		return err
	}
	e.enqueue(message{kind: msgSnapshot, epoch: epoch, snapshot: tasks})
	return nil
}

// applyOptimistic enqueues a locally originated upsert/delete under the
// current epoch. Called by the gateway before the remote write.
func (e *Engine) applyOptimistic(ev Event) {
	e.enqueue(message{kind: msgOptimistic, epoch: e.epoch.Load(), event: ev})
}

// applyRollback restores the pre-mutation state after a rejected write.
// prior == nil undoes an optimistic create.
func (e *Engine) applyRollback(id string, prior *models.Task) {
	ev := Event{Type: EventDelete, TaskID: id}
	if prior != nil {
		ev = Event{Type: EventUpdate, TaskID: id, Task: prior}
	}
	e.enqueue(message{kind: msgRollback, epoch: e.epoch.Load(), event: ev})
}

func (e *Engine) enqueue(m message) {
	select {
	case e.msgs <- m:
	case <-e.done:
	}
}

func (e *Engine) emitCompletion(t models.Task) {
	select {
	case e.completions <- t:
	default:
		e.logger.Printf("[sync] completion stream backlog full, dropping %s", t.ID)
	}
}

// loop is the apply queue: the only goroutine that touches the reconciler.
func (e *Engine) loop(events <-chan Event) {
	defer close(e.loopDone)

	r := e.reconciler

	for {
		select {
		case <-e.done:
			return

		case ev, ok := <-events:
			if !ok {
				// Feed shut down; the poller keeps the view converging.
				events = nil
				continue
			}
			// Tag at receipt: events seen after a window change are judged
			// against the new window; the snapshot refetch covers anything
			// the transition raced with.
			if e.applyMessage(r, message{kind: msgEvent, epoch: e.epoch.Load(), event: ev}) {
				e.publish(r)
			}

		case m := <-e.msgs:
			if e.applyMessage(r, m) {
				e.publish(r)
			}
		}
	}
}

// applyMessage applies one message and reports whether the view changed.
func (e *Engine) applyMessage(r *Reconciler, m message) bool {
	if m.kind == msgSetWindow {
		r.SetWindow(m.start, m.end)
		return true
	}
	if m.epoch != e.epoch.Load() {
		// Stale: produced for a window that has since been replaced.
		return false
	}
	switch m.kind {
	case msgEvent:
		return r.ApplyEvent(m.event)
	case msgOptimistic, msgRollback:
		// Local applies may still be rolled back; they never feed the
		// completion stream. The gateway reports confirmed completions.
		return r.ApplyLocal(m.event)
	case msgSnapshot:
		return r.ApplySnapshot(m.snapshot)
	}
	return false
}

func (e *Engine) publish(r *Reconciler) {
	view := r.Tasks()
	e.mu.Lock()
	e.published = view
	e.mu.Unlock()

	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) setWindowBounds(epoch uint64, start, end models.DateOnly) {
	e.window.mu.Lock()
	e.window.epoch = epoch
	e.window.start = start
	e.window.end = end
	e.window.mu.Unlock()
}

func (e *Engine) windowAt(epoch uint64) (models.DateOnly, models.DateOnly, bool) {
	e.window.mu.RLock()
	defer e.window.mu.RUnlock()
	if e.window.epoch != epoch {
		return "", "", false
	}
	return e.window.start, e.window.end, true
}
