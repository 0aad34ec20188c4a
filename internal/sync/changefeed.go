package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/lib/pq"

	"tutorbase/internal/models"
)

// feedChannel is the Postgres NOTIFY channel the tasks trigger publishes to.
const feedChannel = "tasks_feed"

// subBuffer bounds each subscriber's event queue. A subscriber that falls
// this far behind loses events; the fallback poller's snapshot diff repairs
// the view, so losing a notification degrades latency, not correctness.
const subBuffer = 128

// pingInterval keeps the listener connection honest when no rows change.
const pingInterval = 90 * time.Second

// feedDDL installs the row-level trigger publishing task changes. NOTIFY
// cannot filter per subscriber, so the whole row travels in the payload and
// the feed filters by scope client-side before emission.
const feedDDL = `
CREATE OR REPLACE FUNCTION notify_task_change() RETURNS trigger AS $fn$
DECLARE
	payload json;
BEGIN
	IF TG_OP = 'DELETE' THEN
		payload = json_build_object('type', 'delete', 'task', row_to_json(OLD));
	ELSIF TG_OP = 'INSERT' THEN
		payload = json_build_object('type', 'insert', 'task', row_to_json(NEW));
	ELSE
		payload = json_build_object('type', 'update', 'task', row_to_json(NEW));
	END IF;
	PERFORM pg_notify('` + feedChannel + `', payload::text);
	RETURN NULL;
END;
$fn$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS tasks_feed_trigger ON tasks;
CREATE TRIGGER tasks_feed_trigger
	AFTER INSERT OR UPDATE OR DELETE ON tasks
	FOR EACH ROW EXECUTE FUNCTION notify_task_change();
`

// SetupFeed installs the notify trigger. Idempotent; called at startup.
func SetupFeed(db *sql.DB) error {
	if _, err := db.Exec(feedDDL); err != nil {
		return fmt.Errorf("failed to install tasks feed trigger: %w", err)
	}
	return nil
}

// feedEnvelope is the trigger's JSON payload.
type feedEnvelope struct {
	Type EventType    `json:"type"`
	Task *models.Task `json:"task"`
}

type feedSub struct {
	scope models.TaskScope
	ch    chan Event
}

// PGFeed is the change feed client over Postgres LISTEN/NOTIFY. One feed per
// process; engines subscribe with their scope and receive only events inside
// it. pq.Listener handles reconnection with backoff internally; its
// connection callbacks drive the shared ConnectionHealth signal. The feed
// never transitions to closed on its own, only on an explicit Close.
type PGFeed struct {
	listener *pq.Listener
	health   *ConnectionHealth
	logger   *log.Logger

	mu      sync.Mutex
	subs    map[*feedSub]struct{}
	started bool
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewPGFeed creates the feed. minReconnect/maxReconnect bound pq.Listener's
// reconnection backoff.
func NewPGFeed(dsn string, minReconnect, maxReconnect time.Duration, logger *log.Logger) *PGFeed {
	if logger == nil {
		logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}
	f := &PGFeed{
		health: NewConnectionHealth(),
		logger: logger,
		subs:   make(map[*feedSub]struct{}),
		done:   make(chan struct{}),
	}
	f.listener = pq.NewListener(dsn, minReconnect, maxReconnect, f.onListenerEvent)
	return f
}

// onListenerEvent maps transport events to health transitions. pq invokes it
// from its own goroutine; ConnectionHealth coalesces rapid flapping so
// readers only see the latest state.
func (f *PGFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		f.health.set(StateLive)
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if !closed {
			f.health.set(StateDegraded)
		}
	}
	if err != nil {
		f.logger.Printf("[feed] listener event %d: %v", ev, err)
	}
}

// Start begins listening. Returns an error if the channel cannot be
// registered or the feed was already started.
func (f *PGFeed) Start() error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return fmt.Errorf("feed already started")
	}
	f.started = true
	f.mu.Unlock()

	if err := f.listener.Listen(feedChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", feedChannel, err)
	}

	f.wg.Add(1)
	go f.run()
	return nil
}

// Close unsubscribes everyone, stops the listener and transitions health to
// closed. Safe to call once.
func (f *PGFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)
	err := f.listener.Close()
	f.wg.Wait()

	f.mu.Lock()
	for sub := range f.subs {
		close(sub.ch)
		delete(f.subs, sub)
	}
	f.mu.Unlock()

	f.health.set(StateClosed)
	return err
}

// Health returns the shared connection-state signal.
func (f *PGFeed) Health() *ConnectionHealth {
	return f.health
}

// Subscribe registers a scope-filtered subscription. The cancel function
// releases it; the channel closes on feed shutdown or cancel.
func (f *PGFeed) Subscribe(scope models.TaskScope) (<-chan Event, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, fmt.Errorf("feed is closed")
	}
	sub := &feedSub{
		scope: scope,
		ch:    make(chan Event, subBuffer),
	}
	f.subs[sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[sub]; ok {
				delete(f.subs, sub)
				close(sub.ch)
			}
			f.mu.Unlock()
		})
	}
	return sub.ch, cancel, nil
}

// run consumes listener notifications and fans them out. A nil notification
// from pq signals the connection was re-established; subscribers do not need
// to act because their pollers were already active while degraded.
func (f *PGFeed) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return

		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnect marker
				continue
			}
			f.dispatch(n.Extra)

		case <-time.After(pingInterval):
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Printf("[feed] ping failed: %v", err)
				}
			}()
		}
	}
}

// dispatch parses one notification payload and delivers it to every
// subscriber whose scope contains the task. Malformed payloads are dropped
// and logged, never fatal.
func (f *PGFeed) dispatch(payload string) {
	var env feedEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		f.logger.Printf("[feed] dropping malformed payload: %v", err)
		return
	}
	if env.Task == nil || env.Task.ID == "" {
		f.logger.Printf("[feed] dropping %s event: missing task id", env.Type)
		return
	}
	switch env.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		f.logger.Printf("[feed] dropping event with unknown type %q", env.Type)
		return
	}

	ev := Event{Type: env.Type, TaskID: env.Task.ID, Task: env.Task}
	if env.Type == EventDelete {
		// The delete payload carries the OLD row; keep it for scope
		// filtering but emit only the id.
		ev.Task = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if !sub.scope.Contains(env.Task) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is saturated; the poll snapshot will repair it.
			f.logger.Printf("[feed] subscriber backlog full, dropping %s for %s", ev.Type, ev.TaskID)
		}
	}
}
