package sync

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"tutorbase/internal/models"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testTask(id string, date models.DateOnly, status models.TaskStatus) *models.Task {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	return &models.Task{
		ID:            id,
		Title:         "task " + id,
		TaskType:      models.TypeStudy,
		Status:        status,
		Priority:      models.PriorityMedium,
		AssignedTo:    101,
		AssignedBy:    201,
		ScheduledDate: date,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeFeed is an in-memory ChangeFeed for engine and gateway tests.
type fakeFeed struct {
	health *ConnectionHealth

	mu   sync.Mutex
	subs map[chan Event]models.TaskScope
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		health: NewConnectionHealth(),
		subs:   make(map[chan Event]models.TaskScope),
	}
}

func (f *fakeFeed) Subscribe(scope models.TaskScope) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)
	f.mu.Lock()
	f.subs[ch] = scope
	f.mu.Unlock()
	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

func (f *fakeFeed) Health() *ConnectionHealth { return f.health }

// emit delivers an event to every subscriber whose scope contains the task.
// Delete events carry no task and go to everyone, like the real feed after
// its OLD-row scope check.
func (f *fakeFeed) emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch, scope := range f.subs {
		if ev.Task != nil && !scope.Contains(ev.Task) {
			continue
		}
		ch <- ev
	}
}

// fakeStore is a SnapshotFetcher over an in-memory task set.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	errs  int // remaining fetches that fail
}

func newFakeStore(tasks ...*models.Task) *fakeStore {
	s := &fakeStore{tasks: make(map[string]*models.Task)}
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
	return s
}

func (s *fakeStore) put(t *models.Task) {
	s.mu.Lock()
	s.tasks[t.ID] = t.Clone()
	s.mu.Unlock()
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

func (s *fakeStore) Fetch(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs > 0 {
		s.errs--
		return nil, context.DeadlineExceeded
	}
	var out []models.Task
	for _, t := range s.tasks {
		if scope.Contains(t) && t.ScheduledDate.Within(start, end) {
			out = append(out, *t.Clone())
		}
	}
	return out, nil
}

// fakeWriter is a RemoteWriter with injectable failures and an optional
// blocking gate for in-flight tests.
type fakeWriter struct {
	mu      sync.Mutex
	fail    bool
	started chan struct{} // closed when a write begins, if set
	gate    chan struct{} // writes block until closed, if set
	store   *fakeStore
}

func (w *fakeWriter) enter() error {
	w.mu.Lock()
	started, gate, fail := w.started, w.gate, w.fail
	w.started = nil
	w.mu.Unlock()
	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (w *fakeWriter) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	if err := w.enter(); err != nil {
		return nil, err
	}
	if w.store != nil {
		w.store.put(task)
	}
	return task.Clone(), nil
}

func (w *fakeWriter) Update(ctx context.Context, id string, updateData *models.Task) (*models.Task, error) {
	if err := w.enter(); err != nil {
		return nil, err
	}
	if w.store != nil {
		w.store.put(updateData)
	}
	return updateData.Clone(), nil
}

func (w *fakeWriter) Delete(ctx context.Context, id string) error {
	if err := w.enter(); err != nil {
		return err
	}
	if w.store != nil {
		w.store.remove(id)
	}
	return nil
}

func (w *fakeWriter) SetStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error) {
	if err := w.enter(); err != nil {
		return nil, err
	}
	if w.store == nil {
		return nil, nil
	}
	w.store.mu.Lock()
	t := w.store.tasks[id]
	if t != nil {
		t.Status = to
		if to == models.StatusCompleted {
			now := time.Now()
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
		t = t.Clone()
	}
	w.store.mu.Unlock()
	return t, nil
}

// startEngine builds and starts an engine over the fakes with the standard
// test scope and window, marking the feed live so the poller stays idle.
func startEngine(t *testing.T, feed *fakeFeed, store *fakeStore) *Engine {
	t.Helper()
	feed.health.set(StateLive)
	e, err := NewEngine(EngineConfig{
		Scope:        models.TaskScope{AssignedTo: 101},
		WindowStart:  "2024-03-04",
		WindowEnd:    "2024-03-10",
		Feed:         feed,
		Fetcher:      store,
		PollInterval: time.Hour,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}
