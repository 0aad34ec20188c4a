package sync

import (
	"testing"
	"time"

	"tutorbase/internal/models"
)

// TestEngine_InitialSnapshot verifies the view fills from the first fetch.
func TestEngine_InitialSnapshot(t *testing.T) {
	store := newFakeStore(
		testTask("t1", "2024-03-05", models.StatusPending),
		testTask("t2", "2024-03-06", models.StatusPending),
	)
	e := startEngine(t, newFakeFeed(), store)

	waitFor(t, "initial snapshot to populate the view", func() bool {
		return len(e.Tasks()) == 2
	})
}

// TestEngine_FeedEventUpdatesView verifies push events flow into the view
// and signal Updates.
func TestEngine_FeedEventUpdatesView(t *testing.T) {
	feed := newFakeFeed()
	e := startEngine(t, feed, newFakeStore())

	feed.emit(Event{Type: EventInsert, TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusPending)})
	waitFor(t, "feed insert to appear", func() bool {
		return e.Get("t1") != nil
	})

	select {
	case <-e.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal after view change")
	}

	feed.emit(Event{Type: EventDelete, TaskID: "t1"})
	waitFor(t, "feed delete to apply", func() bool {
		return e.Get("t1") == nil
	})
}

// TestEngine_OutOfWindowNeverVisible verifies the engine-side window guard:
// a feed event for a date outside the window stays out of the view.
func TestEngine_OutOfWindowNeverVisible(t *testing.T) {
	feed := newFakeFeed()
	e := startEngine(t, feed, newFakeStore())

	feed.emit(Event{Type: EventInsert, TaskID: "leak", Task: testTask("leak", "2024-03-20", models.StatusPending)})

	time.Sleep(50 * time.Millisecond)
	if e.Get("leak") != nil {
		t.Error("out-of-window task leaked into the view")
	}
}

// TestEngine_SetWindowRebuildsView verifies a window change clears the old
// view and converges on the new window's tasks.
func TestEngine_SetWindowRebuildsView(t *testing.T) {
	store := newFakeStore(
		testTask("week1", "2024-03-05", models.StatusPending),
		testTask("week2", "2024-03-12", models.StatusPending),
	)
	e := startEngine(t, newFakeFeed(), store)

	waitFor(t, "first window to load", func() bool {
		tasks := e.Tasks()
		return len(tasks) == 1 && tasks[0].ID == "week1"
	})

	if err := e.SetWindow("2024-03-11", "2024-03-17"); err != nil {
		t.Fatalf("SetWindow failed: %v", err)
	}
	waitFor(t, "second window to load", func() bool {
		tasks := e.Tasks()
		return len(tasks) == 1 && tasks[0].ID == "week2"
	})

	start, end := e.Window()
	if start != "2024-03-11" || end != "2024-03-17" {
		t.Errorf("Window = %s..%s, want 2024-03-11..2024-03-17", start, end)
	}
}

// TestEngine_SetWindowRejectsInvalid verifies bound validation.
func TestEngine_SetWindowRejectsInvalid(t *testing.T) {
	e := startEngine(t, newFakeFeed(), newFakeStore())

	if err := e.SetWindow("2024-03-10", "2024-03-04"); err == nil {
		t.Error("inverted window should be rejected")
	}
	if err := e.SetWindow("", "2024-03-10"); err == nil {
		t.Error("empty start should be rejected")
	}
}

// TestEngine_PollerRepairsMissedEvent verifies the pull channel converges
// the view when the feed misses a change while degraded.
func TestEngine_PollerRepairsMissedEvent(t *testing.T) {
	feed := newFakeFeed()
	store := newFakeStore()
	feed.health.set(StateDegraded)

	e, err := NewEngine(EngineConfig{
		Scope:        models.TaskScope{AssignedTo: 101},
		WindowStart:  "2024-03-04",
		WindowEnd:    "2024-03-10",
		Feed:         feed,
		Fetcher:      store,
		PollInterval: 20 * time.Millisecond,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	// the row appears server-side with no feed event
	store.put(testTask("missed", "2024-03-05", models.StatusPending))
	waitFor(t, "poller to pick up the missed row", func() bool {
		return e.Get("missed") != nil
	})
}

// TestEngine_CompletionStream verifies a remote transition into completed
// surfaces on Completions.
func TestEngine_CompletionStream(t *testing.T) {
	feed := newFakeFeed()
	e := startEngine(t, feed, newFakeStore())

	feed.emit(Event{Type: EventInsert, TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusPending)})
	waitFor(t, "task to enter the view", func() bool {
		return e.Get("t1") != nil
	})

	feed.emit(Event{Type: EventUpdate, TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusCompleted)})
	select {
	case task := <-e.Completions():
		if task.ID != "t1" {
			t.Errorf("completion for %s, want t1", task.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no completion signal")
	}
}

// TestEngine_CloseIdempotent verifies Close is safe to call twice and stops
// the loop.
func TestEngine_CloseIdempotent(t *testing.T) {
	e := startEngine(t, newFakeFeed(), newFakeStore())
	e.Close()
	e.Close()
}

// TestEngine_FetchErrorRecovered verifies a failed initial fetch is
// eventually repaired by the poller.
func TestEngine_FetchErrorRecovered(t *testing.T) {
	feed := newFakeFeed()
	store := newFakeStore(testTask("t1", "2024-03-05", models.StatusPending))
	store.errs = 1 // initial fetch fails
	feed.health.set(StateDegraded)

	e, err := NewEngine(EngineConfig{
		Scope:        models.TaskScope{AssignedTo: 101},
		WindowStart:  "2024-03-04",
		WindowEnd:    "2024-03-10",
		Feed:         feed,
		Fetcher:      store,
		PollInterval: 20 * time.Millisecond,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	waitFor(t, "poller to recover from the failed fetch", func() bool {
		return e.Get("t1") != nil
	})
}
