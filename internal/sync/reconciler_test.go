package sync

import (
	"testing"
	"time"

	"tutorbase/internal/models"
)

func newTestReconciler() *Reconciler {
	return NewReconciler("2024-03-04", "2024-03-10", testLogger())
}

// TestReconciler_ApplyEvent_InsertUpdateDelete verifies the basic merge
// semantics: last write wins, deletes remove.
func TestReconciler_ApplyEvent_InsertUpdateDelete(t *testing.T) {
	r := newTestReconciler()

	t1 := testTask("t1", "2024-03-05", models.StatusPending)
	if !r.ApplyEvent(Event{Type: EventInsert, TaskID: "t1", Task: t1}) {
		t.Fatal("insert should change the view")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	upd := t1.Clone()
	upd.Title = "renamed"
	if !r.ApplyEvent(Event{Type: EventUpdate, TaskID: "t1", Task: upd}) {
		t.Fatal("update with new fields should change the view")
	}
	if got := r.Get("t1"); got == nil || got.Title != "renamed" {
		t.Fatalf("Get after update = %+v, want renamed", got)
	}

	if !r.ApplyEvent(Event{Type: EventDelete, TaskID: "t1"}) {
		t.Fatal("delete of a held task should change the view")
	}
	if r.ApplyEvent(Event{Type: EventDelete, TaskID: "t1"}) {
		t.Error("second delete should be a no-op")
	}
	if r.Len() != 0 {
		t.Errorf("Len after delete = %d, want 0", r.Len())
	}
}

// TestReconciler_ApplyEvent_WindowExclusion verifies that events outside the
// window never enter the view, and that a task moved out of the window is
// removed even though it still exists server-side.
func TestReconciler_ApplyEvent_WindowExclusion(t *testing.T) {
	r := newTestReconciler()

	outside := testTask("t1", "2024-03-11", models.StatusPending)
	if r.ApplyEvent(Event{Type: EventInsert, TaskID: "t1", Task: outside}) {
		t.Fatal("insert outside the window should not change the view")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}

	inside := testTask("t2", "2024-03-06", models.StatusPending)
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "t2", Task: inside})

	moved := inside.Clone()
	moved.ScheduledDate = "2024-03-12"
	if !r.ApplyEvent(Event{Type: EventUpdate, TaskID: "t2", Task: moved}) {
		t.Fatal("moving a held task out of the window should change the view")
	}
	if r.Get("t2") != nil {
		t.Error("task moved out of the window should be gone from the view")
	}
}

// TestReconciler_ApplyEvent_Malformed verifies malformed events are dropped
// without panicking or touching the view.
func TestReconciler_ApplyEvent_Malformed(t *testing.T) {
	r := newTestReconciler()

	if r.ApplyEvent(Event{Type: EventInsert}) {
		t.Error("event without id should be dropped")
	}
	if r.ApplyEvent(Event{Type: EventUpdate, TaskID: "t1"}) {
		t.Error("insert/update without task payload should be dropped")
	}
	if r.ApplyEvent(Event{Type: "upsert", TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusPending)}) {
		t.Error("unknown event type should be dropped")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

// TestReconciler_ApplySnapshot_Convergence verifies the symmetric diff:
// snapshot-only ids appear, view-only ids disappear, shared ids update.
func TestReconciler_ApplySnapshot_Convergence(t *testing.T) {
	r := newTestReconciler()

	stale := testTask("gone", "2024-03-05", models.StatusPending)
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "gone", Task: stale})
	kept := testTask("kept", "2024-03-06", models.StatusPending)
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "kept", Task: kept})

	keptChanged := kept.Clone()
	keptChanged.Status = models.StatusInProgress
	snapshot := []models.Task{
		*keptChanged,
		*testTask("new", "2024-03-07", models.StatusPending),
	}

	if !r.ApplySnapshot(snapshot) {
		t.Fatal("snapshot with differences should change the view")
	}
	if r.Get("gone") != nil {
		t.Error("id absent from the snapshot should be removed")
	}
	if got := r.Get("kept"); got == nil || got.Status != models.StatusInProgress {
		t.Errorf("shared id should carry snapshot fields, got %+v", got)
	}
	if r.Get("new") == nil {
		t.Error("snapshot-only id should be inserted")
	}
}

// TestReconciler_ApplySnapshot_Idempotent verifies applying the same
// snapshot twice reports no change the second time.
func TestReconciler_ApplySnapshot_Idempotent(t *testing.T) {
	r := newTestReconciler()

	snapshot := []models.Task{
		*testTask("t1", "2024-03-05", models.StatusPending),
		*testTask("t2", "2024-03-06", models.StatusCompleted),
	}
	if !r.ApplySnapshot(snapshot) {
		t.Fatal("first application should change the view")
	}
	if r.ApplySnapshot(snapshot) {
		t.Error("second application of the same snapshot should be a no-op")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

// TestReconciler_ApplySnapshot_EmptyClearsView verifies an empty snapshot
// empties the view rather than being treated as an error.
func TestReconciler_ApplySnapshot_EmptyClearsView(t *testing.T) {
	r := newTestReconciler()
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusPending)})

	if !r.ApplySnapshot(nil) {
		t.Fatal("empty snapshot over a non-empty view should change it")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if r.ApplySnapshot(nil) {
		t.Error("empty snapshot over an empty view should be a no-op")
	}
}

// TestReconciler_CompletionSignal verifies OnCompleted fires only on a
// transition into completed with a known prior status.
func TestReconciler_CompletionSignal(t *testing.T) {
	r := newTestReconciler()
	var completed []string
	r.OnCompleted = func(t models.Task) { completed = append(completed, t.ID) }

	// entering the view already completed: no signal
	r.ApplySnapshot([]models.Task{*testTask("t1", "2024-03-05", models.StatusCompleted)})
	if len(completed) != 0 {
		t.Fatalf("entering completed should not signal, got %v", completed)
	}

	// pending task transitions to completed: one signal
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "t2", Task: testTask("t2", "2024-03-06", models.StatusPending)})
	done := testTask("t2", "2024-03-06", models.StatusCompleted)
	r.ApplyEvent(Event{Type: EventUpdate, TaskID: "t2", Task: done})
	if len(completed) != 1 || completed[0] != "t2" {
		t.Fatalf("completion transition should signal once for t2, got %v", completed)
	}

	// completed -> completed (field change): no further signal
	done2 := done.Clone()
	done2.Title = "renamed"
	r.ApplyEvent(Event{Type: EventUpdate, TaskID: "t2", Task: done2})
	if len(completed) != 1 {
		t.Errorf("already-completed update should not signal again, got %v", completed)
	}

	// local applies are provisional and never signal
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "t3", Task: testTask("t3", "2024-03-07", models.StatusPending)})
	r.ApplyLocal(Event{Type: EventUpdate, TaskID: "t3", Task: testTask("t3", "2024-03-07", models.StatusCompleted)})
	if len(completed) != 1 {
		t.Errorf("local apply should not signal, got %v", completed)
	}
}

// TestReconciler_SnapshotThenCompletionEvent verifies the week scenario:
// a snapshot seeds a pending task, a later update event completes it, and
// the view shows completed with a completion timestamp.
func TestReconciler_SnapshotThenCompletionEvent(t *testing.T) {
	r := newTestReconciler()

	pending := testTask("T1", "2024-03-05", models.StatusPending)
	r.ApplySnapshot([]models.Task{*pending})

	done := pending.Clone()
	done.Status = models.StatusCompleted
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	done.CompletedAt = &at
	done.UpdatedAt = at
	if !r.ApplyEvent(Event{Type: EventUpdate, TaskID: "T1", Task: done}) {
		t.Fatal("completion event should change the view")
	}

	got := r.Get("T1")
	if got == nil || got.Status != models.StatusCompleted {
		t.Fatalf("view shows %+v, want completed T1", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(at) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, at)
	}
}

// TestReconciler_SetWindow verifies the view is cleared on a window change.
func TestReconciler_SetWindow(t *testing.T) {
	r := newTestReconciler()
	r.ApplyEvent(Event{Type: EventInsert, TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusPending)})

	r.SetWindow("2024-03-11", "2024-03-17")
	if r.Len() != 0 {
		t.Errorf("view should be empty after SetWindow, Len = %d", r.Len())
	}
	start, end := r.Window()
	if start != "2024-03-11" || end != "2024-03-17" {
		t.Errorf("Window = %s..%s, want 2024-03-11..2024-03-17", start, end)
	}

	// old-window task no longer fits
	if r.ApplyEvent(Event{Type: EventInsert, TaskID: "t1", Task: testTask("t1", "2024-03-05", models.StatusPending)}) {
		t.Error("old-window task should not enter the new window's view")
	}
}

// TestReconciler_TasksOrdering verifies the view ordering: date, then start
// time with untimed tasks last, then creation time.
func TestReconciler_TasksOrdering(t *testing.T) {
	r := newTestReconciler()

	late := testTask("late", "2024-03-06", models.StatusPending)
	lateStart := "15:00"
	late.ScheduledStartTime = &lateStart

	early := testTask("early", "2024-03-06", models.StatusPending)
	earlyStart := "08:00"
	early.ScheduledStartTime = &earlyStart

	untimed := testTask("untimed", "2024-03-06", models.StatusPending)
	prev := testTask("prev", "2024-03-05", models.StatusPending)

	for _, task := range []*models.Task{late, untimed, prev, early} {
		r.ApplyEvent(Event{Type: EventInsert, TaskID: task.ID, Task: task})
	}

	got := r.Tasks()
	want := []string{"prev", "early", "late", "untimed"}
	if len(got) != len(want) {
		t.Fatalf("Tasks returned %d items, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Tasks[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}
