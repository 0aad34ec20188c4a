package sync

import (
	"log"
	"sort"

	"tutorbase/internal/models"
)

// Reconciler owns the authoritative TaskView for one window: at most one
// task per id, field values reflecting the most recent accepted write.
//
// It is not safe for concurrent use. The engine owns it and serializes every
// ApplyEvent/ApplySnapshot call through its apply goroutine; two callers
// racing on the same view is exactly the bug class this package exists to
// eliminate.
type Reconciler struct {
	windowStart models.DateOnly
	windowEnd   models.DateOnly
	tasks       map[string]*models.Task
	logger      *log.Logger

	// OnCompleted, if set, is invoked whenever an authoritative signal
	// (feed event, snapshot, confirmed write) transitions a task's status
	// into completed. Consumed by the engine to feed the completion stream;
	// never called for tasks that enter the view already completed, and
	// never for optimistic applies, which may still be rolled back.
	OnCompleted func(models.Task)
}

func NewReconciler(windowStart, windowEnd models.DateOnly, logger *log.Logger) *Reconciler {
	return &Reconciler{
		windowStart: windowStart,
		windowEnd:   windowEnd,
		tasks:       make(map[string]*models.Task),
		logger:      logger,
	}
}

// Window returns the active date range.
func (r *Reconciler) Window() (start, end models.DateOnly) {
	return r.windowStart, r.windowEnd
}

// SetWindow replaces the active range and clears the view. The caller is
// responsible for triggering a fresh snapshot fetch.
func (r *Reconciler) SetWindow(start, end models.DateOnly) {
	r.windowStart = start
	r.windowEnd = end
	r.tasks = make(map[string]*models.Task)
}

// ApplyEvent merges one change event into the view and reports whether the
// visible view changed.
//
// Inserts and updates inside the window overwrite unconditionally:
// last-write-wins by arrival order, because the feed and the snapshot source
// both reflect server-committed state. An update that moves a task outside
// the window removes it from the view even though it still exists
// server-side. Malformed events (missing id, or missing task payload on
// insert/update) are dropped and logged, never fatal.
func (r *Reconciler) ApplyEvent(ev Event) bool {
	return r.applyEvent(ev, true)
}

// ApplyLocal applies a locally originated event, optimistic or rollback,
// without firing OnCompleted. The completion stream only carries
// server-confirmed transitions.
func (r *Reconciler) ApplyLocal(ev Event) bool {
	return r.applyEvent(ev, false)
}

func (r *Reconciler) applyEvent(ev Event, notify bool) bool {
	id := ev.TaskID
	if id == "" && ev.Task != nil {
		id = ev.Task.ID
	}
	if id == "" {
		r.logger.Printf("[reconcile] dropping malformed %s event: missing id", ev.Type)
		return false
	}

	switch ev.Type {
	case EventDelete:
		if _, ok := r.tasks[id]; !ok {
			return false
		}
		delete(r.tasks, id)
		return true

	case EventInsert, EventUpdate:
		if ev.Task == nil {
			r.logger.Printf("[reconcile] dropping malformed %s event for %s: missing task", ev.Type, id)
			return false
		}
		if !ev.Task.ScheduledDate.Within(r.windowStart, r.windowEnd) {
			// Moved out of range; drop from the view if we were holding it.
			if _, ok := r.tasks[id]; ok {
				delete(r.tasks, id)
				return true
			}
			return false
		}
		prev := r.tasks[id]
		next := ev.Task.Clone()
		r.tasks[id] = next
		if notify {
			r.noteCompletion(prev, next)
		}
		return prev == nil || !prev.Equal(next)

	default:
		r.logger.Printf("[reconcile] dropping event with unknown type %q for %s", ev.Type, id)
		return false
	}
}

// ApplySnapshot reconciles the view against a full window snapshot and
// reports whether anything changed.
//
// Ids present only in the snapshot are inserted; ids present only in the
// view are removed (covering deletes and out-of-scope reassignment the feed
// missed); ids present in both are updated only when their fields actually
// differ, to avoid redundant downstream notification. Applying the same
// snapshot twice is an exact no-op the second time. This is the single
// mechanism that guarantees eventual consistency even if the feed silently
// drops an event.
func (r *Reconciler) ApplySnapshot(tasks []models.Task) bool {
	changed := false
	seen := make(map[string]struct{}, len(tasks))

	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			r.logger.Printf("[reconcile] dropping malformed snapshot row: missing id")
			continue
		}
		if !t.ScheduledDate.Within(r.windowStart, r.windowEnd) {
			// The fetch is window-bounded already; anything else is a stale
			// result and does not belong in this view.
			continue
		}
		seen[t.ID] = struct{}{}
		prev := r.tasks[t.ID]
		if prev != nil && prev.Equal(t) {
			continue
		}
		next := t.Clone()
		r.tasks[t.ID] = next
		r.noteCompletion(prev, next)
		changed = true
	}

	for id := range r.tasks {
		if _, ok := seen[id]; !ok {
			delete(r.tasks, id)
			changed = true
		}
	}
	return changed
}

// Get returns a copy of the task with the given id, or nil.
func (r *Reconciler) Get(id string) *models.Task {
	return r.tasks[id].Clone()
}

// Len returns the number of tasks in the view.
func (r *Reconciler) Len() int {
	return len(r.tasks)
}

// Tasks returns a copy of the view ordered by (scheduledDate,
// scheduledStartTime, createdAt).
func (r *Reconciler) Tasks() []models.Task {
	out := make([]models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if a.ScheduledDate != b.ScheduledDate {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		as, bs := startTimeKey(a), startTimeKey(b)
		if as != bs {
			return as < bs
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// startTimeKey sorts tasks without a start time after timed ones on the same
// day, matching the repository's NULLS LAST ordering.
func startTimeKey(t *models.Task) string {
	if t.ScheduledStartTime == nil {
		return "~"
	}
	return *t.ScheduledStartTime
}

func (r *Reconciler) noteCompletion(prev, next *models.Task) {
	if r.OnCompleted == nil {
		return
	}
	if next.Status != models.StatusCompleted {
		return
	}
	if prev == nil || prev.Status == models.StatusCompleted {
		return
	}
	r.OnCompleted(*next.Clone())
}
