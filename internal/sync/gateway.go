package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutorbase/internal/authz"
	"tutorbase/internal/models"
)

// MutationKind names the operations a local actor may request.
type MutationKind string

const (
	MutationCreate         MutationKind = "create"
	MutationUpdate         MutationKind = "update"
	MutationDelete         MutationKind = "delete"
	MutationToggleComplete MutationKind = "toggle_complete"
)

// Mutation is one requested change. Task carries the payload for create and
// update; TaskID addresses the target for update, delete and toggle.
type Mutation struct {
	Kind   MutationKind
	TaskID string
	Task   *models.Task
}

// Caller identifies who is asking.
type Caller struct {
	UserID int64
	RoleID int
}

// Gateway is the only path by which a local actor mutates a task: an
// optimistic apply into the engine's view, the remote write, and a rollback
// if the write is rejected. The authoritative echo of a successful write
// arrives later via the feed or a poll and is idempotent against the
// optimistic value.
//
// Concurrent mutations for the same task id from the same client are
// rejected with ErrBusy rather than queued; the simpler policy, applied
// uniformly.
type Gateway struct {
	engine *Engine
	writer RemoteWriter
	logger *log.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	// priorStatus remembers, per task, the status a completed task should
	// return to when toggled back. Falls back to pending.
	priorStatus map[string]models.TaskStatus
}

func NewGateway(engine *Engine, writer RemoteWriter, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	return &Gateway{
		engine:      engine,
		writer:      writer,
		logger:      logger,
		inflight:    make(map[string]struct{}),
		priorStatus: make(map[string]models.TaskStatus),
	}
}

// Mutate runs one mutation to completion. It blocks its caller for the
// duration of the remote write but never blocks the engine's apply queue;
// feed events for other tasks keep flowing while a slow write is in flight.
func (g *Gateway) Mutate(ctx context.Context, caller Caller, m Mutation) (*models.Task, error) {
	switch m.Kind {
	case MutationCreate:
		return g.create(ctx, caller, m)
	case MutationUpdate:
		return g.update(ctx, caller, m)
	case MutationDelete:
		return nil, g.delete(ctx, caller, m)
	case MutationToggleComplete:
		return g.toggleComplete(ctx, caller, m)
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

func (g *Gateway) create(ctx context.Context, caller Caller, m Mutation) (*models.Task, error) {
	if m.Task == nil {
		return nil, fmt.Errorf("create requires a task payload")
	}
	task := m.Task.Clone()
	task.AssignedBy = caller.UserID
	if caller.RoleID == authz.RoleStudent {
		// Students self-assign; they cannot schedule for anyone else.
		if task.AssignedTo != 0 && task.AssignedTo != caller.UserID {
			return nil, ErrForbidden
		}
		task.AssignedTo = caller.UserID
	} else if !authz.CanAssign(caller.RoleID) {
		return nil, ErrForbidden
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := g.acquire(task.ID); err != nil {
		return nil, err
	}
	defer g.release(task.ID)

	g.engine.applyOptimistic(Event{Type: EventInsert, TaskID: task.ID, Task: task})

	created, err := g.writer.Create(ctx, task.Clone())
	if err != nil {
		g.logger.Printf("[gateway] create %s rejected: %v", task.ID, err)
		g.engine.applyRollback(task.ID, nil)
		return nil, fmt.Errorf("%w: %v", ErrRemoteRejected, err)
	}
	// Reconcile the authoritative row immediately; the feed echo no-ops.
	g.engine.applyOptimistic(Event{Type: EventUpdate, TaskID: created.ID, Task: created})
	return created, nil
}

func (g *Gateway) update(ctx context.Context, caller Caller, m Mutation) (*models.Task, error) {
	if m.Task == nil || m.TaskID == "" {
		return nil, fmt.Errorf("update requires a task id and payload")
	}
	prior := g.engine.Get(m.TaskID)
	if prior == nil {
		return nil, fmt.Errorf("task %s not in view", m.TaskID)
	}
	if err := g.authorize(caller, prior); err != nil {
		return nil, err
	}

	if err := g.acquire(m.TaskID); err != nil {
		return nil, err
	}
	defer g.release(m.TaskID)

	next := m.Task.Clone()
	next.ID = prior.ID
	next.AssignedTo = prior.AssignedTo
	next.AssignedBy = prior.AssignedBy
	next.CreatedAt = prior.CreatedAt
	next.UpdatedAt = time.Now()

	g.engine.applyOptimistic(Event{Type: EventUpdate, TaskID: next.ID, Task: next})

	updated, err := g.writer.Update(ctx, m.TaskID, next.Clone())
	if err != nil {
		g.logger.Printf("[gateway] update %s rejected: %v", m.TaskID, err)
		g.engine.applyRollback(m.TaskID, prior)
		return nil, fmt.Errorf("%w: %v", ErrRemoteRejected, err)
	}
	if updated == nil {
		g.engine.applyRollback(m.TaskID, prior)
		return nil, fmt.Errorf("%w: task %s no longer exists", ErrRemoteRejected, m.TaskID)
	}
	g.engine.applyOptimistic(Event{Type: EventUpdate, TaskID: updated.ID, Task: updated})
	if updated.Status == models.StatusCompleted && prior.Status != models.StatusCompleted {
		g.engine.emitCompletion(*updated.Clone())
	}
	return updated, nil
}

func (g *Gateway) delete(ctx context.Context, caller Caller, m Mutation) error {
	if m.TaskID == "" {
		return fmt.Errorf("delete requires a task id")
	}
	prior := g.engine.Get(m.TaskID)
	if prior == nil {
		return fmt.Errorf("task %s not in view", m.TaskID)
	}
	if err := g.authorize(caller, prior); err != nil {
		return err
	}

	if err := g.acquire(m.TaskID); err != nil {
		return err
	}
	defer g.release(m.TaskID)

	g.engine.applyOptimistic(Event{Type: EventDelete, TaskID: m.TaskID})

	if err := g.writer.Delete(ctx, m.TaskID); err != nil {
		g.logger.Printf("[gateway] delete %s rejected: %v", m.TaskID, err)
		g.engine.applyRollback(m.TaskID, prior)
		return fmt.Errorf("%w: %v", ErrRemoteRejected, err)
	}
	return nil
}

// toggleComplete flips status between completed and the task's prior
// non-completed status, defaulting to pending, and sets or clears
// completedAt to match.
func (g *Gateway) toggleComplete(ctx context.Context, caller Caller, m Mutation) (*models.Task, error) {
	if m.TaskID == "" {
		return nil, fmt.Errorf("toggle requires a task id")
	}
	prior := g.engine.Get(m.TaskID)
	if prior == nil {
		return nil, fmt.Errorf("task %s not in view", m.TaskID)
	}
	if err := g.authorize(caller, prior); err != nil {
		return nil, err
	}

	if err := g.acquire(m.TaskID); err != nil {
		return nil, err
	}
	defer g.release(m.TaskID)

	var target models.TaskStatus
	if prior.Status == models.StatusCompleted {
		target = g.restoreStatus(m.TaskID)
	} else {
		target = models.StatusCompleted
		g.rememberStatus(m.TaskID, prior.Status)
	}

	next := prior.Clone()
	next.Status = target
	next.UpdatedAt = time.Now()
	if target == models.StatusCompleted {
		at := next.UpdatedAt
		next.CompletedAt = &at
	} else {
		next.CompletedAt = nil
	}

	g.engine.applyOptimistic(Event{Type: EventUpdate, TaskID: next.ID, Task: next})

	updated, err := g.writer.SetStatus(ctx, m.TaskID, target)
	if err != nil {
		g.logger.Printf("[gateway] toggle %s rejected: %v", m.TaskID, err)
		g.engine.applyRollback(m.TaskID, prior)
		g.forgetStatus(m.TaskID, prior.Status)
		return nil, fmt.Errorf("%w: %v", ErrRemoteRejected, err)
	}
	if updated == nil {
		g.engine.applyRollback(m.TaskID, prior)
		g.forgetStatus(m.TaskID, prior.Status)
		return nil, fmt.Errorf("%w: task %s no longer exists", ErrRemoteRejected, m.TaskID)
	}
	g.engine.applyOptimistic(Event{Type: EventUpdate, TaskID: updated.ID, Task: updated})
	if updated.Status == models.StatusCompleted && prior.Status != models.StatusCompleted {
		g.engine.emitCompletion(*updated.Clone())
	}
	return updated, nil
}

// authorize applies the coarse role check: a coach or coordinator may mutate
// any task in scope, a student only tasks assigned to them.
func (g *Gateway) authorize(caller Caller, task *models.Task) error {
	if authz.CanActForOthers(caller.RoleID) {
		return nil
	}
	if task.AssignedTo != caller.UserID {
		return ErrForbidden
	}
	return nil
}

func (g *Gateway) acquire(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[id]; busy {
		return ErrBusy
	}
	g.inflight[id] = struct{}{}
	return nil
}

func (g *Gateway) release(id string) {
	g.mu.Lock()
	delete(g.inflight, id)
	g.mu.Unlock()
}

func (g *Gateway) rememberStatus(id string, s models.TaskStatus) {
	g.mu.Lock()
	g.priorStatus[id] = s
	g.mu.Unlock()
}

func (g *Gateway) restoreStatus(id string) models.TaskStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.priorStatus[id]; ok && s != models.StatusCompleted {
		delete(g.priorStatus, id)
		return s
	}
	return models.StatusPending
}

// forgetStatus undoes rememberStatus after a rejected toggle into completed.
func (g *Gateway) forgetStatus(id string, priorWas models.TaskStatus) {
	if priorWas == models.StatusCompleted {
		return
	}
	g.mu.Lock()
	delete(g.priorStatus, id)
	g.mu.Unlock()
}
