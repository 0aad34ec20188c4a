package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tutorbase/internal/models"
	"tutorbase/internal/repositories"
)

// TaskService defines the business logic for scheduled-task writes. It is the
// remote-write collaborator behind the sync gateway as well as the REST
// handlers.
type TaskService interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetWindow(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error)
	Update(ctx context.Context, id string, updateData *models.Task) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error)
}

type taskService struct {
	repo repositories.TaskRepository
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(repo repositories.TaskRepository) TaskService {
	return &taskService{repo: repo}
}

func (s *taskService) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.ScheduledDate.IsZero() {
		return nil, fmt.Errorf("scheduled_date is required")
	}
	if task.AssignedTo == 0 || task.AssignedBy == 0 {
		return nil, fmt.Errorf("assigned_to and assigned_by are required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.TaskType == "" {
		task.TaskType = models.TypeStudy
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.repo.Store(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) GetWindow(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error) {
	return s.repo.FindWindow(ctx, scope, start, end)
}

func (s *taskService) Update(ctx context.Context, id string, updateData *models.Task) (*models.Task, error) {
	existingTask, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existingTask == nil {
		return nil, nil
	}

	// Ownership fields stay as stored; everything else follows the payload.
	existingTask.Title = updateData.Title
	existingTask.Description = updateData.Description
	existingTask.TaskType = updateData.TaskType
	existingTask.Priority = updateData.Priority
	existingTask.ScheduledDate = updateData.ScheduledDate
	existingTask.ScheduledStartTime = updateData.ScheduledStartTime
	existingTask.ScheduledEndTime = updateData.ScheduledEndTime
	existingTask.EstimatedDurationMinutes = updateData.EstimatedDurationMinutes
	existingTask.SubjectID = updateData.SubjectID
	existingTask.TopicID = updateData.TopicID
	existingTask.ResourceID = updateData.ResourceID
	existingTask.MockExamID = updateData.MockExamID

	if updateData.Status != "" && updateData.Status != existingTask.Status {
		if !CanTransitionTask(existingTask.Status, updateData.Status) {
			return nil, fmt.Errorf("invalid status transition %s -> %s", existingTask.Status, updateData.Status)
		}
		applyStatus(existingTask, updateData.Status)
	}

	existingTask.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, existingTask); err != nil {
		return nil, err
	}
	return existingTask, nil
}

func (s *taskService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *taskService) SetStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if to == existing.Status {
		return existing, nil
	}
	if !CanTransitionTask(existing.Status, to) {
		return nil, fmt.Errorf("invalid status transition %s -> %s", existing.Status, to)
	}
	return s.repo.SetStatus(ctx, id, to)
}

// applyStatus mirrors the repository's completed_at rule for the in-memory
// copy so the returned task matches what the row will hold.
func applyStatus(t *models.Task, to models.TaskStatus) {
	t.Status = to
	if to == models.StatusCompleted {
		now := time.Now()
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
}
