package models

import "time"

// TaskStatus defines the possible statuses for a scheduled task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskType classifies what kind of study activity a task represents.
type TaskType string

const (
	TypeStudy           TaskType = "study"
	TypePractice        TaskType = "practice"
	TypeExam            TaskType = "exam"
	TypeReview          TaskType = "review"
	TypeResource        TaskType = "resource"
	TypeCoachingSession TaskType = "coaching_session"
)

// Task represents a scheduled study task assigned by a coach to a student.
//
// AssignedTo and AssignedBy are immutable after creation. CompletedAt is set
// exactly when Status transitions into completed and cleared when it
// transitions out.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	TaskType    TaskType     `json:"task_type"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`

	AssignedTo int64 `json:"assigned_to"`
	AssignedBy int64 `json:"assigned_by"`

	ScheduledDate            DateOnly `json:"scheduled_date"`
	ScheduledStartTime       *string  `json:"scheduled_start_time,omitempty"` // "HH:MM"
	ScheduledEndTime         *string  `json:"scheduled_end_time,omitempty"`   // "HH:MM"
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`

	// Display-only references; not part of the sync contract.
	SubjectID  *int64 `json:"subject_id,omitempty"`
	TopicID    *int64 `json:"topic_id,omitempty"`
	ResourceID *int64 `json:"resource_id,omitempty"`
	MockExamID *int64 `json:"mock_exam_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy with pointer fields duplicated, so callers can hold a
// Task without sharing mutable state with the view.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.ScheduledStartTime = clonePtr(t.ScheduledStartTime)
	c.ScheduledEndTime = clonePtr(t.ScheduledEndTime)
	c.SubjectID = clonePtr(t.SubjectID)
	c.TopicID = clonePtr(t.TopicID)
	c.ResourceID = clonePtr(t.ResourceID)
	c.MockExamID = clonePtr(t.MockExamID)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// Equal reports whether two tasks carry the same field values. Used by the
// reconciler's change detection to avoid redundant downstream notification.
func (t *Task) Equal(o *Task) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID &&
		t.Title == o.Title &&
		t.Description == o.Description &&
		t.TaskType == o.TaskType &&
		t.Status == o.Status &&
		t.Priority == o.Priority &&
		t.AssignedTo == o.AssignedTo &&
		t.AssignedBy == o.AssignedBy &&
		t.ScheduledDate == o.ScheduledDate &&
		ptrEq(t.ScheduledStartTime, o.ScheduledStartTime) &&
		ptrEq(t.ScheduledEndTime, o.ScheduledEndTime) &&
		t.EstimatedDurationMinutes == o.EstimatedDurationMinutes &&
		ptrEq(t.SubjectID, o.SubjectID) &&
		ptrEq(t.TopicID, o.TopicID) &&
		ptrEq(t.ResourceID, o.ResourceID) &&
		ptrEq(t.MockExamID, o.MockExamID) &&
		t.UpdatedAt.Equal(o.UpdatedAt) &&
		timePtrEq(t.CompletedAt, o.CompletedAt)
}

// TaskScope bounds which tasks a caller may see: assignee always, assigner
// only when the caller is a coach looking at their own assignments.
type TaskScope struct {
	AssignedTo int64
	AssignedBy int64 // 0 means any assigner
}

// Contains reports whether a task falls inside the scope.
func (s TaskScope) Contains(t *Task) bool {
	if t == nil {
		return false
	}
	if t.AssignedTo != s.AssignedTo {
		return false
	}
	if s.AssignedBy != 0 && t.AssignedBy != s.AssignedBy {
		return false
	}
	return true
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
