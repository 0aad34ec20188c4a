package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tutorbase/internal/models"
)

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	// FindWindow returns every task visible to the scope whose scheduled_date
	// falls inside [start, end], ordered by (scheduled_date,
	// scheduled_start_time, created_at). Pure and idempotent; this is the
	// snapshot query used for both the initial load and each poll tick.
	FindWindow(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, title, description, task_type, status, priority,
       assigned_to, assigned_by,
       scheduled_date, scheduled_start_time, scheduled_end_time, estimated_duration_minutes,
       subject_id, topic_id, resource_id, mock_exam_id,
       created_at, updated_at, completed_at`

func scanTask(row interface{ Scan(...interface{}) error }, t *models.Task) error {
	var (
		startTime sql.NullString
		endTime   sql.NullString
		subject   sql.NullInt64
		topic     sql.NullInt64
		resource  sql.NullInt64
		mockExam  sql.NullInt64
		completed sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.TaskType, &t.Status, &t.Priority,
		&t.AssignedTo, &t.AssignedBy,
		&t.ScheduledDate, &startTime, &endTime, &t.EstimatedDurationMinutes,
		&subject, &topic, &resource, &mockExam,
		&t.CreatedAt, &t.UpdatedAt, &completed,
	)
	if err != nil {
		return err
	}
	if startTime.Valid {
		s := startTime.String
		t.ScheduledStartTime = &s
	}
	if endTime.Valid {
		s := endTime.String
		t.ScheduledEndTime = &s
	}
	if subject.Valid {
		v := subject.Int64
		t.SubjectID = &v
	}
	if topic.Valid {
		v := topic.Int64
		t.TopicID = &v
	}
	if resource.Valid {
		v := resource.Int64
		t.ResourceID = &v
	}
	if mockExam.Valid {
		v := mockExam.Int64
		t.MockExamID = &v
	}
	if completed.Valid {
		at := completed.Time
		t.CompletedAt = &at
	}
	return nil
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, title, description, task_type, status, priority,
			assigned_to, assigned_by,
			scheduled_date, scheduled_start_time, scheduled_end_time, estimated_duration_minutes,
			subject_id, topic_id, resource_id, mock_exam_id,
			created_at, updated_at, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		task.ID, task.Title, task.Description, task.TaskType, task.Status, task.Priority,
		task.AssignedTo, task.AssignedBy,
		task.ScheduledDate, task.ScheduledStartTime, task.ScheduledEndTime, task.EstimatedDurationMinutes,
		task.SubjectID, task.TopicID, task.ResourceID, task.MockExamID,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task := &models.Task{}
	err := scanTask(r.db.QueryRowContext(ctx, query, id), task)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) FindWindow(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error) {
	conditions := []string{"assigned_to = $1", "scheduled_date >= $2", "scheduled_date <= $3"}
	args := []interface{}{scope.AssignedTo, start, end}

	if scope.AssignedBy != 0 {
		conditions = append(conditions, fmt.Sprintf("assigned_by = $%d", len(args)+1))
		args = append(args, scope.AssignedBy)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY scheduled_date, scheduled_start_time NULLS LAST, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	// assigned_to/assigned_by are immutable after creation and deliberately
	// absent from the SET list.
	query := `
		UPDATE tasks SET
			title=$1, description=$2, task_type=$3, status=$4, priority=$5,
			scheduled_date=$6, scheduled_start_time=$7, scheduled_end_time=$8,
			estimated_duration_minutes=$9,
			subject_id=$10, topic_id=$11, resource_id=$12, mock_exam_id=$13,
			updated_at=$14, completed_at=$15
		WHERE id=$16`
	res, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.TaskType, task.Status, task.Priority,
		task.ScheduledDate, task.ScheduledStartTime, task.ScheduledEndTime,
		task.EstimatedDurationMinutes,
		task.SubjectID, task.TopicID, task.ResourceID, task.MockExamID,
		task.UpdatedAt, task.CompletedAt, task.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task not found")
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

func (r *taskRepository) SetStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error) {
	// completed_at tracks the completed transition in both directions.
	query := `
		UPDATE tasks SET
			status=$1,
			completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE NULL END,
			updated_at = NOW()
		WHERE id=$2
		RETURNING ` + taskColumns
	task := &models.Task{}
	err := scanTask(r.db.QueryRowContext(ctx, query, to, id), task)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}
