package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tutorbase/internal/authz"
	"tutorbase/internal/models"
	"tutorbase/internal/services"
)

type TaskHandler struct {
	service services.TaskService
}

func NewTaskHandler(service services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

type taskRequest struct {
	Title                    string              `json:"title" binding:"required"`
	Description              string              `json:"description"`
	TaskType                 models.TaskType     `json:"task_type"`
	Priority                 models.TaskPriority `json:"priority"`
	Status                   models.TaskStatus   `json:"status"`
	AssignedTo               int64               `json:"assigned_to"`
	ScheduledDate            string              `json:"scheduled_date" binding:"required"`
	ScheduledStartTime       *string             `json:"scheduled_start_time"`
	ScheduledEndTime         *string             `json:"scheduled_end_time"`
	EstimatedDurationMinutes int                 `json:"estimated_duration_minutes"`
	SubjectID                *int64              `json:"subject_id"`
	TopicID                  *int64              `json:"topic_id"`
	ResourceID               *int64              `json:"resource_id"`
	MockExamID               *int64              `json:"mock_exam_id"`
}

func (r *taskRequest) toTask() (*models.Task, error) {
	date, err := models.ParseDateOnly(strings.TrimSpace(r.ScheduledDate))
	if err != nil {
		return nil, err
	}
	return &models.Task{
		Title:                    strings.TrimSpace(r.Title),
		Description:              r.Description,
		TaskType:                 r.TaskType,
		Priority:                 r.Priority,
		Status:                   r.Status,
		AssignedTo:               r.AssignedTo,
		ScheduledDate:            date,
		ScheduledStartTime:       r.ScheduledStartTime,
		ScheduledEndTime:         r.ScheduledEndTime,
		EstimatedDurationMinutes: r.EstimatedDurationMinutes,
		SubjectID:                r.SubjectID,
		TopicID:                  r.TopicID,
		ResourceID:               r.ResourceID,
		MockExamID:               r.MockExamID,
	}, nil
}

// canTouch mirrors the gateway's rule: students only their own tasks.
func canTouch(userID int64, roleID int, t *models.Task) bool {
	if authz.CanActForOthers(roleID) {
		return true
	}
	return t.AssignedTo == userID
}

func (h *TaskHandler) Create(c *gin.Context) {
	userID, roleID := getUserAndRole(c)

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := req.toTask()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task.AssignedBy = userID
	if roleID == authz.RoleStudent {
		if task.AssignedTo != 0 && task.AssignedTo != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "students may only schedule their own tasks"})
			return
		}
		task.AssignedTo = userID
	} else if !authz.CanAssign(roleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	created, err := h.service.Create(c.Request.Context(), task)
	if err != nil {
		log.Printf("[task][create] failed for userID=%d: err=%v", userID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Printf("[task][create] id=%s assigned_to=%d by=%d date=%s", created.ID, created.AssignedTo, created.AssignedBy, created.ScheduledDate)
	c.JSON(http.StatusCreated, created)
}

func (h *TaskHandler) GetByID(c *gin.Context) {
	userID, roleID := getUserAndRole(c)

	task, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if !canTouch(userID, roleID, task) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// List returns the tasks in a date window. Students get their own tasks; a
// coach may pass ?student= to view a student's tasks they assigned.
func (h *TaskHandler) List(c *gin.Context) {
	userID, roleID := getUserAndRole(c)

	start, err := models.ParseDateOnly(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := models.ParseDateOnly(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end precedes start"})
		return
	}

	scope, err := scopeForCaller(userID, roleID, c.Query("student"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	tasks, err := h.service.GetWindow(c.Request.Context(), scope, start, end)
	if err != nil {
		log.Printf("[task][list] window fetch failed for userID=%d: err=%v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "start": start, "end": end})
}

func (h *TaskHandler) Update(c *gin.Context) {
	userID, roleID := getUserAndRole(c)
	id := c.Param("id")

	existing, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if !canTouch(userID, roleID, existing) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := req.toTask()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.Update(c.Request.Context(), id, payload)
	if err != nil {
		log.Printf("[task][update] id=%s failed: err=%v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	userID, roleID := getUserAndRole(c)
	id := c.Param("id")

	existing, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if !canTouch(userID, roleID, existing) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		log.Printf("[task][delete] id=%s failed: err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// Toggle flips a task between completed and its active status. A completed
// task returns to pending on the REST path; the sync path remembers the
// prior status per session.
func (h *TaskHandler) Toggle(c *gin.Context) {
	userID, roleID := getUserAndRole(c)
	id := c.Param("id")

	existing, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if !canTouch(userID, roleID, existing) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	target := models.StatusCompleted
	if existing.Status == models.StatusCompleted {
		target = models.StatusPending
	}
	updated, err := h.service.SetStatus(c.Request.Context(), id, target)
	if err != nil {
		log.Printf("[task][toggle] id=%s failed: err=%v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// scopeForCaller resolves the task scope a caller may read. studentParam is
// the optional ?student= query value.
func scopeForCaller(userID int64, roleID int, studentParam string) (models.TaskScope, error) {
	if roleID == authz.RoleStudent || studentParam == "" {
		return models.TaskScope{AssignedTo: userID}, nil
	}
	studentID, err := parseID(studentParam)
	if err != nil {
		return models.TaskScope{}, err
	}
	if roleID == authz.RoleCoordinator {
		return models.TaskScope{AssignedTo: studentID}, nil
	}
	// a coach sees only the assignments they created
	return models.TaskScope{AssignedTo: studentID, AssignedBy: userID}, nil
}
