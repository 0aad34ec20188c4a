package models

import (
	"testing"
	"time"
)

func sampleTask() *Task {
	start := "09:00"
	subject := int64(7)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	return &Task{
		ID:                 "t1",
		Title:              "Algebra drill",
		TaskType:           TypePractice,
		Status:             StatusPending,
		Priority:           PriorityMedium,
		AssignedTo:         101,
		AssignedBy:         201,
		ScheduledDate:      "2024-03-05",
		ScheduledStartTime: &start,
		SubjectID:          &subject,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// TestTask_Clone verifies pointer fields are duplicated, not shared.
func TestTask_Clone(t *testing.T) {
	orig := sampleTask()
	c := orig.Clone()

	if !orig.Equal(c) {
		t.Fatal("clone should equal original")
	}
	*c.ScheduledStartTime = "14:00"
	if *orig.ScheduledStartTime != "09:00" {
		t.Error("mutating clone's start time leaked into original")
	}
	*c.SubjectID = 99
	if *orig.SubjectID != 7 {
		t.Error("mutating clone's subject id leaked into original")
	}
}

// TestTask_Equal verifies field-level change detection.
func TestTask_Equal(t *testing.T) {
	a := sampleTask()
	b := sampleTask()
	if !a.Equal(b) {
		t.Fatal("identical tasks should be equal")
	}

	b.Status = StatusCompleted
	if a.Equal(b) {
		t.Error("status change should break equality")
	}

	b = sampleTask()
	b.ScheduledStartTime = nil
	if a.Equal(b) {
		t.Error("nil vs set start time should break equality")
	}

	b = sampleTask()
	b.UpdatedAt = b.UpdatedAt.Add(time.Second)
	if a.Equal(b) {
		t.Error("updatedAt change should break equality")
	}
}

// TestTaskScope_Contains verifies assignee and assigner filtering.
func TestTaskScope_Contains(t *testing.T) {
	task := sampleTask() // assignedTo=101 assignedBy=201

	if !(TaskScope{AssignedTo: 101}).Contains(task) {
		t.Error("scope on assignee alone should contain the task")
	}
	if (TaskScope{AssignedTo: 102}).Contains(task) {
		t.Error("scope for another assignee should not contain the task")
	}
	if !(TaskScope{AssignedTo: 101, AssignedBy: 201}).Contains(task) {
		t.Error("scope with matching assigner should contain the task")
	}
	if (TaskScope{AssignedTo: 101, AssignedBy: 202}).Contains(task) {
		t.Error("scope with different assigner should not contain the task")
	}
	if (TaskScope{AssignedTo: 101}).Contains(nil) {
		t.Error("nil task is never in scope")
	}
}
