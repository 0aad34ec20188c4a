package services

import "tutorbase/internal/models"

// Allowed task status transitions. Toggle-complete flips between completed
// and the prior non-completed status, so completed must be able to reach
// every non-completed status and every status must be able to reach
// completed, cancelled included.
var TaskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusPending:    {models.StatusInProgress: true, models.StatusCompleted: true, models.StatusCancelled: true},
	models.StatusInProgress: {models.StatusPending: true, models.StatusCompleted: true, models.StatusCancelled: true},
	models.StatusCompleted:  {models.StatusPending: true, models.StatusInProgress: true, models.StatusCancelled: true},
	models.StatusCancelled:  {models.StatusPending: true, models.StatusCompleted: true},
}

func CanTransitionTask(current, to models.TaskStatus) bool {
	if current == "" {
		return true
	}
	nexts, ok := TaskTransitions[current]
	if !ok {
		return false
	}
	return nexts[to]
}
