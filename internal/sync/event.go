package sync

import (
	"context"

	"tutorbase/internal/models"
)

// EventType represents the kind of row-level change carried by the feed.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one row-level change. Task is nil for deletes; TaskID is always
// set for well-formed events.
type Event struct {
	Type   EventType
	TaskID string
	Task   *models.Task
}

// ChangeFeed delivers row-level change events for a filtered scope. The feed
// never emits an event outside the subscriber's scope; if the transport
// cannot filter server-side, the feed filters before emission.
type ChangeFeed interface {
	// Subscribe returns the event stream and a cancel function releasing the
	// subscription. The channel is closed when the feed shuts down.
	Subscribe(scope models.TaskScope) (<-chan Event, func(), error)
	// Health reports the connection state shared by all subscribers.
	Health() *ConnectionHealth
}

// SnapshotFetcher returns the full current set of tasks visible to the scope
// inside [start, end]. Pure, stateless, idempotent; errors are transient and
// retried by the caller.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error)
}

// FetcherFunc adapts a function to the SnapshotFetcher interface.
type FetcherFunc func(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error)

func (f FetcherFunc) Fetch(ctx context.Context, scope models.TaskScope, start, end models.DateOnly) ([]models.Task, error) {
	return f(ctx, scope, start, end)
}

// RemoteWriter is the authoritative write path behind the gateway.
// services.TaskService satisfies it.
type RemoteWriter interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	Update(ctx context.Context, id string, updateData *models.Task) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, to models.TaskStatus) (*models.Task, error)
}
