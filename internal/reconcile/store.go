package reconcile

import (
	"context"
	"time"

	"calsync/internal/model"
)

// EventQuery selects events for ListEvents. Listings always expand recurring
// events into single occurrences ordered by start time.
type EventQuery struct {
	TimeMin  time.Time
	PageSize int
}

// TaskQuery selects tasks for ListTasks. Hidden and completed tasks are
// always included.
type TaskQuery struct {
	PageSize int
}

// EventStore is the calendar side the Reconciler writes to.
type EventStore interface {
	// GetEvent reports found=false with a nil error when the id is unknown.
	GetEvent(ctx context.Context, calendarID, eventID string) (ev model.RemoteEvent, found bool, err error)
	InsertEvent(ctx context.Context, calendarID string, ev model.EventPayload) (model.RemoteEvent, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev model.EventPayload) (model.RemoteEvent, error)
	// ListEvents follows pagination to the end.
	ListEvents(ctx context.Context, calendarID string, q EventQuery) ([]model.RemoteEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// TaskStore is the task-list side the Reconciler writes to.
type TaskStore interface {
	// ListTasks follows pagination to the end and keeps the service order.
	ListTasks(ctx context.Context, tasklistID string, q TaskQuery) ([]model.RemoteTask, error)
	InsertTask(ctx context.Context, tasklistID string, t model.TaskPayload) (model.RemoteTask, error)
	// UpdateTask replaces title, notes and due of taskID and keeps
	// everything else (completion state included).
	UpdateTask(ctx context.Context, tasklistID, taskID string, t model.TaskPayload) (model.RemoteTask, error)
	DeleteTask(ctx context.Context, tasklistID, taskID string) error
}
