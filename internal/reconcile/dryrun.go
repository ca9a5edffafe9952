package reconcile

import (
	"context"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

type dryRunEvents struct {
	EventStore
}

// DryRunEvents passes reads through to s and only logs writes.
func DryRunEvents(s EventStore) EventStore {
	return dryRunEvents{EventStore: s}
}

func (d dryRunEvents) InsertEvent(_ context.Context, calendarID string, ev model.EventPayload) (model.RemoteEvent, error) {
	appLog.Info("dry-run: would insert event", "calendar", calendarID, "event_id", ev.ID, "title", ev.Summary,
		"start", ev.Start, "end", ev.End)
	return model.RemoteEvent{ID: ev.ID, Summary: ev.Summary, Start: ev.Start, SourceUID: ev.SourceUID}, nil
}

func (d dryRunEvents) UpdateEvent(_ context.Context, calendarID, eventID string, ev model.EventPayload) (model.RemoteEvent, error) {
	appLog.Info("dry-run: would update event", "calendar", calendarID, "event_id", eventID, "title", ev.Summary,
		"start", ev.Start, "end", ev.End)
	return model.RemoteEvent{ID: eventID, Summary: ev.Summary, Start: ev.Start, SourceUID: ev.SourceUID}, nil
}

func (d dryRunEvents) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	appLog.Info("dry-run: would delete event", "calendar", calendarID, "event_id", eventID)
	return nil
}

type dryRunTasks struct {
	TaskStore
}

// DryRunTasks passes reads through to s and only logs writes.
func DryRunTasks(s TaskStore) TaskStore {
	return dryRunTasks{TaskStore: s}
}

func (d dryRunTasks) InsertTask(_ context.Context, tasklistID string, t model.TaskPayload) (model.RemoteTask, error) {
	appLog.Info("dry-run: would insert task", "tasklist", tasklistID, "title", t.Title, "due", t.Due)
	return model.RemoteTask{Title: t.Title, Notes: t.Notes, Due: t.Due}, nil
}

func (d dryRunTasks) UpdateTask(_ context.Context, tasklistID, taskID string, t model.TaskPayload) (model.RemoteTask, error) {
	appLog.Info("dry-run: would update task", "tasklist", tasklistID, "task_id", taskID, "title", t.Title, "due", t.Due)
	return model.RemoteTask{ID: taskID, Title: t.Title, Notes: t.Notes, Due: t.Due}, nil
}

func (d dryRunTasks) DeleteTask(_ context.Context, tasklistID, taskID string) error {
	appLog.Info("dry-run: would delete task", "tasklist", tasklistID, "task_id", taskID)
	return nil
}
