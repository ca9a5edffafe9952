package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"calsync/internal/identity"
	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// Clear deletes every upcoming event of the calendar and every task of the
// task list (only the synced ones when Config.OnlySynced is set).
//
// A failed deletion is logged and the sweep continues. A failed listing on
// one side is logged too and the other side still runs. The returned error
// joins every *DeleteError; the report is complete either way.
func (r *Reconciler) Clear(ctx context.Context) (ClearReport, error) {
	var (
		rep  ClearReport
		errs []error
	)
	l := appLog.With("run_id", uuid.NewString(), "only_synced", r.cfg.OnlySynced)

	fail := func(derr *DeleteError) {
		errs = append(errs, derr)
		rep.Failures = append(rep.Failures, Failure{Title: derr.Title, Kind: derr.Kind, Error: derr.Error()})
	}

	events, err := r.events.ListEvents(ctx, r.cfg.CalendarID, EventQuery{TimeMin: r.now(), PageSize: r.cfg.EventPageSize})
	if err != nil {
		derr := &DeleteError{Kind: model.KindEvent, Err: err}
		l.Error("failed to list events", derr, "calendar", r.cfg.CalendarID)
		fail(derr)
	}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return rep, errors.Join(append(errs, err)...)
		}
		if r.cfg.OnlySynced && ev.SourceUID == "" {
			continue
		}
		if err := r.events.DeleteEvent(ctx, r.cfg.CalendarID, ev.ID); err != nil {
			derr := &DeleteError{Kind: model.KindEvent, ID: ev.ID, Title: ev.Summary, Err: err}
			l.Error("failed to delete event", derr)
			fail(derr)
			continue
		}
		rep.EventsDeleted++
		l.Info("event deleted", "title", ev.Summary, "event_id", ev.ID)
	}

	tasks, err := r.tasks.ListTasks(ctx, r.cfg.TasklistID, TaskQuery{PageSize: r.cfg.TaskPageSize})
	if err != nil {
		derr := &DeleteError{Kind: model.KindTask, Err: err}
		l.Error("failed to list tasks", derr, "tasklist", r.cfg.TasklistID)
		fail(derr)
	}
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return rep, errors.Join(append(errs, err)...)
		}
		if r.cfg.OnlySynced && !identity.Tagged(t.Notes) {
			continue
		}
		if err := r.tasks.DeleteTask(ctx, r.cfg.TasklistID, t.ID); err != nil {
			derr := &DeleteError{Kind: model.KindTask, ID: t.ID, Title: t.Title, Err: err}
			l.Error("failed to delete task", derr)
			fail(derr)
			continue
		}
		rep.TasksDeleted++
		l.Info("task deleted", "title", t.Title, "task_id", t.ID)
	}

	l.Info("clear finished", "events_deleted", rep.EventsDeleted, "tasks_deleted", rep.TasksDeleted, "failures", len(rep.Failures))
	return rep, errors.Join(errs...)
}
