// Package reconcile turns feed entries into idempotent creates and updates
// against an events calendar and a task list.
//
// Events are identified by an id derived from the feed UID and probed one
// by one. Tasks are identified by a tag in their notes and matched against a
// snapshot of the whole task list taken at the start of the run.
//
// The probe-then-write for events is not atomic: a concurrent writer could
// create the same id between GetEvent and InsertEvent. Runs are expected to
// be serialized per account.
package reconcile

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"calsync/internal/classify"
	"calsync/internal/config"
	"calsync/internal/identity"
	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// Config is the per-reconciler configuration.
type Config struct {
	CalendarID string
	TasklistID string

	// Location is the zone used for titles, due dates and event bodies.
	Location *time.Location

	// StripPrefixes are source markers removed from task titles; the first
	// one that matches wins.
	StripPrefixes []string
	TitleMaxLen   int

	TaskPageSize  int
	EventPageSize int

	// OnlySynced restricts Clear to items this tool created.
	OnlySynced bool
}

// ConfigFrom maps the application configuration onto a reconciler Config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		CalendarID:    c.CalendarID,
		TasklistID:    c.TasklistID,
		Location:      c.Location(),
		StripPrefixes: c.Keywords.StripPrefixes,
		TitleMaxLen:   c.TitleMaxLen,
		TaskPageSize:  c.TaskPageSize,
		EventPageSize: c.EventPageSize,
	}
}

func (c *Config) normalize() {
	if c.CalendarID == "" {
		c.CalendarID = config.DefaultCalendarID
	}
	if c.TasklistID == "" {
		c.TasklistID = config.DefaultTasklistID
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.TitleMaxLen <= 0 {
		c.TitleMaxLen = config.DefaultTitleMaxLen
	}
	if c.TaskPageSize <= 0 {
		c.TaskPageSize = config.DefaultTaskPageSize
	}
	if c.EventPageSize <= 0 {
		c.EventPageSize = config.DefaultEventPageSize
	}
}

// Reconciler decides create vs update for every entry and issues the writes
// serially, in feed order.
type Reconciler struct {
	cfg        Config
	classifier *classify.Classifier
	events     EventStore
	tasks      TaskStore
	now        func() time.Time
	dryRun     bool
}

// New builds a Reconciler.
func New(cfg Config, classifier *classify.Classifier, events EventStore, tasks TaskStore) *Reconciler {
	cfg.normalize()
	return &Reconciler{
		cfg:        cfg,
		classifier: classifier,
		events:     events,
		tasks:      tasks,
		now:        time.Now,
	}
}

// DryRun wraps both stores so that writes are only logged.
func (r *Reconciler) DryRun() *Reconciler {
	cp := *r
	cp.events = DryRunEvents(r.events)
	cp.tasks = DryRunTasks(r.tasks)
	cp.dryRun = true
	return &cp
}

// Sync reconciles every entry. The returned error is non-nil only when the
// run stopped early: a *SnapshotError before anything was written, or the
// context error. Per-entry failures are in the report.
func (r *Reconciler) Sync(ctx context.Context, entries iter.Seq2[model.Entry, error]) (Report, error) {
	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		DryRun:    r.dryRun,
	}
	l := appLog.With("run_id", rep.RunID)

	existing, err := r.tasks.ListTasks(ctx, r.cfg.TasklistID, TaskQuery{PageSize: r.cfg.TaskPageSize})
	if err != nil {
		serr := &SnapshotError{TasklistID: r.cfg.TasklistID, Err: err}
		l.Error("task snapshot failed; aborting run", serr)
		rep.Error = serr.Error()
		rep.FinishedAt = r.now()
		return rep, serr
	}
	snap := NewSnapshot(existing)
	// Tasks created by this run, by uid. A feed may repeat a uid, e.g. a
	// recurring entry and one of its overridden instances.
	created := make(map[string]model.RemoteTask)
	l.Info("task snapshot loaded", "tasklist", r.cfg.TasklistID, "tasks", snap.Len(), "tagged", snap.Tagged())

	for e, perr := range entries {
		if err := ctx.Err(); err != nil {
			l.Error("sync interrupted", err)
			rep.Error = err.Error()
			rep.FinishedAt = r.now()
			return rep, err
		}

		if perr != nil {
			l.Error("entry skipped: parse failed", perr)
			rep.record(model.KindEvent, OutcomeInvalid)
			rep.Failures = append(rep.Failures, Failure{Error: perr.Error()})
			continue
		}

		kind := r.classifier.Classify(e.Summary)
		var (
			out  Outcome
			werr error
		)
		switch kind {
		case model.KindIgnored:
			l.Info("ignored", "title", e.Summary, "uid", e.UID)
			out = OutcomeSkipped
		case model.KindTask:
			out, werr = r.syncTask(ctx, l, snap, created, e)
		default:
			out, werr = r.syncEvent(ctx, l, e)
		}

		if werr != nil {
			l.Error("entry write failed", werr, "title", e.Summary, "uid", e.UID, "kind", kind.String())
			rep.Failures = append(rep.Failures, Failure{UID: e.UID, Title: e.Summary, Kind: kind, Error: werr.Error()})
		}
		rep.record(kind, out)
	}

	rep.FinishedAt = r.now()
	l.Info("sync finished",
		"tasks_created", rep.TasksCreated,
		"tasks_updated", rep.TasksUpdated,
		"events_created", rep.EventsCreated,
		"events_updated", rep.EventsUpdated,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"invalid", rep.Invalid,
		"dry_run", rep.DryRun,
	)
	return rep, nil
}

func (r *Reconciler) syncTask(ctx context.Context, l *appLog.Entry, snap *Snapshot, created map[string]model.RemoteTask, e model.Entry) (Outcome, error) {
	body := r.TaskPayload(e)

	existing, ok := created[e.UID]
	if !ok {
		var dups []string
		existing, dups, ok = snap.Lookup(e.UID)
		if len(dups) > 0 {
			l.Warn("several tasks carry the same identity tag; updating the first",
				"tag", identity.TaskTag(e.UID), "task_id", existing.ID, "duplicates", dups)
		}
	}

	if ok {
		if _, err := r.tasks.UpdateTask(ctx, r.cfg.TasklistID, existing.ID, body); err != nil {
			return OutcomeFailed, &WriteError{Kind: model.KindTask, Op: "update", Title: e.Summary, UID: e.UID, Err: err}
		}
		l.Info("task updated", "title", body.Title, "task_id", existing.ID, "due", body.Due)
		return OutcomeUpdated, nil
	}

	task, err := r.tasks.InsertTask(ctx, r.cfg.TasklistID, body)
	if err != nil {
		return OutcomeFailed, &WriteError{Kind: model.KindTask, Op: "insert", Title: e.Summary, UID: e.UID, Err: err}
	}
	created[e.UID] = task
	l.Info("task created", "title", body.Title, "task_id", task.ID, "due", body.Due)
	return OutcomeCreated, nil
}

func (r *Reconciler) syncEvent(ctx context.Context, l *appLog.Entry, e model.Entry) (Outcome, error) {
	body := r.EventPayload(e)

	_, found, err := r.events.GetEvent(ctx, r.cfg.CalendarID, body.ID)
	if err != nil {
		return OutcomeFailed, &WriteError{Kind: model.KindEvent, Op: "get", Title: e.Summary, UID: e.UID, Err: err}
	}

	if found {
		if _, err := r.events.UpdateEvent(ctx, r.cfg.CalendarID, body.ID, body); err != nil {
			return OutcomeFailed, &WriteError{Kind: model.KindEvent, Op: "update", Title: e.Summary, UID: e.UID, Err: err}
		}
		l.Info("event updated", "title", e.Summary, "event_id", body.ID)
		return OutcomeUpdated, nil
	}

	if _, err := r.events.InsertEvent(ctx, r.cfg.CalendarID, body); err != nil {
		return OutcomeFailed, &WriteError{Kind: model.KindEvent, Op: "insert", Title: e.Summary, UID: e.UID, Err: err}
	}
	l.Info("event created", "title", e.Summary, "event_id", body.ID)
	return OutcomeCreated, nil
}

// IsFatal reports whether err must stop the process rather than be logged.
func IsFatal(err error) bool {
	var serr *SnapshotError
	return errors.As(err, &serr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
