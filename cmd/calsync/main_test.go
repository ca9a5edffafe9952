package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"calsync/internal/config"
	"calsync/internal/memstore"
	"calsync/internal/reconcile"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calsync//test//PT
BEGIN:VEVENT
UID:evt-1
SUMMARY:Reunião de projeto
DTSTART:20990310T140000Z
DTEND:20990310T150000Z
END:VEVENT
BEGIN:VEVENT
UID:task-1
SUMMARY:[TAREFA] Entrega do relatório
DTSTART:20990311T090000Z
END:VEVENT
BEGIN:VEVENT
UID:ign-1
SUMMARY:Aula de cálculo
DTSTART:20990312T090000Z
END:VEVENT
END:VCALENDAR
`

type fixture struct {
	app    *app
	store  *memstore.Store
	out    *bytes.Buffer
	config string
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	feedPath := filepath.Join(dir, "feed.ics")
	if err := os.WriteFile(feedPath, []byte(strings.ReplaceAll(testFeed, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Feed = feedPath
	cfg.Timezone = "UTC"
	cfg.Keywords.Ignore = []string{"Aula"}
	cfg.Keywords.Task = []string{"Entrega"}
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(cfgPath); err != nil {
		t.Fatal(err)
	}

	st := memstore.New()
	out := &bytes.Buffer{}
	a := &app{
		ctx:    context.Background(),
		stdin:  strings.NewReader(""),
		stdout: out,
		stores: func(context.Context, *config.Config) (reconcile.EventStore, reconcile.TaskStore, error) {
			return st, st, nil
		},
	}
	return &fixture{app: a, store: st, out: out, config: cfgPath, dir: dir}
}

func (f *fixture) run(args ...string) int {
	return f.app.run(append([]string{"--config", f.config}, args...))
}

func TestSyncCommandIsIdempotent(t *testing.T) {
	f := newFixture(t)

	for i := range 2 {
		if code := f.run("sync"); code != 0 {
			t.Fatalf("run %d: exit code %d", i, code)
		}
	}
	tasks := f.store.Tasks(config.DefaultTasklistID)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[0].Title != "[10:00] Entrega do relatório" || tasks[0].Due != "2099-03-11T00:00:00Z" {
		t.Fatalf("task = %+v", tasks[0])
	}
	if n := f.store.EventCount(config.DefaultCalendarID); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	if f.store.Calls(memstore.OpInsertTask) != 1 || f.store.Calls(memstore.OpInsertEvent) != 1 {
		t.Fatalf("second run inserted again")
	}
}

func TestSyncCommandMissingFeed(t *testing.T) {
	f := newFixture(t)

	if code := f.run("--feed", filepath.Join(f.dir, "nope.ics"), "sync"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if n := f.store.Calls(memstore.OpListTasks); n != 0 {
		t.Fatalf("ListTasks called %d times for an unreadable feed", n)
	}
}

func TestSyncCommandSnapshotFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith(func(op memstore.Op, _ string) error {
		if op == memstore.OpListTasks {
			return errors.New("unauthorized")
		}
		return nil
	})

	if code := f.run("sync"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if f.store.EventCount(config.DefaultCalendarID) != 0 {
		t.Fatalf("events written after snapshot failure")
	}
}

func TestSyncCommandWriteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith(func(op memstore.Op, _ string) error {
		if op == memstore.OpInsertEvent {
			return errors.New("rate limited")
		}
		return nil
	})

	if code := f.run("sync"); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if len(f.store.Tasks(config.DefaultTasklistID)) != 1 {
		t.Fatalf("task not written")
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)

	if code := f.run("--dry-run", "sync"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(f.store.Tasks(config.DefaultTasklistID)) != 0 || f.store.EventCount(config.DefaultCalendarID) != 0 {
		t.Fatalf("dry run wrote to the store")
	}
}

func TestClearCommand(t *testing.T) {
	f := newFixture(t)
	if code := f.run("sync"); code != 0 {
		t.Fatalf("sync exit code = %d", code)
	}

	if code := f.run("clear"); code != 1 {
		t.Fatalf("clear without --yes exit code = %d, want 1", code)
	}
	if f.store.Calls(memstore.OpDeleteEvent)+f.store.Calls(memstore.OpDeleteTask) != 0 {
		t.Fatalf("unconfirmed clear deleted something")
	}

	if code := f.run("clear", "--yes"); code != 0 {
		t.Fatalf("clear exit code = %d", code)
	}
	if len(f.store.Tasks(config.DefaultTasklistID)) != 0 || f.store.EventCount(config.DefaultCalendarID) != 0 {
		t.Fatalf("clear left items behind")
	}
	if !strings.Contains(f.out.String(), "events deleted: 1") {
		t.Fatalf("output = %q", f.out.String())
	}
}

func TestClearDeleteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	if code := f.run("sync"); code != 0 {
		t.Fatalf("sync exit code = %d", code)
	}
	f.store.FailWith(func(op memstore.Op, _ string) error {
		if op == memstore.OpDeleteEvent {
			return errors.New("backend error")
		}
		return nil
	})

	if code := f.run("clear", "--yes"); code != 0 {
		t.Fatalf("clear exit code = %d, want 0", code)
	}
	out := f.out.String()
	if !strings.Contains(out, "tasks deleted: 1") || !strings.Contains(out, "failures: 1") {
		t.Fatalf("output = %q", out)
	}
	if f.store.EventCount(config.DefaultCalendarID) != 1 {
		t.Fatalf("event should have survived the failed delete")
	}
}

func TestPreviewCommandJSON(t *testing.T) {
	f := newFixture(t)

	if code := f.run("preview", "--json"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var items []reconcile.PlanItem
	if err := json.Unmarshal(f.out.Bytes(), &items); err != nil {
		t.Fatalf("decode %q: %v", f.out.String(), err)
	}
	kinds := make([]string, 0, len(items))
	for _, it := range items {
		kinds = append(kinds, it.Kind)
	}
	if strings.Join(kinds, ",") != "event,task,ignored" {
		t.Fatalf("kinds = %v", kinds)
	}
	if items[1].Target != "ics_uid:task-1" {
		t.Fatalf("task target = %q", items[1].Target)
	}
	if f.store.Calls(memstore.OpListTasks) != 0 {
		t.Fatalf("preview touched the store")
	}
}

func TestPreviewCommandTable(t *testing.T) {
	f := newFixture(t)

	if code := f.run("preview"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := f.out.String()
	for _, want := range []string{"KIND", "[10:00] Entrega do relatório", "Reunião de projeto", "ignored"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestHelpExitsZero(t *testing.T) {
	f := newFixture(t)
	if code := f.run("--help"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(f.out.String(), "sync") {
		t.Fatalf("help output = %q", f.out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	if code := f.run("frobnicate"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRunnerRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	cfg, err := config.Load(f.config)
	if err != nil {
		t.Fatal(err)
	}
	r, err := f.app.newReconciler(context.Background(), cfg, reconcile.ConfigFrom(cfg))
	if err != nil {
		t.Fatal(err)
	}
	rn := &runner{cfg: cfg, r: r}

	rn.mu.Lock()
	if _, err := rn.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "in progress") {
		t.Fatalf("Run while locked = %v, want busy error", err)
	}
	rn.mu.Unlock()

	rep, err := rn.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Created() != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestNewScheduler(t *testing.T) {
	cfg := config.DefaultConfig()
	sched, id, err := newScheduler(cfg, func() {})
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()
	if sched.Entry(id).Next.IsZero() {
		t.Fatalf("no next run scheduled")
	}

	cfg.RefreshCron = "not a schedule"
	if _, _, err := newScheduler(cfg, func() {}); err == nil {
		t.Fatalf("expected an error for a bad schedule")
	}
}
