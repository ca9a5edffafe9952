package main

import (
	"errors"
	"fmt"

	appLog "calsync/internal/log"
	"calsync/internal/reconcile"
)

type clearCommand struct {
	app *app

	Yes        bool `long:"yes" short:"y" description:"Confirm the deletion"`
	OnlySynced bool `long:"only-synced" description:"Only delete events and tasks created by calsync"`
}

var errNotConfirmed = errors.New("clear deletes every upcoming event and task; pass --yes to confirm or --dry-run to inspect")

func (c *clearCommand) Execute(_ []string) error {
	if !c.Yes && !c.app.opts.DryRun {
		return errNotConfirmed
	}
	cfg, err := c.app.loadConfig()
	if err != nil {
		return err
	}
	rcfg := reconcile.ConfigFrom(cfg)
	rcfg.OnlySynced = c.OnlySynced

	r, err := c.app.newReconciler(c.app.ctx, cfg, rcfg)
	if err != nil {
		return err
	}
	rep, err := r.Clear(c.app.ctx)
	fmt.Fprintf(c.app.stdout, "events deleted: %d\ntasks deleted: %d\nfailures: %d\n",
		rep.EventsDeleted, rep.TasksDeleted, len(rep.Failures))
	if reconcile.IsFatal(err) {
		return err
	}
	// Individual deletions were already logged; the sweep itself completed.
	if err != nil {
		appLog.Warn("clear finished with failures", "failures", len(rep.Failures))
	}
	return nil
}
