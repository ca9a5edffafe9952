package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"calsync/internal/config"
	appLog "calsync/internal/log"
	"calsync/internal/reconcile"
	"calsync/internal/web"
)

type syncCommand struct {
	app *app
}

func (c *syncCommand) Execute(_ []string) error {
	cfg, err := c.app.loadConfig()
	if err != nil {
		return err
	}
	r, err := c.app.newReconciler(c.app.ctx, cfg, reconcile.ConfigFrom(cfg))
	if err != nil {
		return err
	}
	rep, err := runOnce(c.app.ctx, cfg, r)
	if err != nil {
		return err
	}
	if rep.Failed > 0 || rep.Invalid > 0 {
		appLog.Warn("sync finished with failures", "failed", rep.Failed, "invalid", rep.Invalid)
	}
	return nil
}

// runOnce is one fetch, parse and reconcile pass. Feed errors abort before
// any Google call.
func runOnce(ctx context.Context, cfg *config.Config, r *reconcile.Reconciler) (reconcile.Report, error) {
	entries, err := loadEntries(ctx, cfg, time.Now())
	if err != nil {
		return reconcile.Report{Error: err.Error(), FinishedAt: time.Now()}, err
	}
	return r.Sync(ctx, entries)
}

// runner serializes sync runs inside the process. The cron job and the
// HTTP trigger share it.
type runner struct {
	mu     sync.Mutex
	cfg    *config.Config
	r      *reconcile.Reconciler
	status *web.Server // optional
}

// Run executes one sync unless another one is in flight, in which case it
// returns web.ErrBusy immediately.
func (rn *runner) Run(ctx context.Context) (reconcile.Report, error) {
	if !rn.mu.TryLock() {
		return reconcile.Report{}, web.ErrBusy
	}
	defer rn.mu.Unlock()

	if rn.status != nil {
		rn.status.Begin()
	}
	rep, err := runOnce(ctx, rn.cfg, rn.r)
	if rn.status != nil {
		rn.status.Record(rep)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("sync run failed", err)
	}
	return rep, err
}
