package main

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"calsync/internal/config"
	"calsync/internal/ics"
	appLog "calsync/internal/log"
	"calsync/internal/reconcile"
	"calsync/internal/web"
)

type watchCommand struct {
	app *app

	Listen   string `long:"listen" description:"Status server address (overrides the config file)"`
	Now      bool   `long:"now" description:"Also run a sync right away"`
	OnChange bool   `long:"on-change" description:"Also sync whenever a local feed file changes"`
}

func (c *watchCommand) Execute(_ []string) error {
	ctx := c.app.ctx
	cfg, err := c.app.loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}

	r, err := c.app.newReconciler(ctx, cfg, reconcile.ConfigFrom(cfg))
	if err != nil {
		return err
	}
	rn := &runner{cfg: cfg, r: r}

	var srv *web.Server
	if cfg.Listen != "" {
		srv = web.NewServer(cfg, rn.Run, previewFunc(cfg, r))
		rn.status = srv
	}

	sched, id, err := newScheduler(cfg, func() { _, _ = rn.Run(ctx) })
	if err != nil {
		return err
	}
	if srv != nil {
		srv.SetNextRun(func() time.Time { return sched.Entry(id).Next })
	}

	sched.Start()
	appLog.Info("watch started", "schedule", cfg.RefreshCron, "timezone", cfg.Timezone,
		"next_run", sched.Entry(id).Next, "listen", cfg.Listen, "dry_run", c.app.opts.DryRun)

	if c.Now {
		go func() { _, _ = rn.Run(ctx) }()
	}
	if c.OnChange {
		if ics.IsRemote(cfg.Feed) {
			appLog.Warn("--on-change ignored for a remote feed")
		} else {
			go func() {
				if err := ics.WatchFile(ctx, cfg.Feed, ics.DefaultDebounce, func() {
					if _, err := rn.Run(ctx); errors.Is(err, web.ErrBusy) {
						appLog.Info("feed changed during a run; waiting for the next trigger")
					}
				}); err != nil {
					appLog.Error("feed watcher stopped", err)
				}
			}()
		}
	}

	var serveErr error
	if srv != nil {
		serveErr = web.Serve(ctx, cfg.Listen, srv.Handler())
	} else {
		<-ctx.Done()
	}

	// Wait for an in-flight run to return before exiting.
	<-sched.Stop().Done()
	appLog.Info("watch stopped")
	return serveErr
}

// newScheduler registers job on the configured cron schedule. Overlapping
// ticks are skipped and a panicking job is logged instead of crashing.
func newScheduler(cfg *config.Config, job func()) (*cron.Cron, cron.EntryID, error) {
	logger := cron.PrintfLogger(appLog.Logger())
	sched := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id, err := sched.AddFunc(cfg.RefreshCron, job)
	if err != nil {
		return nil, 0, err
	}
	return sched, id, nil
}

func previewFunc(cfg *config.Config, r *reconcile.Reconciler) web.PreviewFunc {
	return func(ctx context.Context) ([]reconcile.PlanItem, error) {
		entries, err := loadEntries(ctx, cfg, time.Now())
		if err != nil {
			return nil, err
		}
		return r.Plan(entries), nil
	}
}
