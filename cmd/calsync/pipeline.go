package main

import (
	"context"
	"fmt"
	"iter"
	"time"

	"google.golang.org/api/option"

	"calsync/internal/classify"
	"calsync/internal/config"
	"calsync/internal/google"
	"calsync/internal/ics"
	appLog "calsync/internal/log"
	"calsync/internal/model"
	"calsync/internal/reconcile"
)

// loadConfig reads the config file and applies command-line overrides.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if a.opts.Feed != "" {
		cfg.Feed = a.opts.Feed
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", a.opts.Config, err)
	}

	appLog.Debug("effective config",
		"config_path", a.opts.Config,
		"timezone", cfg.Timezone,
		"calendar_id", cfg.CalendarID,
		"tasklist_id", cfg.TasklistID,
		"refresh", cfg.RefreshCron,
		"expand", cfg.Expand.Enabled,
		"dry_run", a.opts.DryRun,
	)
	return cfg, nil
}

// loadEntries fetches and parses the feed, expands recurrences when
// enabled and normalizes every entry into the configured zone.
func loadEntries(ctx context.Context, cfg *config.Config, now time.Time) (iter.Seq2[model.Entry, error], error) {
	loc := cfg.Location()

	body, err := ics.NewFetcher(cfg.CacheDir).Fetch(ctx, cfg.Feed)
	if err != nil {
		return nil, err
	}
	entries, err := ics.Parse(body, ics.ParseOptions{
		Location:       loc,
		DefaultSummary: cfg.DefaultSummary,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Expand.Enabled {
		local := now.In(loc)
		entries = ics.Expand(entries, ics.ExpandConfig{
			RangeStart:             local.AddDate(0, 0, -cfg.Expand.BackfillDays),
			RangeEnd:               local.AddDate(0, 0, cfg.Expand.HorizonDays),
			MaxOccurrencesPerEntry: cfg.Expand.MaxOccurrences,
		})
	}
	return ics.Normalize(entries, loc), nil
}

func newClassifier(cfg *config.Config) *classify.Classifier {
	return classify.New(classify.Rules{
		Ignore: cfg.Keywords.Ignore,
		Task:   cfg.Keywords.Task,
	})
}

// newReconciler wires the stores for cfg, wrapped for dry runs when asked.
func (a *app) newReconciler(ctx context.Context, cfg *config.Config, rcfg reconcile.Config) (*reconcile.Reconciler, error) {
	events, tasks, err := a.stores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := reconcile.New(rcfg, newClassifier(cfg), events, tasks)
	if a.opts.DryRun {
		r = r.DryRun()
	}
	return r, nil
}

// googleStores authorizes with the stored token and builds both adapters
// on the same HTTP client.
func googleStores(ctx context.Context, cfg *config.Config) (reconcile.EventStore, reconcile.TaskStore, error) {
	auth, err := google.LoadAuth(cfg.Google.Credentials, cfg.Google.Token)
	if err != nil {
		return nil, nil, err
	}
	client, err := auth.HTTPClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	events, err := google.NewCalendarStore(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, nil, fmt.Errorf("calendar client: %w", err)
	}
	tasks, err := google.NewTaskStore(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, nil, fmt.Errorf("tasks client: %w", err)
	}
	return events, tasks, nil
}
