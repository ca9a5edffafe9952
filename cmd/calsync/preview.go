package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"calsync/internal/reconcile"
)

type previewCommand struct {
	app *app

	JSON bool `long:"json" description:"Print the plan as JSON"`
}

func (c *previewCommand) Execute(_ []string) error {
	cfg, err := c.app.loadConfig()
	if err != nil {
		return err
	}
	entries, err := loadEntries(c.app.ctx, cfg, time.Now())
	if err != nil {
		return err
	}

	// Plan never touches the stores, so none are wired.
	r := reconcile.New(reconcile.ConfigFrom(cfg), newClassifier(cfg), nil, nil)
	items := r.Plan(entries)

	if c.JSON {
		enc := json.NewEncoder(c.app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	tw := tabwriter.NewWriter(c.app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSTART\tTARGET\tTITLE")
	for _, it := range items {
		if it.Error != "" {
			fmt.Fprintf(tw, "%s\t\t\t%s\n", it.Kind, it.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Kind, it.Start.Format("2006-01-02 15:04"), it.Target, it.Title)
	}
	return tw.Flush()
}
