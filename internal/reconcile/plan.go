package reconcile

import (
	"iter"
	"time"

	"calsync/internal/identity"
	"calsync/internal/model"
)

// PlanItem describes what a sync would do with one entry.
type PlanItem struct {
	UID   string    `json:"uid,omitempty"`
	Kind  string    `json:"kind"`
	Title string    `json:"title"`
	Start time.Time `json:"start,omitempty"`

	// Target is the event id for events and the identity tag for tasks.
	Target string `json:"target,omitempty"`
	Due    string `json:"due,omitempty"`

	Error string `json:"error,omitempty"`
}

// Plan classifies entries and derives their payloads without touching
// either store.
func (r *Reconciler) Plan(entries iter.Seq2[model.Entry, error]) []PlanItem {
	var out []PlanItem
	for e, err := range entries {
		if err != nil {
			out = append(out, PlanItem{Kind: "invalid", Error: err.Error()})
			continue
		}
		kind := r.classifier.Classify(e.Summary)
		item := PlanItem{
			UID:   e.UID,
			Kind:  kind.String(),
			Title: e.Summary,
			Start: e.Start.In(r.cfg.Location),
		}
		switch kind {
		case model.KindTask:
			p := r.TaskPayload(e)
			item.Title = p.Title
			item.Target = identity.TaskTag(e.UID)
			item.Due = p.Due
		case model.KindEvent:
			item.Target = identity.EventID(e.UID)
		}
		out = append(out, item)
	}
	return out
}
