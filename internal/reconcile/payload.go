package reconcile

import (
	"strings"
	"time"
	"unicode/utf8"

	"calsync/internal/identity"
	"calsync/internal/model"
)

// TaskPayload builds the task body for a normalized entry.
//
// The task service only stores a due date, never a time of day. The
// human-readable time is therefore carried in the title ("[HH:MM] ...") and
// Due is the local date of the deadline at UTC midnight.
func (r *Reconciler) TaskPayload(e model.Entry) model.TaskPayload {
	local := e.End.In(r.cfg.Location)
	if e.AllDay {
		// DTEND of an all-day entry is exclusive; the deadline is the start day.
		local = e.Start.In(r.cfg.Location)
	}

	title := e.Summary
	for _, p := range r.cfg.StripPrefixes {
		if p != "" && strings.HasPrefix(title, p) {
			title = strings.TrimPrefix(title, p)
			break
		}
	}
	if !e.AllDay {
		title = "[" + local.Format("15:04") + "] " + title
	}

	return model.TaskPayload{
		Title: truncateRunes(title, r.cfg.TitleMaxLen),
		Notes: identity.AppendTag(e.Description, e.UID),
		Due:   DueDate(local),
	}
}

// EventPayload builds the calendar body for a normalized entry.
func (r *Reconciler) EventPayload(e model.Entry) model.EventPayload {
	return model.EventPayload{
		ID:          identity.EventID(e.UID),
		Summary:     e.Summary,
		Description: e.Description,
		AllDay:      e.AllDay,
		Start:       e.Start.In(r.cfg.Location),
		End:         e.End.In(r.cfg.Location),
		TimeZone:    r.cfg.Location.String(),
		SourceUID:   e.UID,
	}
}

// DueDate encodes the calendar date of t as an RFC 3339 UTC midnight.
func DueDate(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

// truncateRunes keeps at most n runes, dropping the excess from the end.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
