package ics

import (
	"errors"
	"iter"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

const (
	defaultMaxOccurrencesPerEntry = 500

	// instanceLayout is appended to the UID of an expanded occurrence.
	instanceLayout = "20060102T150405Z"
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEntry is a safety cap against unbounded rules. If
	// zero, defaultMaxOccurrencesPerEntry is used.
	MaxOccurrencesPerEntry int
}

// InstanceUID is the identity of one occurrence of a recurring entry. slot
// is the original (un-overridden) start of the occurrence.
func InstanceUID(uid string, slot time.Time) string {
	return uid + "/" + slot.UTC().Format(instanceLayout)
}

// Expand turns recurring entries into single occurrences inside the
// configured window. It handles:
//
//   - Non-recurring entries (passed through untouched, whatever their date)
//   - RRULE-based recurrence with EXDATE exceptions
//   - RECURRENCE-ID overrides (moved or edited instances)
//   - All-day semantics
//
// Grouping overrides with their base entry needs the whole feed, so the
// input is drained before the first item is yielded. Per-entry parse
// errors are forwarded first, in feed order.
func Expand(entries iter.Seq2[model.Entry, error], cfg ExpandConfig) iter.Seq2[model.Entry, error] {
	return func(yield func(model.Entry, error) bool) {
		var (
			parsed []model.Entry
			errs   []error
		)
		for e, err := range entries {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			parsed = append(parsed, e)
		}
		for _, err := range errs {
			if !yield(model.Entry{}, err) {
				return
			}
		}

		out, err := ExpandEntries(parsed, cfg)
		if err != nil {
			yield(model.Entry{}, &ParseError{Err: err})
			return
		}
		for _, e := range out {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// ExpandEntries is the slice form of Expand. Output keeps feed order: the
// occurrences of an entry take the place of the entry itself.
func ExpandEntries(entries []model.Entry, cfg ExpandConfig) ([]model.Entry, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEntry <= 0 {
		cfg.MaxOccurrencesPerEntry = defaultMaxOccurrencesPerEntry
	}

	// Overrides are grouped by the UID of their base entry.
	overridesByUID := make(map[string][]model.Entry)
	hasBase := make(map[string]bool)
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overridesByUID[e.UID] = append(overridesByUID[e.UID], e)
		} else if e.RRule != "" {
			hasBase[e.UID] = true
		}
	}

	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.RecurrenceID != nil:
			// Consumed by its base entry; orphans become standalone instances.
			if !hasBase[e.UID] {
				out = append(out, instanceOf(e, *e.RecurrenceID, e.Start, e.End))
			}
		case e.RRule == "":
			out = append(out, e)
		default:
			occ, hitCap := expandRecurring(e, overridesByUID[e.UID], cfg)
			if hitCap {
				appLog.Warn("expand: truncated occurrences due to cap", "uid", e.UID, "cap", cfg.MaxOccurrencesPerEntry)
			}
			out = append(out, occ...)
		}
	}
	return out, nil
}

func expandRecurring(e model.Entry, overrides []model.Entry, cfg ExpandConfig) ([]model.Entry, bool) {
	out := make([]model.Entry, 0)
	hitCap := false

	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE; keeping entry as a single occurrence", err, "uid", e.UID, "rrule", e.RRule)
		e.RRule = ""
		return []model.Entry{e}, false
	}

	// Ensure Dtstart is set to the entry's DTSTART.
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(e.Start.Location())
	rangeEnd := cfg.RangeEnd.In(e.Start.Location())

	slots := set.Between(rangeStart, rangeEnd, true)
	if len(slots) > cfg.MaxOccurrencesPerEntry {
		slots = slots[:cfg.MaxOccurrencesPerEntry]
		hitCap = true
	}

	dur := e.End.Sub(e.Start)
	for _, slot := range slots {
		start := slot
		end := slot.Add(dur)
		if e.AllDay {
			// All-day: keep whole days in the entry's own zone.
			start = time.Date(slot.Year(), slot.Month(), slot.Day(), 0, 0, 0, 0, slot.Location())
			end = start.AddDate(0, 0, int(dur.Hours()/24))
			if !end.After(start) {
				end = start.AddDate(0, 0, 1)
			}
		}

		base := e
		if o, ok := findOverride(overrides, slot); ok {
			base = o
			start, end = o.Start, o.End
		}
		out = append(out, instanceOf(base, slot, start, end))
	}

	return out, hitCap
}

// findOverride finds an override whose RECURRENCE-ID matches slot.
func findOverride(overrides []model.Entry, slot time.Time) (model.Entry, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(slot) {
			return ov, true
		}
	}
	return model.Entry{}, false
}

func instanceOf(e model.Entry, slot, start, end time.Time) model.Entry {
	e.UID = InstanceUID(e.UID, slot)
	e.Start = start
	e.End = end
	e.RRule = ""
	e.ExDates = nil
	e.RecurrenceID = nil
	return e
}
