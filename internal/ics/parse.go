package ics

import (
	"bytes"
	"errors"
	"iter"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// ParseOptions controls how raw VEVENT values are interpreted.
type ParseOptions struct {
	// Location is used for floating date-times and all-day dates, and as
	// fallback for TZIDs the runtime does not know. Defaults to time.Local.
	Location *time.Location

	// DefaultSummary replaces an absent or blank SUMMARY.
	DefaultSummary string
}

const fallbackSummary = "Sem título"

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// textUnescaper undoes RFC 5545 TEXT escaping. `\\` comes first so an
// escaped backslash followed by "n" is not read as a newline.
var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\N`, "\n",
	`\,`, ",",
	`\;`, ";",
)

// Parse parses a feed payload.
//
//   - The calendar container is parsed eagerly; a failure there is returned
//     as a *ParseError and nothing is yielded.
//   - VEVENTs are converted lazily, in feed order. Other components
//     (VTODO, VTIMEZONE, ...) are skipped.
//   - A VEVENT missing a required field is yielded as a zero Entry with a
//     *ParseError, and iteration continues with the next one.
func Parse(body []byte, opts ParseOptions) (iter.Seq2[model.Entry, error], error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ParseError{Err: ErrEmptyFeed}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DefaultSummary == "" {
		opts.DefaultSummary = fallbackSummary
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	events := cal.Events()
	appLog.Info("ics parse completed", "event_count", len(events))

	return func(yield func(model.Entry, error) bool) {
		for _, ve := range events {
			e, err := parseVEvent(ve, opts)
			if err != nil {
				e = model.Entry{}
			}
			if !yield(e, err) {
				return
			}
		}
	}, nil
}

// Normalize converts Start/End of every successfully parsed entry into loc.
// Converting an entry that is already in loc yields the same instants.
func Normalize(entries iter.Seq2[model.Entry, error], loc *time.Location) iter.Seq2[model.Entry, error] {
	return func(yield func(model.Entry, error) bool) {
		for e, err := range entries {
			if err == nil {
				e = NormalizeEntry(e, loc)
			}
			if !yield(e, err) {
				return
			}
		}
	}
}

// NormalizeEntry converts a single entry into loc.
func NormalizeEntry(e model.Entry, loc *time.Location) model.Entry {
	e.Start = e.Start.In(loc)
	e.End = e.End.In(loc)
	return e
}

func parseVEvent(ve *ical.VEvent, opts ParseOptions) (model.Entry, error) {
	var out model.Entry

	out.Summary = opts.DefaultSummary
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Summary = unescapeText(p.Value)
	}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, &ParseError{Summary: out.Summary, Err: ErrMissingUID}
	}
	out.UID = strings.TrimSpace(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || strings.TrimSpace(dtStart.Value) == "" {
		return out, &ParseError{UID: out.UID, Err: ErrMissingStart}
	}
	start, allDay, err := parseICSTime(dtStart.Value, dtStart.ICalParameters, opts.Location)
	if err != nil {
		return out, &ParseError{UID: out.UID, Err: err}
	}
	out.Start = start
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && strings.TrimSpace(dtEnd.Value) != "" {
		end, _, err := parseICSTime(dtEnd.Value, dtEnd.ICalParameters, opts.Location)
		if err != nil {
			return out, &ParseError{UID: out.UID, Err: err}
		}
		out.End = end
	} else if allDay {
		// A DATE without DTEND lasts the whole day.
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start.Add(time.Hour)
	}

	// RRULE is kept raw; expansion is in expand.go.
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimSpace(p.Value)
	}

	// EXDATE can appear multiple times and hold comma separated values.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := parseICSTime(part, p.ICalParameters, opts.Location); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// RECURRENCE-ID marks an overridden instance of a recurring entry.
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, _, err := parseICSTime(p.Value, p.ICalParameters, opts.Location); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

// parseICSTime parses a DATE or DATE-TIME value.
//
//   - "20240310T170000Z" is UTC.
//   - "20240310T140000" with TZID uses that zone; an unknown TZID (e.g. a
//     Windows zone name) falls back to floating.
//   - "20240310T140000" without TZID is floating and read in floating.
//   - "20240310" or VALUE=DATE is all-day, midnight in floating.
//   - RFC 3339 values ("2024-03-10T14:00:00-03:00", also without seconds)
//     are accepted for feeds that do not follow the basic format.
func parseICSTime(v string, params map[string][]string, floating *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	isDate := false
	if vs, ok := params[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}

	if strings.Contains(v, "-") {
		return parseISOTime(v, floating)
	}

	if isDate || !strings.Contains(v, "T") {
		if len(v) < len(layoutDate) {
			return time.Time{}, false, errors.New("invalid date value " + v)
		}
		t, err := time.ParseInLocation(layoutDate, v[:len(layoutDate)], floating)
		return t, true, err
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		return t, false, err
	}

	loc := floating
	if tzs, ok := params[string(ical.ParameterTzid)]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			loc = l
		} else {
			appLog.Debug("unknown TZID; using configured zone", "tzid", tzs[0], "zone", floating.String())
		}
	}
	t, err := time.ParseInLocation(layoutLocal, v, loc)
	return t, false, err
}

func parseISOTime(v string, floating *time.Location) (time.Time, bool, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", v, floating); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, floating)
	if err != nil {
		return time.Time{}, false, errors.New("invalid time value " + v)
	}
	return t, true, nil
}

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
