package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"calsync/internal/model"
)

func feed(events ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//calsync//test//PT",
	}
	for _, e := range events {
		lines = append(lines, strings.Split(strings.TrimSpace(e), "\n")...)
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	return loc
}

func collect(t *testing.T, body []byte, opts ParseOptions) ([]model.Entry, []error) {
	t.Helper()
	seq, err := Parse(body, opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var (
		entries []model.Entry
		errs    []error
	)
	for e, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}

func TestParseDefaultsEndToOneHour(t *testing.T) {
	loc := saoPaulo(t)
	body := feed(`
BEGIN:VEVENT
UID:abc-1
SUMMARY:Entrega do Exercício 3
DTSTART;TZID=America/Sao_Paulo:20240310T140000
END:VEVENT`)

	entries, errs := collect(t, body, ParseOptions{Location: loc})
	if len(errs) != 0 || len(entries) != 1 {
		t.Fatalf("entries=%d errs=%v", len(entries), errs)
	}
	e := NormalizeEntry(entries[0], loc)

	wantStart := time.Date(2024, 3, 10, 14, 0, 0, 0, time.FixedZone("", -3*3600))
	if !e.Start.Equal(wantStart) {
		t.Errorf("start = %s, want %s", e.Start, wantStart)
	}
	if got := e.End.Format(time.RFC3339); got != "2024-03-10T15:00:00-03:00" {
		t.Errorf("end = %s, want 2024-03-10T15:00:00-03:00", got)
	}
}

func TestParseTimeForms(t *testing.T) {
	loc := saoPaulo(t)
	body := feed(`
BEGIN:VEVENT
UID:utc
DTSTART:20240310T170000Z
DTEND:20240310T180000Z
END:VEVENT
BEGIN:VEVENT
UID:floating
DTSTART:20240310T140000
END:VEVENT
BEGIN:VEVENT
UID:allday
DTSTART;VALUE=DATE:20240311
END:VEVENT
BEGIN:VEVENT
UID:windows-tz
DTSTART;TZID=E. South America Standard Time:20240310T140000
END:VEVENT
BEGIN:VEVENT
UID:iso
DTSTART:2024-03-10T14:00-03:00
END:VEVENT`)

	entries, errs := collect(t, body, ParseOptions{Location: loc})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := time.Date(2024, 3, 10, 14, 0, 0, 0, loc)
	byUID := map[string]model.Entry{}
	for _, e := range entries {
		byUID[e.UID] = NormalizeEntry(e, loc)
	}

	for _, uid := range []string{"utc", "floating", "windows-tz", "iso"} {
		e, ok := byUID[uid]
		if !ok {
			t.Fatalf("missing entry %s", uid)
		}
		if !e.Start.Equal(want) {
			t.Errorf("%s: start = %s, want %s", uid, e.Start, want)
		}
		if e.AllDay {
			t.Errorf("%s: unexpected all-day", uid)
		}
	}

	ad := byUID["allday"]
	if !ad.AllDay {
		t.Fatal("allday entry not flagged")
	}
	if ad.Start.Format("2006-01-02 15:04") != "2024-03-11 00:00" {
		t.Errorf("allday start = %s", ad.Start)
	}
	if !ad.End.Equal(ad.Start.AddDate(0, 0, 1)) {
		t.Errorf("allday end = %s, want next day", ad.End)
	}
}

func TestParseTextAndDefaults(t *testing.T) {
	body := feed(`
BEGIN:VEVENT
UID:txt
DTSTART:20240310T170000Z
DESCRIPTION:Linha 1\nLinha 2\, com vírgula
END:VEVENT`)

	entries, errs := collect(t, body, ParseOptions{DefaultSummary: "Sem título"})
	if len(errs) != 0 || len(entries) != 1 {
		t.Fatalf("entries=%d errs=%v", len(entries), errs)
	}
	e := entries[0]
	if e.Summary != "Sem título" {
		t.Errorf("summary = %q", e.Summary)
	}
	if e.Description != "Linha 1\nLinha 2, com vírgula" {
		t.Errorf("description = %q", e.Description)
	}
}

func TestParseSkipsBrokenEntriesAndOtherComponents(t *testing.T) {
	body := feed(`
BEGIN:VTODO
UID:todo-1
SUMMARY:not an event
END:VTODO
BEGIN:VEVENT
UID:no-start
SUMMARY:Sem início
END:VEVENT
BEGIN:VEVENT
SUMMARY:Sem uid
DTSTART:20240310T170000Z
END:VEVENT
BEGIN:VEVENT
UID:ok
SUMMARY:Reunião
DTSTART:20240310T170000Z
END:VEVENT`)

	entries, errs := collect(t, body, ParseOptions{})
	if len(entries) != 1 || entries[0].UID != "ok" {
		t.Fatalf("entries = %+v", entries)
	}
	if len(errs) != 2 {
		t.Fatalf("errs = %v", errs)
	}
	var pe *ParseError
	if !errors.As(errs[0], &pe) || !errors.Is(errs[0], ErrMissingStart) || pe.UID != "no-start" {
		t.Errorf("first error = %v", errs[0])
	}
	if !errors.Is(errs[1], ErrMissingUID) {
		t.Errorf("second error = %v", errs[1])
	}
}

func TestParseEmptyFeed(t *testing.T) {
	_, err := Parse([]byte("  \n"), ParseOptions{})
	var pe *ParseError
	if !errors.As(err, &pe) || !errors.Is(err, ErrEmptyFeed) {
		t.Fatalf("err = %v", err)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	loc := saoPaulo(t)
	e := model.Entry{
		UID:   "x",
		Start: time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC),
	}
	once := NormalizeEntry(e, loc)
	twice := NormalizeEntry(once, loc)
	if !once.Start.Equal(twice.Start) || !once.End.Equal(twice.End) {
		t.Fatalf("normalize not idempotent: %s vs %s", once.Start, twice.Start)
	}
	if once.Start.Location() != loc || once.Start.Hour() != 14 {
		t.Fatalf("start not in local zone: %s", once.Start)
	}
}

func TestParseStopsWhenConsumerStops(t *testing.T) {
	body := feed(`
BEGIN:VEVENT
UID:a
DTSTART:20240310T170000Z
END:VEVENT
BEGIN:VEVENT
UID:b
DTSTART:20240310T170000Z
END:VEVENT`)
	seq, err := Parse(body, ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("n = %d", n)
	}
}
