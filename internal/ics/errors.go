package ics

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFeed    = errors.New("empty ICS body")
	ErrMissingUID   = errors.New("missing UID")
	ErrMissingStart = errors.New("missing DTSTART")
)

// FetchError reports that the feed could not be retrieved. It is fatal for a run.
type FetchError struct {
	// Location is the feed path or the redacted feed URL.
	Location string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a malformed entry, identified by its UID or, when the
// UID is missing, its summary. When both are empty the whole feed could not
// be parsed.
type ParseError struct {
	UID     string
	Summary string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.UID == "" && e.Summary == "":
		return fmt.Sprintf("parse feed: %v", e.Err)
	case e.UID == "":
		return fmt.Sprintf("parse entry %q: %v", e.Summary, e.Err)
	default:
		return fmt.Sprintf("parse entry %s: %v", e.UID, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
