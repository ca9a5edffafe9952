package model

import "time"

// Entry is one VEVENT of a feed as produced by the ICS parser. After
// normalization Start and End are in the configured time zone.
type Entry struct {
	UID string // iCalendar UID

	Summary     string
	Description string

	AllDay bool

	Start time.Time
	End   time.Time

	// Recurrence fields, only consumed by the optional expansion step.
	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// Kind is the classification of an entry.
type Kind int

const (
	KindEvent Kind = iota
	KindTask
	KindIgnored
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindIgnored:
		return "ignored"
	default:
		return "event"
	}
}

// TaskPayload is the body written to the task list.
type TaskPayload struct {
	Title string
	Notes string
	// Due is an RFC 3339 timestamp at UTC midnight. The task service only
	// keeps the date part.
	Due string
}

// EventPayload is the body written to the events calendar.
type EventPayload struct {
	ID          string
	Summary     string
	Description string

	AllDay   bool
	Start    time.Time
	End      time.Time
	TimeZone string

	// SourceUID is stored alongside the event so synced events can be
	// told apart from ones created by hand.
	SourceUID string
}

// RemoteTask is a task as returned by the task service.
type RemoteTask struct {
	ID     string
	Title  string
	Notes  string
	Due    string
	Status string
}

// RemoteEvent is an event as returned by the calendar service.
type RemoteEvent struct {
	ID        string
	Summary   string
	Status    string
	Start     time.Time
	SourceUID string
}
