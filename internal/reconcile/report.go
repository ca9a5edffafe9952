package reconcile

import (
	"time"

	"calsync/internal/model"
)

// Outcome is what happened to one entry.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeInvalid Outcome = "invalid"
)

// Failure describes one entry that could not be parsed or written.
type Failure struct {
	UID   string     `json:"uid,omitempty"`
	Title string     `json:"title,omitempty"`
	Kind  model.Kind `json:"-"`
	Error string     `json:"error"`
}

// Report summarizes a sync run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run,omitempty"`

	TasksCreated  int `json:"tasks_created"`
	TasksUpdated  int `json:"tasks_updated"`
	EventsCreated int `json:"events_created"`
	EventsUpdated int `json:"events_updated"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	Invalid       int `json:"invalid"`

	Failures []Failure `json:"failures,omitempty"`

	// Error is set when the run stopped early.
	Error string `json:"error,omitempty"`
}

// Succeeded counts entries written (created or updated).
func (r *Report) Succeeded() int {
	return r.TasksCreated + r.TasksUpdated + r.EventsCreated + r.EventsUpdated
}

// Created counts entries created in this run.
func (r *Report) Created() int {
	return r.TasksCreated + r.EventsCreated
}

func (r *Report) record(kind model.Kind, o Outcome) {
	switch {
	case o == OutcomeSkipped:
		r.Skipped++
	case o == OutcomeFailed:
		r.Failed++
	case o == OutcomeInvalid:
		r.Invalid++
	case kind == model.KindTask && o == OutcomeCreated:
		r.TasksCreated++
	case kind == model.KindTask && o == OutcomeUpdated:
		r.TasksUpdated++
	case kind == model.KindEvent && o == OutcomeCreated:
		r.EventsCreated++
	case kind == model.KindEvent && o == OutcomeUpdated:
		r.EventsUpdated++
	}
}

// ClearReport summarizes a bulk clear.
type ClearReport struct {
	EventsDeleted int       `json:"events_deleted"`
	TasksDeleted  int       `json:"tasks_deleted"`
	Failures      []Failure `json:"failures,omitempty"`
}
