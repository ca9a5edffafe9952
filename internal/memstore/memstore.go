// Package memstore is an in-memory, stateful stand-in for the calendar and
// task services. It implements reconcile.EventStore and reconcile.TaskStore
// with the same conflict and not-found behavior as the real services.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"calsync/internal/model"
	"calsync/internal/reconcile"
)

var (
	ErrNotFound = errors.New("memstore: not found")
	ErrConflict = errors.New("memstore: already exists")
)

// Op names an operation for fault injection.
type Op string

const (
	OpGetEvent    Op = "GetEvent"
	OpInsertEvent Op = "InsertEvent"
	OpUpdateEvent Op = "UpdateEvent"
	OpListEvents  Op = "ListEvents"
	OpDeleteEvent Op = "DeleteEvent"
	OpListTasks   Op = "ListTasks"
	OpInsertTask  Op = "InsertTask"
	OpUpdateTask  Op = "UpdateTask"
	OpDeleteTask  Op = "DeleteTask"
)

// FaultFunc returns a non-nil error to make an operation fail. key is the
// event id, the task id, or the title of a task being inserted.
type FaultFunc func(op Op, key string) error

type storedEvent struct {
	remote  model.RemoteEvent
	payload model.EventPayload
}

// Store holds events per calendar and tasks per task list.
type Store struct {
	mu     sync.Mutex
	events map[string]map[string]storedEvent
	tasks  map[string][]model.RemoteTask
	nextID int
	calls  map[Op]int
	fault  FaultFunc
}

var (
	_ reconcile.EventStore = (*Store)(nil)
	_ reconcile.TaskStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		events: make(map[string]map[string]storedEvent),
		tasks:  make(map[string][]model.RemoteTask),
		calls:  make(map[Op]int),
	}
}

// FailWith installs a fault injector; nil removes it.
func (s *Store) FailWith(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) enter(op Op, key string) error {
	s.calls[op]++
	if s.fault != nil {
		return s.fault(op, key)
	}
	return nil
}

func (s *Store) GetEvent(_ context.Context, calendarID, eventID string) (model.RemoteEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetEvent, eventID); err != nil {
		return model.RemoteEvent{}, false, err
	}
	ev, ok := s.events[calendarID][eventID]
	return ev.remote, ok, nil
}

func (s *Store) InsertEvent(_ context.Context, calendarID string, p model.EventPayload) (model.RemoteEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertEvent, p.ID); err != nil {
		return model.RemoteEvent{}, err
	}
	if p.ID == "" {
		s.nextID++
		p.ID = fmt.Sprintf("event%d", s.nextID)
	}
	if _, ok := s.events[calendarID][p.ID]; ok {
		return model.RemoteEvent{}, fmt.Errorf("insert %s: %w", p.ID, ErrConflict)
	}
	if s.events[calendarID] == nil {
		s.events[calendarID] = make(map[string]storedEvent)
	}
	ev := storedEvent{remote: remoteEvent(p), payload: p}
	s.events[calendarID][p.ID] = ev
	return ev.remote, nil
}

func (s *Store) UpdateEvent(_ context.Context, calendarID, eventID string, p model.EventPayload) (model.RemoteEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateEvent, eventID); err != nil {
		return model.RemoteEvent{}, err
	}
	if _, ok := s.events[calendarID][eventID]; !ok {
		return model.RemoteEvent{}, fmt.Errorf("update %s: %w", eventID, ErrNotFound)
	}
	p.ID = eventID
	ev := storedEvent{remote: remoteEvent(p), payload: p}
	s.events[calendarID][eventID] = ev
	return ev.remote, nil
}

func (s *Store) ListEvents(_ context.Context, calendarID string, q reconcile.EventQuery) ([]model.RemoteEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListEvents, calendarID); err != nil {
		return nil, err
	}
	var out []model.RemoteEvent
	for _, ev := range s.events[calendarID] {
		if !q.TimeMin.IsZero() && ev.payload.End.Before(q.TimeMin) {
			continue
		}
		out = append(out, ev.remote)
	}
	slices.SortFunc(out, func(a, b model.RemoteEvent) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteEvent, eventID); err != nil {
		return err
	}
	if _, ok := s.events[calendarID][eventID]; !ok {
		return fmt.Errorf("delete %s: %w", eventID, ErrNotFound)
	}
	delete(s.events[calendarID], eventID)
	return nil
}

func (s *Store) ListTasks(_ context.Context, tasklistID string, _ reconcile.TaskQuery) ([]model.RemoteTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListTasks, tasklistID); err != nil {
		return nil, err
	}
	return slices.Clone(s.tasks[tasklistID]), nil
}

func (s *Store) InsertTask(_ context.Context, tasklistID string, t model.TaskPayload) (model.RemoteTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertTask, t.Title); err != nil {
		return model.RemoteTask{}, err
	}
	s.nextID++
	rt := model.RemoteTask{
		ID:     fmt.Sprintf("task%d", s.nextID),
		Title:  t.Title,
		Notes:  t.Notes,
		Due:    t.Due,
		Status: "needsAction",
	}
	s.tasks[tasklistID] = append(s.tasks[tasklistID], rt)
	return rt, nil
}

func (s *Store) UpdateTask(_ context.Context, tasklistID, taskID string, t model.TaskPayload) (model.RemoteTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateTask, taskID); err != nil {
		return model.RemoteTask{}, err
	}
	list := s.tasks[tasklistID]
	for i := range list {
		if list[i].ID == taskID {
			list[i].Title = t.Title
			list[i].Notes = t.Notes
			list[i].Due = t.Due
			return list[i], nil
		}
	}
	return model.RemoteTask{}, fmt.Errorf("update %s: %w", taskID, ErrNotFound)
}

func (s *Store) DeleteTask(_ context.Context, tasklistID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteTask, taskID); err != nil {
		return err
	}
	list := s.tasks[tasklistID]
	for i := range list {
		if list[i].ID == taskID {
			s.tasks[tasklistID] = slices.Delete(list, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("delete %s: %w", taskID, ErrNotFound)
}

// SeedTask adds a task as if it had been created earlier, e.g. by hand.
func (s *Store) SeedTask(tasklistID string, t model.RemoteTask) model.RemoteTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		s.nextID++
		t.ID = fmt.Sprintf("task%d", s.nextID)
	}
	s.tasks[tasklistID] = append(s.tasks[tasklistID], t)
	return t
}

// SeedEvent adds an event as if it had been created earlier.
func (s *Store) SeedEvent(calendarID string, p model.EventPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events[calendarID] == nil {
		s.events[calendarID] = make(map[string]storedEvent)
	}
	s.events[calendarID][p.ID] = storedEvent{remote: remoteEvent(p), payload: p}
}

// Tasks returns the tasks of a list in insertion order.
func (s *Store) Tasks(tasklistID string) []model.RemoteTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks[tasklistID])
}

// EventCount returns the number of events of a calendar.
func (s *Store) EventCount(calendarID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[calendarID])
}

// Event returns the last payload written for eventID.
func (s *Store) Event(calendarID, eventID string) (model.EventPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[calendarID][eventID]
	return ev.payload, ok
}

func remoteEvent(p model.EventPayload) model.RemoteEvent {
	return model.RemoteEvent{
		ID:        p.ID,
		Summary:   p.Summary,
		Status:    "confirmed",
		Start:     p.Start,
		SourceUID: p.SourceUID,
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
