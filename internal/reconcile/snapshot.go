package reconcile

import (
	"calsync/internal/identity"
	"calsync/internal/model"
)

// Snapshot holds the existing tasks of a task list, in listing order. It is
// built once per run and only read afterwards.
type Snapshot struct {
	tasks []model.RemoteTask
}

func NewSnapshot(tasks []model.RemoteTask) *Snapshot {
	return &Snapshot{tasks: tasks}
}

// Len is the number of tasks in the snapshot.
func (s *Snapshot) Len() int { return len(s.tasks) }

// Tagged is the number of tasks carrying at least one identity tag.
func (s *Snapshot) Tagged() int {
	n := 0
	for _, t := range s.tasks {
		if identity.Tagged(t.Notes) {
			n++
		}
	}
	return n
}

// Lookup returns the first task, in listing order, tagged with uid, and
// the ids of any further tasks carrying the same tag.
func (s *Snapshot) Lookup(uid string) (task model.RemoteTask, duplicates []string, ok bool) {
	for _, t := range s.tasks {
		if !identity.HasTag(t.Notes, uid) {
			continue
		}
		if !ok {
			task, ok = t, true
			continue
		}
		duplicates = append(duplicates, t.ID)
	}
	return task, duplicates, ok
}
