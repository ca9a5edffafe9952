package reconcile

import (
	"fmt"

	"calsync/internal/model"
)

// SnapshotError means the existing tasks could not be listed. Syncing
// without them would duplicate every task, so the run stops.
type SnapshotError struct {
	TasklistID string
	Err        error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("list existing tasks of %s: %v", e.TasklistID, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// WriteError is a failed create or update of one entry. It never stops a run.
type WriteError struct {
	Kind  model.Kind
	Op    string // "get", "insert" or "update"
	Title string
	UID   string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Kind, e.Title, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DeleteError is a failed listing or deletion during a bulk clear.
type DeleteError struct {
	Kind  model.Kind
	ID    string // empty when the listing itself failed
	Title string
	Err   error
}

func (e *DeleteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("list %ss: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("delete %s %q (%s): %v", e.Kind, e.Title, e.ID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
