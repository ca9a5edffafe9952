package google

import (
	"context"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"calsync/internal/model"
	"calsync/internal/reconcile"
)

// TaskStore implements reconcile.TaskStore on Google Tasks.
type TaskStore struct {
	svc *tasks.Service
}

var _ reconcile.TaskStore = (*TaskStore)(nil)

func NewTaskStore(ctx context.Context, opts ...option.ClientOption) (*TaskStore, error) {
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &TaskStore{svc: svc}, nil
}

// ListTasks returns every task of the list, completed and hidden ones
// included, following every page.
func (s *TaskStore) ListTasks(ctx context.Context, tasklistID string, q reconcile.TaskQuery) ([]model.RemoteTask, error) {
	call := s.svc.Tasks.List(tasklistID).
		ShowCompleted(true).
		ShowHidden(true).
		Context(ctx)
	if q.PageSize > 0 {
		call = call.MaxResults(int64(q.PageSize))
	}

	var out []model.RemoteTask
	err := call.Pages(ctx, func(page *tasks.Tasks) error {
		for _, t := range page.Items {
			out = append(out, remoteTask(t))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TaskStore) InsertTask(ctx context.Context, tasklistID string, p model.TaskPayload) (model.RemoteTask, error) {
	t, err := s.svc.Tasks.Insert(tasklistID, taskBody(p)).Context(ctx).Do()
	if err != nil {
		return model.RemoteTask{}, err
	}
	return remoteTask(t), nil
}

// UpdateTask patches title, notes and due date. Status and completion are
// left as the user set them.
func (s *TaskStore) UpdateTask(ctx context.Context, tasklistID, taskID string, p model.TaskPayload) (model.RemoteTask, error) {
	t, err := s.svc.Tasks.Patch(tasklistID, taskID, taskBody(p)).Context(ctx).Do()
	if err != nil {
		return model.RemoteTask{}, err
	}
	return remoteTask(t), nil
}

func (s *TaskStore) DeleteTask(ctx context.Context, tasklistID, taskID string) error {
	err := s.svc.Tasks.Delete(tasklistID, taskID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func taskBody(p model.TaskPayload) *tasks.Task {
	return &tasks.Task{
		Title: p.Title,
		Notes: p.Notes,
		Due:   p.Due,
	}
}

func remoteTask(t *tasks.Task) model.RemoteTask {
	return model.RemoteTask{
		ID:     t.Id,
		Title:  t.Title,
		Notes:  t.Notes,
		Due:    t.Due,
		Status: t.Status,
	}
}
