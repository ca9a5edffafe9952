package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calsync/internal/model"
	"calsync/internal/reconcile"
)

// SourceUIDKey is the private extended property holding the feed UID.
const SourceUIDKey = "ics_uid"

const dateLayout = "2006-01-02"

// CalendarStore implements reconcile.EventStore on Google Calendar.
type CalendarStore struct {
	svc *calendar.Service
}

var _ reconcile.EventStore = (*CalendarStore)(nil)

// NewCalendarStore builds the Calendar client, typically with
// option.WithHTTPClient(auth client).
func NewCalendarStore(ctx context.Context, opts ...option.ClientOption) (*CalendarStore, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &CalendarStore{svc: svc}, nil
}

// GetEvent fetches an event by id. Deleted events are still returned by the
// API with status "cancelled" and count as found.
func (s *CalendarStore) GetEvent(ctx context.Context, calendarID, eventID string) (model.RemoteEvent, bool, error) {
	ev, err := s.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return model.RemoteEvent{}, false, nil
		}
		return model.RemoteEvent{}, false, err
	}
	return remoteEvent(ev), true, nil
}

func (s *CalendarStore) InsertEvent(ctx context.Context, calendarID string, p model.EventPayload) (model.RemoteEvent, error) {
	ev, err := s.svc.Events.Insert(calendarID, eventBody(p)).Context(ctx).Do()
	if err != nil {
		return model.RemoteEvent{}, err
	}
	return remoteEvent(ev), nil
}

// UpdateEvent replaces the event. The body always carries status
// "confirmed", which revives an event deleted by hand.
func (s *CalendarStore) UpdateEvent(ctx context.Context, calendarID, eventID string, p model.EventPayload) (model.RemoteEvent, error) {
	ev, err := s.svc.Events.Update(calendarID, eventID, eventBody(p)).Context(ctx).Do()
	if err != nil {
		return model.RemoteEvent{}, err
	}
	return remoteEvent(ev), nil
}

// ListEvents returns single instances starting from q.TimeMin, following
// every page.
func (s *CalendarStore) ListEvents(ctx context.Context, calendarID string, q reconcile.EventQuery) ([]model.RemoteEvent, error) {
	call := s.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if q.PageSize > 0 {
		call = call.MaxResults(int64(q.PageSize))
	}
	if !q.TimeMin.IsZero() {
		call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
	}

	var out []model.RemoteEvent
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, it := range page.Items {
			out = append(out, remoteEvent(it))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEvent removes an event. An event that is already gone is not an
// error.
func (s *CalendarStore) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := s.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func eventBody(p model.EventPayload) *calendar.Event {
	ev := &calendar.Event{
		Id:          p.ID,
		Summary:     p.Summary,
		Description: p.Description,
		Status:      "confirmed",
	}
	if p.SourceUID != "" {
		ev.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{SourceUIDKey: p.SourceUID},
		}
	}

	if p.AllDay {
		end := p.End
		if !end.After(p.Start) {
			end = p.Start.AddDate(0, 0, 1)
		}
		ev.Start = &calendar.EventDateTime{Date: p.Start.Format(dateLayout)}
		ev.End = &calendar.EventDateTime{Date: end.Format(dateLayout)}
		return ev
	}

	ev.Start = &calendar.EventDateTime{DateTime: p.Start.Format(time.RFC3339), TimeZone: p.TimeZone}
	ev.End = &calendar.EventDateTime{DateTime: p.End.Format(time.RFC3339), TimeZone: p.TimeZone}
	return ev
}

func remoteEvent(ev *calendar.Event) model.RemoteEvent {
	out := model.RemoteEvent{
		ID:      ev.Id,
		Summary: ev.Summary,
		Status:  ev.Status,
	}
	if ev.Start != nil {
		if ev.Start.DateTime != "" {
			out.Start, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
		} else if ev.Start.Date != "" {
			out.Start, _ = time.Parse(dateLayout, ev.Start.Date)
		}
	}
	if ev.ExtendedProperties != nil {
		out.SourceUID = ev.ExtendedProperties.Private[SourceUIDKey]
	}
	return out
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
}
