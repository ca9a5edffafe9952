package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"calsync/internal/model"
	"calsync/internal/reconcile"
)

func testOptions(srv *httptest.Server) []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
	}
}

func writeAPIError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s"}}`, code, http.StatusText(code))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCalendarGetEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/events/missing"):
			writeAPIError(w, http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, "/events/gone"):
			writeAPIError(w, http.StatusGone)
		case strings.HasSuffix(r.URL.Path, "/events/denied"):
			writeAPIError(w, http.StatusForbidden)
		case strings.HasSuffix(r.URL.Path, "/events/abc"):
			writeJSON(t, w, map[string]any{
				"id":      "abc",
				"summary": "Aula",
				"status":  "cancelled",
				"start":   map[string]string{"dateTime": "2030-03-10T08:00:00-03:00"},
				"extendedProperties": map[string]any{
					"private": map[string]string{SourceUIDKey: "uid-1"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := NewCalendarStore(ctx, testOptions(srv)...)
	if err != nil {
		t.Fatalf("NewCalendarStore: %v", err)
	}

	ev, found, err := st.GetEvent(ctx, "primary", "abc")
	if err != nil || !found {
		t.Fatalf("GetEvent(abc) = %v, %v", found, err)
	}
	if ev.Status != "cancelled" || ev.SourceUID != "uid-1" || ev.Start.IsZero() {
		t.Fatalf("event = %+v", ev)
	}

	for _, id := range []string{"missing", "gone"} {
		if _, found, err := st.GetEvent(ctx, "primary", id); err != nil || found {
			t.Fatalf("GetEvent(%s) = %v, %v; want not found", id, found, err)
		}
	}

	if _, _, err := st.GetEvent(ctx, "primary", "denied"); err == nil {
		t.Fatalf("GetEvent(denied) should fail")
	}
}

func TestCalendarInsertBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		writeJSON(t, w, body)
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := NewCalendarStore(ctx, testOptions(srv)...)
	if err != nil {
		t.Fatalf("NewCalendarStore: %v", err)
	}

	zone := time.FixedZone("-03", -3*60*60)
	_, err = st.InsertEvent(ctx, "primary", model.EventPayload{
		ID:        "0123abcd",
		Summary:   "Aula",
		Start:     time.Date(2030, 3, 10, 8, 0, 0, 0, zone),
		End:       time.Date(2030, 3, 10, 9, 0, 0, 0, zone),
		TimeZone:  "America/Sao_Paulo",
		SourceUID: "uid-1",
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	_, err = st.InsertEvent(ctx, "primary", model.EventPayload{
		ID:      "4567",
		Summary: "Feriado",
		AllDay:  true,
		Start:   time.Date(2030, 3, 10, 0, 0, 0, 0, zone),
		End:     time.Date(2030, 3, 10, 0, 0, 0, 0, zone),
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2", len(bodies))
	}
	timed := bodies[0]
	if timed["id"] != "0123abcd" || timed["status"] != "confirmed" {
		t.Fatalf("timed body = %v", timed)
	}
	start := timed["start"].(map[string]any)
	if start["dateTime"] != "2030-03-10T08:00:00-03:00" || start["timeZone"] != "America/Sao_Paulo" {
		t.Fatalf("start = %v", start)
	}
	priv := timed["extendedProperties"].(map[string]any)["private"].(map[string]any)
	if priv[SourceUIDKey] != "uid-1" {
		t.Fatalf("private properties = %v", priv)
	}

	allDay := bodies[1]
	if allDay["start"].(map[string]any)["date"] != "2030-03-10" || allDay["end"].(map[string]any)["date"] != "2030-03-11" {
		t.Fatalf("all-day body = %v", allDay)
	}
	if _, ok := allDay["extendedProperties"]; ok {
		t.Fatalf("all-day body without uid should not carry properties: %v", allDay)
	}
}

func TestCalendarListEventsFollowsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("query = %v", q)
		}
		if q.Get("timeMin") != "2030-01-01T00:00:00Z" || q.Get("maxResults") != "2" {
			t.Errorf("query = %v", q)
		}
		if q.Get("pageToken") == "" {
			writeJSON(t, w, map[string]any{
				"items": []map[string]any{
					{"id": "a", "summary": "A", "start": map[string]string{"date": "2030-01-02"}},
					{"id": "b", "summary": "B", "extendedProperties": map[string]any{"private": map[string]string{SourceUIDKey: "ub"}}},
				},
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{{"id": "c", "summary": "C"}},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := NewCalendarStore(ctx, testOptions(srv)...)
	if err != nil {
		t.Fatalf("NewCalendarStore: %v", err)
	}
	got, err := st.ListEvents(ctx, "primary", reconcile.EventQuery{
		TimeMin:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("events = %+v", got)
	}
	if got[1].SourceUID != "ub" || got[0].SourceUID != "" {
		t.Fatalf("source uids = %q, %q", got[0].SourceUID, got[1].SourceUID)
	}
}

func TestCalendarDeleteMissingIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if strings.HasSuffix(r.URL.Path, "/denied") {
			writeAPIError(w, http.StatusForbidden)
			return
		}
		writeAPIError(w, http.StatusGone)
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := NewCalendarStore(ctx, testOptions(srv)...)
	if err != nil {
		t.Fatalf("NewCalendarStore: %v", err)
	}
	if err := st.DeleteEvent(ctx, "primary", "old"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if err := st.DeleteEvent(ctx, "primary", "denied"); err == nil {
		t.Fatalf("DeleteEvent(denied) should fail")
	}
}

func TestTasksListFollowsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("showCompleted") != "true" || q.Get("showHidden") != "true" || q.Get("maxResults") != "100" {
			t.Errorf("query = %v", q)
		}
		if q.Get("pageToken") == "" {
			writeJSON(t, w, map[string]any{
				"items":         []map[string]any{{"id": "1", "title": "a", "notes": "ics_uid:x", "status": "completed"}},
				"nextPageToken": "next",
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{{"id": "2", "title": "b"}},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := NewTaskStore(ctx, testOptions(srv)...)
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}
	got, err := st.ListTasks(ctx, "@default", reconcile.TaskQuery{PageSize: 100})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 2 || got[0].Status != "completed" || got[0].Notes != "ics_uid:x" || got[1].ID != "2" {
		t.Fatalf("tasks = %+v", got)
	}
}

func TestTasksWrites(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
		bodies  []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		body["id"] = "t1"
		writeJSON(t, w, body)
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := NewTaskStore(ctx, testOptions(srv)...)
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}
	p := model.TaskPayload{Title: "[14:00] Lista", Notes: "ics_uid:u", Due: "2030-03-10T00:00:00Z"}

	created, err := st.InsertTask(ctx, "@default", p)
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if created.ID != "t1" || created.Title != p.Title {
		t.Fatalf("created = %+v", created)
	}
	if _, err := st.UpdateTask(ctx, "@default", "t1", p); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if err := st.DeleteTask(ctx, "@default", "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	want := []string{http.MethodPost, http.MethodPatch, http.MethodDelete}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", methods, want)
	}
	for _, b := range bodies {
		if b["due"] != p.Due || b["notes"] != p.Notes {
			t.Fatalf("body = %v", b)
		}
		if _, ok := b["status"]; ok {
			t.Fatalf("writes must not touch status: %v", b)
		}
	}
}

const credentialsJSON = `{"installed":{"client_id":"cid","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestAuthURLAndToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(creds, []byte(credentialsJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	a, err := LoadAuth(creds, filepath.Join(dir, "token.json"))
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}

	u := a.AuthCodeURL("state")
	for _, want := range []string{"access_type=offline", "client_id=cid", "tasks"} {
		if !strings.Contains(u, want) {
			t.Fatalf("AuthCodeURL %q lacks %q", u, want)
		}
	}

	if _, err := a.LoadToken(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("LoadToken error = %v, want ErrNoToken", err)
	}
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"}
	if err := a.SaveToken(tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "token.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token perms = %o, want 600", perm)
	}
	got, err := a.LoadToken()
	if err != nil || got.RefreshToken != "rt" {
		t.Fatalf("LoadToken = %+v, %v", got, err)
	}
}

func TestLoadAuthMissingFile(t *testing.T) {
	if _, err := LoadAuth(filepath.Join(t.TempDir(), "nope.json"), "token.json"); err == nil {
		t.Fatalf("expected an error")
	}
}

type seqSource struct {
	tokens []string
	i      int
}

func (s *seqSource) Token() (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: s.tokens[s.i]}
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return tok, nil
}

func TestPersistingSourceSavesOnlyChanges(t *testing.T) {
	var saved []string
	src := &persistingSource{
		base: &seqSource{tokens: []string{"old", "new", "new"}},
		last: "old",
		save: func(tok *oauth2.Token) error {
			saved = append(saved, tok.AccessToken)
			return nil
		},
	}
	for range 3 {
		if _, err := src.Token(); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}
	if len(saved) != 1 || saved[0] != "new" {
		t.Fatalf("saved = %v, want [new]", saved)
	}
}
