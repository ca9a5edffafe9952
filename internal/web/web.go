package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"calsync/internal/config"
	appLog "calsync/internal/log"
	"calsync/internal/reconcile"
)

// ErrBusy is returned by a SyncFunc when another run holds the runner.
var ErrBusy = errors.New("a sync run is already in progress")

// SyncFunc runs one sync now.
type SyncFunc func(ctx context.Context) (reconcile.Report, error)

// PreviewFunc classifies the current feed without writing anything.
type PreviewFunc func(ctx context.Context) ([]reconcile.PlanItem, error)

// Server exposes the state of watch mode over HTTP.
//
//	GET  /health       liveness, never authenticated
//	GET  /api/status   last run report and schedule
//	POST /api/sync     run a sync now (409 while one is running)
//	GET  /api/preview  what the next sync would do
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	run     SyncFunc
	preview PreviewFunc
	now     func() time.Time

	statusMu sync.RWMutex
	running  bool
	last     *reconcile.Report
	nextRun  func() time.Time

	// Preview responses are cached briefly so that polling the endpoint
	// does not refetch the feed every time.
	previewMu    sync.RWMutex
	previewCache *previewCache
}

type previewCache struct {
	items     []reconcile.PlanItem
	updatedAt time.Time
}

const previewCacheTTL = 30 * time.Second

// NewServer constructs a new Server. preview may be nil.
func NewServer(cfg *config.Config, run SyncFunc, preview PreviewFunc) *Server {
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		run:     run,
		preview: preview,
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// SetNextRun installs the source of the next scheduled run time.
func (s *Server) SetNextRun(f func() time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.nextRun = f
}

// Begin marks a run as started.
func (s *Server) Begin() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.running = true
}

// Record stores the report of a finished run.
func (s *Server) Record(rep reconcile.Report) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.running = false
	s.last = &rep
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calsync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on listen until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, listen string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/preview", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Running    bool              `json:"running"`
	Schedule   string            `json:"schedule,omitempty"`
	NextRun    *time.Time        `json:"next_run,omitempty"`
	CalendarID string            `json:"calendar_id"`
	TasklistID string            `json:"tasklist_id"`
	LastRun    *reconcile.Report `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.statusMu.RLock()
	resp := statusResponse{
		Running: s.running,
		LastRun: s.last,
	}
	if s.nextRun != nil {
		if next := s.nextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	s.statusMu.RUnlock()

	if s.cfg != nil {
		resp.Schedule = s.cfg.RefreshCron
		resp.CalendarID = s.cfg.CalendarID
		resp.TasklistID = s.cfg.TasklistID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSync runs a sync synchronously and returns its report. The run is
// detached from the request so a client disconnect does not abort it.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeError(w, http.StatusNotImplemented, "sync trigger not configured")
		return
	}

	rep, err := s.run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		appLog.Error("api sync: run failed", err)
		writeJSON(w, http.StatusInternalServerError, rep)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		writeError(w, http.StatusNotImplemented, "preview not configured")
		return
	}

	now := s.now()
	s.previewMu.RLock()
	pc := s.previewCache
	s.previewMu.RUnlock()
	if pc != nil && now.Sub(pc.updatedAt) < previewCacheTTL {
		writeJSON(w, http.StatusOK, pc.items)
		return
	}

	items, err := s.preview(r.Context())
	if err != nil {
		appLog.Error("api preview failed", err)
		writeError(w, http.StatusBadGateway, "failed to load feed")
		return
	}
	if items == nil {
		items = []reconcile.PlanItem{}
	}

	s.previewMu.Lock()
	s.previewCache = &previewCache{items: items, updatedAt: now}
	s.previewMu.Unlock()

	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
