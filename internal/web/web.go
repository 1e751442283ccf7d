package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daycal/internal/app"
	"daycal/internal/config"
	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/store"
)

// maxImportBytes caps the body accepted by POST /api/import.
const maxImportBytes = 10 << 20

// Server exposes the calendar over a JSON HTTP API.
type Server struct {
	app *app.App
	cfg *config.Config
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(a *app.App, cfg *config.Config) *Server {
	s := &Server{
		app: a,
		cfg: cfg,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
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
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
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
			w.Header().Set("WWW-Authenticate", `Basic realm="daycal", charset="UTF-8"`)
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

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("POST /api/events", s.handleAddEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	s.mux.HandleFunc("GET /api/slots", s.handleSlots)

	s.mux.HandleFunc("GET /api/export.ics", s.handleExportICS)
	s.mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	s.mux.HandleFunc("POST /api/import", s.handleImport)

	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDismissAlert)

	s.mux.HandleFunc("GET /api/notifications", s.handleNotificationState)
	s.mux.HandleFunc("POST /api/notifications/permission", s.handleRequestPermission)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// instancesResponse is the JSON response shape for windowed /api/events.
type instancesResponse struct {
	Instances []model.Instance `json:"instances"`
	Capped    []string         `json:"capped,omitempty"`
	Degraded  []string         `json:"degraded,omitempty"`
	From      time.Time        `json:"from"`
	To        time.Time        `json:"to"`
	TimeZone  string           `json:"timezone"`
}

// handleListEvents returns stored events, filtered stored events when q or
// category is given, or expanded instances when only a window is given.
//
// GET /api/events
// GET /api/events?q=review&category=Work+Meeting
// GET /api/events?from=2024-01-01&to=2024-02-01
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if q.Has("q") || q.Has("category") {
		s.handleSearchEvents(w, r)
		return
	}
	if q.Get("from") == "" && q.Get("to") == "" {
		events, err := s.app.Events(ctx)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	loc := s.app.Location()
	from, err := parseTimeParam(q.Get("from"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := parseTimeParam(q.Get("to"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	res, err := s.app.Instances(ctx, from, to)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if len(res.Capped) > 0 {
		appLog.Warn("api events: expansion capped", "events", strings.Join(res.Capped, ","))
	}
	instances := res.Instances
	if instances == nil {
		instances = []model.Instance{}
	}
	writeJSON(w, http.StatusOK, instancesResponse{
		Instances: instances,
		Capped:    res.Capped,
		Degraded:  res.Degraded,
		From:      from,
		To:        to,
		TimeZone:  loc.String(),
	})
}

// handleSearchEvents filters stored events; from and to are optional
// inclusive bounds on the start.
func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := app.Query{Text: q.Get("q"), Category: q.Get("category")}

	loc := s.app.Location()
	var err error
	if v := q.Get("from"); v != "" {
		if query.From, err = parseTimeParam(v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if query.To, err = parseTimeParam(v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
			return
		}
	}

	events, err := s.app.Search(r.Context(), query)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	instances, err := s.app.Upcoming(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	added, err := s.app.AddEvent(r.Context(), ev)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.app.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var p model.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev, err := s.app.UpdateEvent(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConflicts lists instances overlapping a proposed interval.
//
// GET /api/conflicts?start=...&end=...&exclude=<event id>
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.app.Location()
	start, err := parseTimeParam(q.Get("start"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := parseTimeParam(q.Get("end"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	conflicts, err := s.app.Conflicts(r.Context(), start, end, q.Get("exclude"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []model.Instance{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// handleSlots proposes free slots.
//
// GET /api/slots?date=2024-01-08&duration=60&category=Work%20Meeting
//   - duration: minutes (default 60)
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseTimeParam(q.Get("date"), s.app.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: "+err.Error())
		return
	}
	duration := parseIntDefault(q.Get("duration"), 60)

	slots, err := s.app.SuggestSlots(r.Context(), date, duration, q.Get("category"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", ics.MIMEType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar`+ics.FileExtension+`"`)
	if err := s.app.Export(r.Context(), w); err != nil {
		appLog.Error("api export: ics failed", err)
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.csv"`)
	if err := s.app.ExportCSV(r.Context(), w); err != nil {
		appLog.Error("api export: csv failed", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	res, err := s.app.Import(r.Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "import body too large")
			return
		}
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.app.Alerts()
	if alerts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	if !s.app.DismissAlert(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionResponse struct {
	Granted bool `json:"granted"`
}

func (s *Server) handleNotificationState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, permissionResponse{Granted: s.app.NotificationPermission()})
}

func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	granted, err := s.app.RequestNotificationPermission(r.Context())
	if err != nil {
		appLog.Warn("notification permission request failed", "err", err.Error())
	}
	writeJSON(w, http.StatusOK, permissionResponse{Granted: granted})
}

// writeAppError maps service errors onto HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidEvent),
		errors.Is(err, model.ErrInvalidRecurrence),
		errors.Is(err, model.ErrInvalidFrequency):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseTimeParam accepts RFC 3339, a local "2006-01-02T15:04" or a plain
// date, which means midnight in loc.
func parseTimeParam(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("missing value")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
