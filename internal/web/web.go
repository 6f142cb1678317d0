package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"trennkal/internal/api"
	"trennkal/internal/attendance"
	"trennkal/internal/config"
	"trennkal/internal/export"
	"trennkal/internal/feed"
	appLog "trennkal/internal/log"
	"trennkal/internal/model"
)

// Server exposes the read-only parent/teacher surface: the attendance
// matrix, derived stats, CSV downloads and an iCalendar feed. It never
// mutates backend records; toggling stays a CLI concern.
type Server struct {
	cfg    *config.Config
	client *api.Client
	store  *attendance.Store
	mux    *http.ServeMux

	// matrixCache memoizes the assembled month view so UI polling does
	// not hammer the backend with roster/schedule/attendance reads.
	matrixMu    sync.RWMutex
	matrixCache map[string]*matrixEntry
}

const matrixCacheTTL = 30 * time.Second

type matrixEntry struct {
	resp      matrixResponse
	updatedAt time.Time
}

// NewServer constructs a Server around an API client and a presence
// store for the configured group.
func NewServer(cfg *config.Config, client *api.Client, store *attendance.Store) *Server {
	s := &Server{
		cfg:         cfg,
		client:      client,
		store:       store,
		mux:         http.NewServeMux(),
		matrixCache: make(map[string]*matrixEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with basic auth
// when credentials are configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="trennkal", charset="UTF-8"`)
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

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/matrix", s.handleMatrix)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/export/attendance.csv", s.handleAttendanceCSV)
	s.mux.HandleFunc("/export/roster.csv", s.handleRosterCSV)
	s.mux.HandleFunc("/feed.ics", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// matrixResponse is the JSON shape of the month view: roster, session
// list, the sparse presence set and derived per-student stats.
type matrixResponse struct {
	Month    string          `json:"month"`
	GroupID  string          `json:"groupId"`
	Students []studentDTO    `json:"students"`
	Sessions []model.Session `json:"sessions"`
	// Presence holds only the cells marked present, keyed
	// "<sessionId>_<studentId>"; a missing key means absent.
	Presence map[string]bool `json:"presence"`
	Stats    []statsDTO      `json:"stats"`
}

type studentDTO struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type statsDTO struct {
	StudentID  string `json:"studentId"`
	Attended   int    `json:"attended"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Band       string `json:"band"`
}

// handleMatrix returns the full month view.
//
// GET /api/matrix?month=2025-09 (defaults to the current month)
func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	month := s.monthParam(r)
	resp, err := s.matrix(r.Context(), month)
	if err != nil {
		appLog.Error("matrix build failed", err, "month", month)
		writeError(w, http.StatusBadGateway, "failed to load attendance data")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStats returns only the derived per-student stats of the month.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	month := s.monthParam(r)
	resp, err := s.matrix(r.Context(), month)
	if err != nil {
		appLog.Error("stats build failed", err, "month", month)
		writeError(w, http.StatusBadGateway, "failed to load attendance data")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Month string     `json:"month"`
		Stats []statsDTO `json:"stats"`
	}{Month: resp.Month, Stats: resp.Stats})
}

// handleAttendanceCSV serves the monthly attendance report as a
// download, same file the CLI export writes.
func (s *Server) handleAttendanceCSV(w http.ResponseWriter, r *http.Request) {
	month := s.monthParam(r)
	group, sessions, err := s.loadMonth(r.Context(), month)
	if err != nil {
		appLog.Error("attendance export failed", err, "month", month)
		writeError(w, http.StatusBadGateway, "failed to load attendance data")
		return
	}

	body, filename, err := export.AttendanceCSV(group.Students, sessions, s.store, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}
	serveCSV(w, filename, body)
}

// handleRosterCSV serves the group roster as a download.
func (s *Server) handleRosterCSV(w http.ResponseWriter, r *http.Request) {
	group, err := s.client.Group(r.Context(), s.cfg.GroupID)
	if err != nil {
		appLog.Error("roster export failed", err)
		writeError(w, http.StatusBadGateway, "failed to load roster")
		return
	}

	body, filename, err := export.RosterCSV(group.Name, group.Students)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}
	serveCSV(w, filename, body)
}

// handleFeed serves the upcoming sessions as an iCalendar feed,
// reaching FeedHorizonDays ahead from the start of the current month.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	end := now.AddDate(0, 0, s.cfg.FeedHorizonDays)

	group, err := s.client.Group(r.Context(), s.cfg.GroupID)
	if err != nil {
		appLog.Error("feed roster load failed", err)
		writeError(w, http.StatusBadGateway, "failed to load group")
		return
	}
	sessions, err := s.client.Schedules(r.Context(), s.cfg.GroupID,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		appLog.Error("feed schedule load failed", err)
		writeError(w, http.StatusBadGateway, "failed to load schedule")
		return
	}

	body, err := feed.Build(s.cfg.GroupID, group.Name, sessions, loc)
	if err != nil {
		appLog.Error("feed build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build feed")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// matrix returns the assembled month view, memoized for matrixCacheTTL.
func (s *Server) matrix(ctx context.Context, month string) (matrixResponse, error) {
	now := time.Now()

	s.matrixMu.RLock()
	entry := s.matrixCache[month]
	s.matrixMu.RUnlock()
	if entry != nil && now.Sub(entry.updatedAt) < matrixCacheTTL {
		return entry.resp, nil
	}

	group, sessions, err := s.loadMonth(ctx, month)
	if err != nil {
		return matrixResponse{}, err
	}

	students := make([]studentDTO, 0, len(group.Students))
	presence := make(map[string]bool)
	stats := make([]statsDTO, 0, len(group.Students))
	for _, student := range group.Students {
		students = append(students, studentDTO{ID: student.ID, Name: student.FullName()})

		st := s.store.Stats(student.ID, sessions)
		stats = append(stats, statsDTO{
			StudentID:  st.StudentID,
			Attended:   st.Attended,
			Total:      st.Total,
			Percentage: st.Percentage,
			Band:       attendance.Band(st.Percentage),
		})
		for _, session := range sessions {
			if s.store.Present(session.ID, student.ID) {
				presence[session.ID+"_"+student.ID] = true
			}
		}
	}

	resp := matrixResponse{
		Month:    month,
		GroupID:  s.cfg.GroupID,
		Students: students,
		Sessions: sessions,
		Presence: presence,
		Stats:    stats,
	}

	s.matrixMu.Lock()
	s.matrixCache[month] = &matrixEntry{resp: resp, updatedAt: time.Now()}
	s.matrixMu.Unlock()
	return resp, nil
}

// loadMonth fetches the roster and session list of the month and
// hydrates the presence store for it.
func (s *Server) loadMonth(ctx context.Context, month string) (model.Group, []model.Session, error) {
	startDate, endDate, err := attendance.MonthRange(month)
	if err != nil {
		return model.Group{}, nil, err
	}

	group, err := s.client.Group(ctx, s.cfg.GroupID)
	if err != nil {
		return model.Group{}, nil, err
	}
	sessions, err := s.client.Schedules(ctx, s.cfg.GroupID, startDate, endDate)
	if err != nil {
		return model.Group{}, nil, err
	}
	if err := s.store.Load(ctx, s.cfg.GroupID, month); err != nil {
		return model.Group{}, nil, err
	}
	return group, sessions, nil
}

func (s *Server) monthParam(r *http.Request) string {
	if m := r.URL.Query().Get("month"); m != "" {
		return m
	}
	return time.Now().In(s.cfg.Location()).Format("2006-01")
}

// refresh re-hydrates the presence store for the current month and
// drops memoized month views. Driven by the cron schedule in serve
// mode.
func (s *Server) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*s.cfg.Timeout())
	defer cancel()

	month := time.Now().In(s.cfg.Location()).Format("2006-01")
	if err := s.store.Load(ctx, s.cfg.GroupID, month); err != nil {
		appLog.Error("scheduled attendance refresh failed", err, "month", month)
		return
	}

	s.matrixMu.Lock()
	s.matrixCache = make(map[string]*matrixEntry)
	s.matrixMu.Unlock()
	appLog.Info("attendance snapshot refreshed", "month", month, "records", s.store.Len())
}

// StartServer runs the HTTP server until ctx is canceled, with the
// cron-driven snapshot refresh running alongside.
func StartServer(ctx context.Context, cfg *config.Config, client *api.Client, store *attendance.Store) error {
	s := NewServer(cfg, client, store)

	c := cron.New()
	if _, err := c.AddFunc(cfg.RefreshCron, s.refresh); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	srv := &http.Server{Addr: cfg.Listen, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveCSV(w http.ResponseWriter, filename string, body []byte) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
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
