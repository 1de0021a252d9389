// Package api exposes the optional HTTP status and metrics surface.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

// StatusStore holds the latest run snapshot for the status endpoint.
type StatusStore struct {
	mu    sync.RWMutex
	state string
	stats scrape.Stats
}

// NewStatusStore starts in the idle state.
func NewStatusStore() *StatusStore {
	return &StatusStore{state: "idle"}
}

// SetRunning marks a run in progress.
func (s *StatusStore) SetRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = "running"
}

// SetFinished records the final stats.
func (s *StatusStore) SetFinished(stats scrape.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = "finished"
	s.stats = stats
}

// Snapshot returns the current state and stats.
func (s *StatusStore) Snapshot() (string, scrape.Stats) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.stats
}

// Server wires the HTTP handlers.
type Server struct {
	router chi.Router
	status *StatusStore
	logger *zap.Logger
}

// NewServer constructs the router with middleware and routes.
func NewServer(status *StatusStore, logger *zap.Logger) *Server {
	s := &Server{status: status, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	state, stats := s.status.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"stats": map[string]any{
			"total":            stats.Total,
			"cheap_success":    stats.CheapSuccess,
			"browser_success":  stats.BrowserSuccess,
			"failed":           stats.Failed,
			"skipped":          stats.Skipped,
			"retries":          stats.Retries,
			"elapsed_seconds":  stats.Elapsed.Seconds(),
			"pages_per_second": stats.PagesPerSecond,
		},
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
