// Package web exposes a small operational HTTP surface: a health probe
// and directory statistics.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blockedby/groupindex/internal/logger"
)

// Stats is the payload of the /stats endpoint.
type Stats struct {
	Accounts   int64 `json:"accounts"`
	Chats      int64 `json:"chats"`
	Categories int64 `json:"categories"`
}

// StatsProvider supplies the aggregate numbers shown on /stats.
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Pinger reports storage liveness for the health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http  *http.Server
	stats StatsProvider
	db    Pinger
	log   *logger.Logger
}

func NewServer(port int, stats StatsProvider, db Pinger, log *logger.Logger) *Server {
	s := &Server{stats: stats, db: db, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it returns http.ErrServerClosed on a
// clean stop.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to collect stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
