// Package web provides the HTTP operations server of the reconciliation
// job: health, execution history, and starting and stopping runs.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/reconcile"
	"github.com/JonMunkholm/reconcile/internal/web/middleware"
)

// JobService is the part of reconcile.Service the server uses.
type JobService interface {
	Start(ctx context.Context, params config.JobParameters) (string, error)
	Stop(ctx context.Context, id, reason string) error
	Execution(ctx context.Context, id string) (batch.JobRecord, error)
	Executions(ctx context.Context, limit int) ([]batch.JobRecord, error)
	LimiterStatus() reconcile.RunLimiterStatus
}

// Server is the HTTP operations server.
type Server struct {
	jobs   JobService
	cfg    config.ServerConfig
	router *chi.Mux
	server *http.Server
}

// NewServer creates a server for jobs configured by cfg.
func NewServer(jobs JobService, cfg config.ServerConfig) *Server {
	s := &Server{
		jobs:   jobs,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.APIKeyList()))

		r.Get("/executions", s.handleListExecutions)
		r.Get("/executions/{id}", s.handleGetExecution)
		r.Post("/executions/{id}/stop", s.handleStopExecution)
		r.Post("/jobs/run", s.handleStartRun)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("operations server listening", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with status. Encoding errors are logged since
// the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}

// storeTimeout bounds repository reads made by handlers.
const storeTimeout = 10 * time.Second
