// Package httpserver provides the HTTP REST API server for the scholar
// search service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/search"
	"github.com/helixir/scholarsearch/internal/sources"
)

// SearchService runs the search pipeline for one query.
type SearchService interface {
	Search(ctx context.Context, query domain.Query) (*search.Response, error)
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	search     SearchService
	registry   *sources.Registry
	logger     zerolog.Logger
	cfg        Config
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	SearchTimeout   time.Duration
	ShutdownTimeout time.Duration

	// MetricsEnabled exposes the Prometheus endpoint at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	searchService SearchService,
	registry *sources.Registry,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		search:   searchService,
		registry: registry,
		logger:   logger.With().Str("component", "http-server").Logger(),
		cfg:      cfg,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Correlation runs before request logging so the log line carries the
	// request and trace IDs from the final context.
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLoggingMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.cfg.MetricsEnabled {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)
		r.Post("/search", s.searchHandler)
		r.Get("/sources", s.listSourcesHandler)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports readiness. The service is ready when at least one
// provider is enabled; provider outages degrade searches but do not make the
// service unready.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if len(s.registry.Enabled()) == 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "no providers enabled",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code. Encoding
// failures are logged; the headers are already sent at that point, so the
// client sees a truncated body.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("writing JSON response failed")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
