// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/permitclaim/internal/auth"
	"github.com/pendergraft/permitclaim/internal/config"
	"github.com/pendergraft/permitclaim/internal/middleware/logging"
	"github.com/pendergraft/permitclaim/internal/middleware/ratelimit"
	"github.com/pendergraft/permitclaim/internal/middleware/realip"
	"github.com/pendergraft/permitclaim/internal/middleware/security"
	"github.com/pendergraft/permitclaim/internal/observability/metrics"
	permitsTransport "github.com/pendergraft/permitclaim/internal/permits/transport"
	"github.com/pendergraft/permitclaim/internal/render"
	"github.com/pendergraft/permitclaim/internal/storage"
)

const readyTimeout = 2 * time.Second

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	permitsSvc permitsTransport.Service
}

// New creates a new server around an already wired permits service.
func New(cfg *config.Config, store storage.Store, permits permitsTransport.Service, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		router:     chi.NewRouter(),
		permitsSvc: permits,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter, query and body size limits (health checks bypass the filter)
	s.router.Use(security.Middleware(security.Config{
		FilterEnabled: s.cfg.Security.FilterEnabled,
		MaxBodySizeMB: s.cfg.Security.MaxBodySizeMB,
		MaxQueryKB:    s.cfg.Security.MaxQueryKB,
	}))

	// 3. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	// 4. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 5. CORS
	s.router.Use(corsMiddleware())
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Port == 0 {
		s.router.Handle("/metrics", metrics.Handler())
	}

	permitsHandler := permitsTransport.NewHandler(
		s.permitsSvc,
		render.NewRenderer(render.DefaultBinding(), s.logger),
		permitsTransport.Config{
			Explorers: s.cfg.Chain.ExplorerOverrides(),
			PublicURL: s.cfg.Server.PublicURL,
		},
		s.logger,
	)

	// Claim pages reflect live chain state
	s.router.Group(func(r chi.Router) {
		r.Use(noStore)
		permitsHandler.RegisterPageRoutes(r)
	})

	// Auth middleware for write operations
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/permits", func(r chi.Router) {
			// Read operations - no auth required
			permitsHandler.RegisterReadRoutes(r)

			// Imports and transactions - auth required
			r.Group(func(r chi.Router) {
				requireAuth(r)
				permitsHandler.RegisterWriteRoutes(r)
			})
		})
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the record store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
