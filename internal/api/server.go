// Package api serves the operation registry, dispatch, history and events
// over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/ipfsbridge/internal/auth"
	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/internal/history"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/ipfs"
)

// maxBodyBytes caps request bodies on dispatch endpoints.
const maxBodyBytes = 1 << 20

// HistoryReader reads recorded dispatches.
type HistoryReader interface {
	List(ctx context.Context, f history.Filter) ([]dispatch.Record, error)
	Get(ctx context.Context, id string) (*dispatch.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the admin bearer token (all scopes).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	client    *ipfs.Client
	history   HistoryReader
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server. hist may be nil when history is disabled.
func New(config Config, client *ipfs.Client, hist HistoryReader, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		client:    client,
		history:   hist,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Dispatches block for as long as the runtime does; per-op
		// deadlines are enforced by the dispatcher.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeOpsRead)).Get("/ops", s.handleListOps)
		r.With(s.requireScopes(auth.ScopeOpsRead)).Get("/ops/{name}", s.handleGetOp)
		r.With(s.requireScopes(auth.ScopeOpsRead)).Post("/ops/{name}/encode", s.handleEncode)
		r.With(s.requireScopes(auth.ScopeOpsRead)).Get("/openapi.json", s.handleOpenAPI)
		r.With(s.requireScopes(auth.ScopeOpsWrite)).Post("/ops/{name}", s.handleRun)
		r.With(s.requireScopes(auth.ScopeOpsWrite)).Post("/exec", s.handleExec)

		r.With(s.requireScopes(auth.ScopeHistory)).Get("/history", s.handleListHistory)
		r.With(s.requireScopes(auth.ScopeHistory)).Get("/history/{id}", s.handleGetHistory)

		r.With(s.requireScopes(auth.ScopeEvents)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
