package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/windsurf-mcp/internal/auth"
	"github.com/mattjoyce/windsurf-mcp/internal/dispatch"
	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

// Fixed identity reported by GET /status.
const (
	ServerName    = "Windsurf MCP Server"
	ServerVersion = "1.0.0"
)

// DefaultMaxBodyBytes bounds POST /execute bodies when Config leaves it unset.
const DefaultMaxBodyBytes = 10 << 20

// Dispatcher is the operation executor behind POST /execute.
type Dispatcher interface {
	Execute(ctx context.Context, operation string, params dispatch.Params) dispatch.Envelope
	Operations() []dispatch.Operation
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens       []auth.TokenConfig
	MaxBodyBytes int64
	// Events backs GET /events. When nil the stream stays empty.
	Events *events.Hub
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	auth       *auth.Authenticator
	logger     *slog.Logger
	startedAt  time.Time

	mu       sync.Mutex
	server   *http.Server
	addr     net.Addr
	ready    chan struct{}
	stopping chan struct{}
	stopOnce sync.Once
}

// New creates a new API server instance
func New(config Config, dispatcher Dispatcher, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Events == nil {
		config.Events = events.NewHub(0)
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		auth:       auth.New(config.APIKey, config.Tokens),
		logger:     logger,
		startedAt:  time.Now(),
		ready:      make(chan struct{}),
		stopping:   make(chan struct{}),
	}
}

// Handler returns the routed HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Ready is closed once Start is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address, or nil before Start is ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start serves until ctx is cancelled, then shuts down gracefully. It returns
// ctx.Err() after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}

	srv := &http.Server{
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	// Shutdown does not cancel request contexts; streams watch s.stopping.
	srv.RegisterOnShutdown(s.stopStreams)

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("API server starting",
		"listen", ln.Addr().String(),
		"auth_enabled", s.auth.Enabled(),
		"operations", len(s.dispatcher.Operations()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	close(s.ready)

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Liveness is never authenticated.
	r.Get("/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeExecute)).Post("/execute", s.handleExecute)
		r.With(s.requireScopes(auth.ScopeRead)).Get("/operations", s.handleOperations)
		r.With(s.requireScopes(auth.ScopeRead)).Get("/openapi.json", s.handleOpenAPI)
		r.With(s.requireScopes(auth.ScopeRead)).Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) stopStreams() {
	s.stopOnce.Do(func() { close(s.stopping) })
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
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
