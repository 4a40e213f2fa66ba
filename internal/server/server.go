package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/httpx"
	"github.com/sundayezeilo/shortlink/internal/ratelimit"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const healthPath = "/x/health"

// Server represents the HTTP server with all dependencies.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	handler *shortener.Handler
	limiter ratelimit.Limiter
	server  *http.Server
}

// New creates a new Server instance. A nil limiter leaves the create
// endpoint unthrottled.
func New(cfg *config.Config, logger *slog.Logger, handler *shortener.Handler, limiter ratelimit.Limiter) *Server {
	return &Server{
		config:  cfg,
		logger:  logger,
		handler: handler,
		limiter: limiter,
	}
}

// Handler returns the routed handler with the global middleware applied.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	// Listen for errors from the server
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.gracefulStop()

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.gracefulStop()
	}
}

func (s *Server) gracefulStop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		// Force close if graceful shutdown fails
		if closeErr := s.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close server: %w", closeErr)
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, s.healthCheckHandler)

	var shorten http.Handler = http.HandlerFunc(s.handler.Shorten)
	if s.limiter != nil {
		shorten = ratelimit.Middleware(ratelimit.MiddlewareConfig{
			Limiter: s.limiter,
			Logger:  s.logger,
			Timeout: s.config.Redis.OpTimeout,
		})(shorten)
	}
	mux.Handle("POST /api/shorten", shorten)
	mux.HandleFunc("GET /api/links/{code}", s.handler.GetLink)

	// Redirects are never throttled.
	mux.HandleFunc("GET /{code}", s.handler.Redirect)

	return mux
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger),           // Outermost: catch panics
		httpx.RequestID,                    // Add request ID
		httpx.Logger(s.logger, healthPath), // Log requests
		httpx.CORS(nil),                    // CORS headers (allow all in dev)
	)(handler)
}

// healthCheckHandler handles health check requests.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.config.Observability.ServiceName,
		"version": s.config.Observability.ServiceVersion,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
