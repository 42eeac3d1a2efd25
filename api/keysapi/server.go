package keysapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lido-go/registry-reconciler/internal/constants"
)

// Config holds the read-surface HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Address returns the server address in host:port form.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = constants.DefaultAPIHost
	}
	if c.Port == 0 {
		c.Port = constants.DefaultAPIPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	return c
}

// Server is the read-surface HTTP server (§6).
type Server struct {
	config Config
	logger *zap.Logger
	router *chi.Mux
	server *http.Server
}

// NewServer builds a read-surface server backed by store.
func NewServer(cfg Config, store Reader, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{config: cfg, logger: logger, router: chi.NewRouter()}
	s.setupMiddleware()
	s.setupRoutes(store)

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) setupRoutes(store Reader) {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	h := NewHandler(store)
	h.Routes(s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start runs the server until it is stopped or fails. It blocks.
func (s *Server) Start() error {
	s.logger.Info("starting read-surface server", zap.String("address", s.config.Address()))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("read-surface server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("read-surface server shutdown: %w", err)
	}
	s.logger.Info("read-surface server stopped")
	return nil
}

// Router returns the underlying chi router, for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
