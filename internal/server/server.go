// Package server exposes the classification pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/spice-audit/internal/ingest"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Classifier runs a table through the classification pipeline.
type Classifier interface {
	Run(ctx context.Context, table *ingest.Table) (*model.BatchResult, error)
}

// Backend reports the state of the generation backend.
type Backend interface {
	Provider() string
	Ready() bool
}

// Forwarder relays an uploaded file to a remote service.
type Forwarder interface {
	Forward(ctx context.Context, filename string, r io.Reader) (json.RawMessage, error)
}

// Config holds HTTP server settings.
type Config struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		CORSOrigins:    []string{"*"},
		RequestTimeout: 10 * time.Minute,
		MaxUploadBytes: 32 << 20,
	}
}

// Deps are the collaborators behind the HTTP surface. Only Pipeline is
// required; routes backed by a nil Store or Relay answer 503.
type Deps struct {
	Pipeline Classifier
	Backend  Backend
	Store    service.BatchStore
	Relay    Forwarder
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server routes HTTP requests to the pipeline, the batch store and the
// file relay.
type Server struct {
	router   chi.Router
	pipeline Classifier
	backend  Backend
	store    service.BatchStore
	relay    Forwarder
	logger   *slog.Logger
	config   Config
}

// New creates a server with its routes mounted.
func New(config Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("server requires a pipeline")
	}
	defaults := DefaultConfig()
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = defaults.CORSOrigins
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		pipeline: deps.Pipeline,
		backend:  deps.Backend,
		store:    deps.Store,
		relay:    deps.Relay,
		logger:   deps.Logger,
		config:   config,
	}
	s.setupRoutes(deps.Gatherer)
	return s, nil
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Post("/api/v1/classify", s.handleClassify)
		r.Post("/upload/", s.handleUpload)

		r.Route("/api/v1/batches", func(r chi.Router) {
			r.Get("/", s.handleListBatches)
			r.Get("/{batchID}", s.handleGetBatch)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
