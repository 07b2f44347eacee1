// Package server is the ambient HTTP entrypoint wrapping the generator,
// supervisor, and progress store behind a small chi router: health and
// metrics endpoints for the operator, and a thin generate/progress pair
// for whatever caller (webhook relay, CLI, dashboard) wants to trigger a
// run and poll it. It is not a specified API surface — just the harness
// every binary in this tree needs to be runnable as a service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/generator"
	"github.com/pipelineforge/pipelineforge/pkg/progress"
)

// Orchestrator is the subset of *generator.Generator the server depends
// on.
type Orchestrator interface {
	Generate(ctx context.Context, host, owner, repo, ref string, opts generator.Options) (generator.Result, error)
}

// ProgressReader is the subset of *progress.Store the server depends on.
type ProgressReader interface {
	Get(key progress.Key) (progress.Record, bool)
}

// Config tunes the listeners and CORS policy.
type Config struct {
	// Addr is the generate/progress/health listener address, e.g. ":8080".
	Addr string
	// MetricsAddr is the Prometheus-scrape listener address, e.g. ":9090".
	// Left empty, metrics are served on Addr instead of a separate port.
	MetricsAddr string
	// ShutdownTimeout bounds how long Run waits for in-flight requests to
	// drain once its context is cancelled.
	ShutdownTimeout time.Duration
	// CORSAllowedOrigins is the Access-Control-Allow-Origin allowlist.
	// A single "*" allows any origin.
	CORSAllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = []string{"*"}
	}
	return c
}

// Server wires the orchestrator and progress store behind an HTTP API.
type Server struct {
	cfg          Config
	orchestrator Orchestrator
	progress     ProgressReader
	logger       *zap.Logger

	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
}

// New builds a Server. orchestrator may be nil if this process only
// serves health/metrics (e.g. a metrics-only sidecar deployment);
// handleGenerate then responds 503.
func New(cfg Config, orchestrator Orchestrator, progressStore ProgressReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:          cfg.withDefaults(),
		orchestrator: orchestrator,
		progress:     progressStore,
		logger:       logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.cfg.MetricsAddr == "" {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Get("/progress/{host}/{owner}/{repo}/*", s.handleProgress)
	})

	return r
}

// Handler returns the primary request handler, for use in tests with
// httptest.NewServer or to embed in a larger mux.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the server (and, if configured, its separate metrics
// listener) and blocks until ctx is cancelled, then drains in-flight
// requests within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: s.router}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("server: listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: primary listener: %w", err)
			return
		}
		errCh <- nil
	}()

	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
		go func() {
			s.logger.Info("server: metrics listening", zap.String("addr", s.cfg.MetricsAddr))
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server: metrics listener: %w", err)
				return
			}
			errCh <- nil
		}()
	} else {
		errCh <- nil
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.shutdown(shutdownCtx)
}

func (s *Server) shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: shutting down primary listener: %w", err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: shutting down metrics listener: %w", err))
		}
	}
	return errors.Join(errs...)
}

// platformFromString validates a request's platform field against the
// known target platforms, defaulting to the hosted-pipeline platform
// when left empty.
func platformFromString(raw string) (domain.TargetPlatform, bool) {
	if raw == "" {
		return domain.PlatformHostedPipeline, true
	}
	switch domain.TargetPlatform(raw) {
	case domain.PlatformHostedPipeline, domain.PlatformBuildServer, domain.PlatformRunnerService, domain.PlatformInfra:
		return domain.TargetPlatform(raw), true
	default:
		return "", false
	}
}
