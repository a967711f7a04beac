// Package server is tabula's HTTP collaborator: it accepts uploads, runs
// the pipeline, serves artifacts and streams run progress over a websocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/teranos/tabula/ai/generation"
	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/ai/tracker"
	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/pipeline"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/telemetry"
)

const (
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// SweepInterval is how often expired artifacts are removed.
	SweepInterval = 10 * time.Minute

	apiPrefix = "/api/v1"
)

// Options wire a Server. Config and Artifacts are required.
type Options struct {
	Config    *config.Config
	Artifacts *artifact.Store
	Runs      *pipeline.RunStore   // nil: /api/v1/runs reports unavailable
	Calls     *tracker.CallTracker // nil: /api/v1/usage reports unavailable
	Metrics   *telemetry.Metrics
	Observer  pipeline.Observer
	Logger    *zap.SugaredLogger

	// NewSender and Sleeper override the pipeline's generation wiring.
	NewSender func(*processing.Spec) llm.Sender
	Sleeper   generation.Sleeper
}

// Server serves the tabula HTTP API.
type Server struct {
	cfg       *config.Config
	artifacts *artifact.Store
	runs      *pipeline.RunStore
	calls     *tracker.CallTracker
	metrics   *telemetry.Metrics
	pipeline  *pipeline.Pipeline
	hub       *Hub
	router    *chi.Mux
	logger    *zap.SugaredLogger

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a Server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server config is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       opts.Config,
		artifacts: opts.Artifacts,
		runs:      opts.Runs,
		calls:     opts.Calls,
		metrics:   opts.Metrics,
		router:    chi.NewRouter(),
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.hub = NewHub(ctx, log.Named("hub"))

	pipeOpts := pipeline.Options{
		Limits:         opts.Config.Limits,
		Generation:     opts.Config.Generation,
		ArtifactFormat: opts.Config.Artifacts.Format,
		Artifacts:      opts.Artifacts,
		Runs:           opts.Runs,
		Metrics:        opts.Metrics,
		Observer:       pipeline.Observers{s.hub, opts.Observer},
		Logger:         log.Named("pipeline"),
		NewSender:      opts.NewSender,
		Sleeper:        opts.Sleeper,
		DownloadURL:    downloadURL,
	}
	if opts.Calls != nil {
		pipeOpts.Calls = opts.Calls
	}
	s.pipeline = pipeline.New(pipeOpts)

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func downloadURL(ref *artifact.Ref) string {
	return apiPrefix + "/download/" + ref.ID
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.cors)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleBanner)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/models", s.handleModels)
		r.Post("/validate-config", s.handleValidateConfig)

		r.Post("/process", s.handleProcess)
		r.Post("/preview", s.handlePreview)

		r.Get("/download/{id}", s.handleDownload)
		r.Delete("/artifacts/{id}", s.handleDeleteArtifact)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/usage", s.handleUsage)

		r.Get("/progress", s.handleProgress)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the progress hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves on the configured port until Stop is called.
func (s *Server) Start() error {
	s.startBackground()

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Infow("HTTP server listening", logger.FieldAddress, addr, "artifacts", s.artifacts.Dir())
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "failed to serve on %s", addr)
}

// Stop drains in-flight requests, closes websocket clients and waits for
// background goroutines.
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(ctx)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("Server stopped")
	case <-ctx.Done():
		s.logger.Warnw("Shutdown timed out waiting for background goroutines", "timeout", ShutdownTimeout)
	}
	return errors.Wrap(shutdownErr, "failed to shut down HTTP server")
}

// startBackground runs the progress hub and the artifact sweeper.
func (s *Server) startBackground() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()
	s.startSweeper()
}

// startSweeper removes artifacts older than the retention window.
func (s *Server) startSweeper() {
	retention := time.Duration(s.cfg.Artifacts.RetentionHours) * time.Hour
	if retention <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sweep(retention)
			}
		}
	}()
}

func (s *Server) sweep(retention time.Duration) {
	removed, err := s.artifacts.Sweep(retention)
	if err != nil {
		s.logger.Warnw("Artifact sweep failed", logger.FieldError, err.Error())
		return
	}
	if removed > 0 {
		s.logger.Infow("Swept expired artifacts", "removed", removed)
	}
}
