// Package httpserver provides the HTTP REST API for the research report service.
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
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/research-report-service/internal/database"
	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/observability"
	"github.com/helixir/research-report-service/internal/repository"
	"github.com/helixir/research-report-service/internal/temporal"
)

// WorkflowClient defines the workflow operations used by the HTTP server.
// *temporal.RunWorkflowClient satisfies it; tests substitute fakes.
type WorkflowClient interface {
	StartResearchWorkflow(ctx context.Context, workflowFunc interface{}, input temporal.ResearchWorkflowInput) (workflowID, runID string, err error)
	CancelRun(ctx context.Context, workflowID, runID string) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, result interface{}, args ...interface{}) error
	Health(ctx context.Context) error
}

// Server is the HTTP REST API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	workflowClient WorkflowClient
	workflowFunc   interface{} // The Temporal workflow function reference.
	runRepo        repository.RunRepository
	db             *database.DB
	metrics        *observability.Metrics
	validate       *validator.Validate
	runDefaults    domain.RunConfiguration
	logger         zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RunDefaults seeds the configuration of new runs; request fields
	// override it. Unset fields fall back to the domain defaults.
	RunDefaults domain.RunConfiguration
}

// NewServer creates a new HTTP server with all dependencies.
// workflowFunc is the Temporal workflow function reference
// (e.g., workflows.ResearchReportWorkflow) passed to StartResearchWorkflow.
// metrics may be nil.
func NewServer(
	cfg Config,
	workflowClient WorkflowClient,
	workflowFunc interface{},
	runRepo repository.RunRepository,
	db *database.DB,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		workflowClient: workflowClient,
		workflowFunc:   workflowFunc,
		runRepo:        runRepo,
		db:             db,
		metrics:        metrics,
		validate:       validator.New(),
		runDefaults:    mergeRunDefaults(cfg.RunDefaults),
		logger:         logger.With().Str("component", "http-server").Logger(),
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

// mergeRunDefaults fills unset run defaults from the domain defaults.
// A zero ResearchTimeout is kept as-is and means the stage is unbounded.
func mergeRunDefaults(cfg domain.RunConfiguration) domain.RunConfiguration {
	base := domain.DefaultRunConfiguration()
	if cfg.SectionCount <= 0 {
		cfg.SectionCount = base.SectionCount
	}
	if cfg.SearchDepth <= 0 {
		cfg.SearchDepth = base.SearchDepth
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = base.ConcurrencyLimit
	}
	if cfg.MinSectionSuccessRatio <= 0 {
		cfg.MinSectionSuccessRatio = base.MinSectionSuccessRatio
	}
	return cfg
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Post("/", s.startRun)
		r.Get("/", s.listRuns)
		r.Get("/{runID}", s.getRun)
		r.Get("/{runID}/report", s.getReport)
		r.Delete("/{runID}", s.cancelRun)
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

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status including Temporal connectivity.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}

	if err := s.workflowClient.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "healthy",
			"temporal": "unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
		"temporal": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
