// Package main provides the entry point for the research report service HTTP API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"

	"github.com/helixir/research-report-service/internal/config"
	"github.com/helixir/research-report-service/internal/database"
	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/observability"
	"github.com/helixir/research-report-service/internal/repository"
	httpserver "github.com/helixir/research-report-service/internal/server/http"
	"github.com/helixir/research-report-service/internal/temporal"
	"github.com/helixir/research-report-service/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("research-report-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create repositories.
	runRepo := repository.NewPgRunRepository(db)

	// Create metrics registry.
	metrics := observability.NewMetrics("research_report")

	// Create Temporal client.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Create the RunWorkflowClient for the HTTP server.
	workflowClient := temporal.NewRunWorkflowClient(temporalClient, cfg.Temporal.TaskQueue)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RunDefaults: domain.RunConfiguration{
			SectionCount:           cfg.Pipeline.DefaultSectionCount,
			SearchDepth:            cfg.Pipeline.DefaultSearchDepth,
			ConcurrencyLimit:       cfg.Pipeline.ConcurrencyLimit,
			MinSectionSuccessRatio: cfg.Pipeline.MinSectionSuccessRatio,
			ResearchTimeout:        cfg.Pipeline.ResearchTimeout,
		},
	}

	httpSrv := httpserver.NewServer(
		httpCfg,
		workflowClient,
		workflows.ResearchReportWorkflow,
		runRepo,
		db,
		metrics,
		logger,
	)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP API server in background.
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("research-report-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down research-report-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shut down HTTP API server with timeout.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Shut down metrics server if running.
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	// Close workflow client.
	workflowClient.Close()

	logger.Info().Msg("research-report-service shutdown complete")
	return nil
}
