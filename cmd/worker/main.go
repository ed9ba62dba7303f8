// Package main provides the entry point for the research report Temporal worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/helixir/research-report-service/internal/config"
	"github.com/helixir/research-report-service/internal/database"
	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/events"
	"github.com/helixir/research-report-service/internal/gateway"
	"github.com/helixir/research-report-service/internal/llm"
	"github.com/helixir/research-report-service/internal/observability"
	"github.com/helixir/research-report-service/internal/pipeline"
	"github.com/helixir/research-report-service/internal/repository"
	"github.com/helixir/research-report-service/internal/search"
	"github.com/helixir/research-report-service/internal/search/duckduckgo"
	"github.com/helixir/research-report-service/internal/search/tavily"
	"github.com/helixir/research-report-service/internal/temporal"
	"github.com/helixir/research-report-service/internal/temporal/activities"
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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("research-report-service worker starting")

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

	// Create repositories.
	runRepo := repository.NewPgRunRepository(db)

	// Create the text generation provider.
	generator, err := llm.NewTextGenerator(llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.Gateway.CallTimeout,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create text generator: %w", err)
	}
	logger.Info().Str("provider", cfg.LLM.Provider).Msg("text generation provider created")

	// Create search provider registry and register configured backends.
	registry := search.NewRegistry()
	registerSearchProviders(registry, cfg, logger)

	// Create metrics registry.
	metrics := observability.NewMetrics("research_report")

	// Create the external call gateway wrapping LLM and search providers.
	gw := gateway.New(generator, registry, gateway.Config{
		CallTimeout:    cfg.Gateway.CallTimeout,
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		RetryBaseDelay: cfg.Gateway.RetryBaseDelay,
		RetryMaxDelay:  cfg.Gateway.RetryMaxDelay,
		RateLimitDelay: cfg.Gateway.RateLimitDelay,
	}, logger, metrics)

	// Create the stage processors.
	planner := pipeline.NewPlanner(gw, logger)
	researcher := pipeline.NewSectionResearcher(gw, gw, pipeline.ResearcherConfig{
		Provider:   domain.SearchProvider(cfg.Search.Provider),
		MaxResults: cfg.Search.MaxResults,
	}, logger)
	writer := pipeline.NewReportWriter(gw, logger)

	// Create the run event publisher.
	var publisher activities.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		defer func() {
			if closeErr := kafkaPublisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka event publisher created")
	} else {
		publisher = events.NopPublisher{}
		logger.Info().Msg("kafka disabled; run events will be discarded")
	}

	// Create Temporal client.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Create WorkerManager.
	workerConfig := temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue)
	manager, err := temporal.NewWorkerManager(temporalClient, workerConfig)
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	// Register workflows.
	manager.RegisterWorkflow(workflows.ResearchReportWorkflow)
	manager.RegisterWorkflow(workflows.SectionResearchWorkflow)

	// Create and register all activity structs.
	pipelineActivities := activities.NewPipelineActivities(planner, researcher, writer, metrics)
	statusActivities := activities.NewStatusActivities(runRepo, metrics)
	eventActivities := activities.NewEventActivities(publisher, metrics)

	manager.RegisterActivity(pipelineActivities)
	manager.RegisterActivity(statusActivities)
	manager.RegisterActivity(eventActivities)

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Msg("starting temporal worker")

	// Start the worker and block until context is cancelled.
	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}

// registerSearchProviders registers all configured search backends with the registry.
func registerSearchProviders(registry *search.Registry, cfg *config.Config, logger zerolog.Logger) {
	// Tavily (only if an API key is provided).
	if cfg.Search.Tavily.APIKey != "" {
		tvCfg := cfg.Search.Tavily
		registry.Register(tavily.New(tavily.Config{
			BaseURL:    tvCfg.BaseURL,
			APIKey:     tvCfg.APIKey,
			Timeout:    tvCfg.Timeout,
			RateLimit:  tvCfg.RateLimit,
			BurstSize:  tvCfg.Burst,
			MaxResults: cfg.Search.MaxResults,
		}, nil))
		logger.Info().Msg("registered search provider: Tavily")
	}

	// DuckDuckGo needs no API key and always registers as the fallback.
	ddgCfg := cfg.Search.DuckDuckGo
	registry.Register(duckduckgo.New(duckduckgo.Config{
		BaseURL:    ddgCfg.BaseURL,
		Timeout:    ddgCfg.Timeout,
		RateLimit:  ddgCfg.RateLimit,
		BurstSize:  ddgCfg.Burst,
		MaxResults: cfg.Search.MaxResults,
	}, nil))
	logger.Info().Msg("registered search provider: DuckDuckGo")
}
