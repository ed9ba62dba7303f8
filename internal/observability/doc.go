// Package observability provides logging and metrics support for the
// research report service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for runs, stages, sections, and external calls
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("run started")
//
// Add run context to logger:
//
//	logger = observability.WithRunContext(logger, runID, topic)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("research_report")
//
// Record metrics:
//
//	metrics.RecordRunStarted()
//	metrics.RecordGatewayCall("generate_text", "openai", 1.2)
//	metrics.RecordSearch("tavily", 5)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - run_id: Pipeline run identifier
//   - topic: Research topic
//   - stage: Pipeline stage (planning, research, report)
//   - section_index / section_title: Section identity
//   - call_kind: External call kind (generate_text, web_search)
//   - provider: External provider (openai, anthropic, tavily, duckduckgo)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
