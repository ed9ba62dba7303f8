package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research report service.
// Metrics are organized by subsystem: runs, stages, sections, gateway calls,
// and searches. All counters and histograms are registered via promauto for
// automatic registration with the default Prometheus registry.
type Metrics struct {
	// RunsStarted counts the total number of pipeline runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts the total number of runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts the total number of runs that ended in failure.
	RunsFailed prometheus.Counter

	// RunsCancelled counts the total number of runs cancelled by user or system.
	RunsCancelled prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// StageDuration observes stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// StageFailures counts stage failures, labeled by stage and error kind.
	StageFailures *prometheus.CounterVec

	// SectionsCompleted counts section sub-pipelines that produced content.
	SectionsCompleted prometheus.Counter

	// SectionsFailed counts section sub-pipelines that failed.
	SectionsFailed prometheus.Counter

	// SectionDuration observes the duration of section sub-pipelines in seconds.
	SectionDuration prometheus.Histogram

	// SectionsPerRun observes the distribution of planned sections per run.
	SectionsPerRun prometheus.Histogram

	// GatewayCallsTotal counts external calls through the gateway, labeled by kind and provider.
	GatewayCallsTotal *prometheus.CounterVec

	// GatewayCallsFailed counts failed gateway calls, labeled by kind, provider, and error kind.
	GatewayCallsFailed *prometheus.CounterVec

	// GatewayCallDuration observes gateway call duration in seconds, labeled by kind and provider.
	GatewayCallDuration *prometheus.HistogramVec

	// GatewayRetries counts retry attempts issued by the gateway, labeled by kind.
	GatewayRetries *prometheus.CounterVec

	// SearchesTotal counts web searches, labeled by provider.
	SearchesTotal *prometheus.CounterVec

	// SearchesFailed counts failed web searches, labeled by provider.
	SearchesFailed *prometheus.CounterVec

	// SearchResults observes the distribution of results returned per search, labeled by provider.
	SearchResults *prometheus.HistogramVec

	// EventsPublished counts run events published to the event stream, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts run events that failed to publish, labeled by event type.
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs completed successfully",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of pipeline runs that failed",
		}),
		RunsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Total number of pipeline runs cancelled",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Stages
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds by stage",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of stage failures by stage and error kind",
		}, []string{"stage", "error_kind"}),

		// Sections
		SectionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_completed_total",
			Help:      "Total number of section sub-pipelines completed",
		}),
		SectionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_failed_total",
			Help:      "Total number of section sub-pipelines that failed",
		}),
		SectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_duration_seconds",
			Help:      "Duration of section sub-pipelines in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		SectionsPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sections_per_run",
			Help:      "Number of sections planned per run",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),

		// Gateway
		GatewayCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Total number of external calls by kind and provider",
		}, []string{"kind", "provider"}),
		GatewayCallsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_failed_total",
			Help:      "Total number of failed external calls by kind, provider, and error kind",
		}, []string{"kind", "provider", "error_kind"}),
		GatewayCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Duration of external calls in seconds by kind and provider",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind", "provider"}),
		GatewayRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_retries_total",
			Help:      "Total number of retry attempts by call kind",
		}, []string{"kind"}),

		// Searches
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of web searches by provider",
		}, []string{"provider"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of failed web searches by provider",
		}, []string{"provider"}),
		SearchResults: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_per_query",
			Help:      "Number of results returned per search by provider",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"provider"}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of run events published by type",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of run events that failed to publish by type",
		}, []string{"event_type"}),
	}
}

// RecordRunStarted records that a run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a run has completed.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a run has failed.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunCancelled records that a run has been cancelled.
func (m *Metrics) RecordRunCancelled() {
	m.RunsCancelled.Inc()
}

// RecordStageCompleted records a completed stage.
func (m *Metrics) RecordStageCompleted(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFailed records a failed stage.
func (m *Metrics) RecordStageFailed(stage, errorKind string) {
	m.StageFailures.WithLabelValues(stage, errorKind).Inc()
}

// RecordSectionCompleted records a completed section sub-pipeline.
func (m *Metrics) RecordSectionCompleted(durationSeconds float64) {
	m.SectionsCompleted.Inc()
	m.SectionDuration.Observe(durationSeconds)
}

// RecordSectionFailed records a failed section sub-pipeline.
func (m *Metrics) RecordSectionFailed(durationSeconds float64) {
	m.SectionsFailed.Inc()
	m.SectionDuration.Observe(durationSeconds)
}

// RecordSectionsPlanned records the number of sections in a new plan.
func (m *Metrics) RecordSectionsPlanned(count int) {
	m.SectionsPerRun.Observe(float64(count))
}

// RecordGatewayCall records a gateway call.
func (m *Metrics) RecordGatewayCall(kind, provider string, durationSeconds float64) {
	m.GatewayCallsTotal.WithLabelValues(kind, provider).Inc()
	m.GatewayCallDuration.WithLabelValues(kind, provider).Observe(durationSeconds)
}

// RecordGatewayCallFailed records a failed gateway call.
func (m *Metrics) RecordGatewayCallFailed(kind, provider, errorKind string) {
	m.GatewayCallsFailed.WithLabelValues(kind, provider, errorKind).Inc()
}

// RecordGatewayRetry records a retry attempt.
func (m *Metrics) RecordGatewayRetry(kind string) {
	m.GatewayRetries.WithLabelValues(kind).Inc()
}

// RecordSearch records a completed web search.
func (m *Metrics) RecordSearch(provider string, resultCount int) {
	m.SearchesTotal.WithLabelValues(provider).Inc()
	m.SearchResults.WithLabelValues(provider).Observe(float64(resultCount))
}

// RecordSearchFailed records a failed web search.
func (m *Metrics) RecordSearchFailed(provider string) {
	m.SearchesFailed.WithLabelValues(provider).Inc()
}

// RecordEventPublished records a published run event.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records a run event that failed to publish.
func (m *Metrics) RecordEventFailed(eventType string) {
	m.EventsFailed.WithLabelValues(eventType).Inc()
}
