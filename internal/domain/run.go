package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request bounds enforced at acceptance time.
const (
	MaxTopicLength   = 10000
	MinSectionCount  = 1
	MaxSectionCount  = 10
	MinSearchDepth   = 1
	MaxSearchDepth   = 5
	DefaultSections  = 5
	DefaultDepth     = 3
)

// RunConfiguration holds the configuration parameters for a pipeline run.
// This struct is stored as JSONB in PostgreSQL for flexibility and auditability.
type RunConfiguration struct {
	// SectionCount is the number of report sections to plan and research.
	SectionCount int `json:"section_count"`

	// SearchDepth is the number of web searches performed per section.
	SearchDepth int `json:"search_depth"`

	// ConcurrencyLimit caps how many section sub-pipelines run at once.
	ConcurrencyLimit int `json:"concurrency_limit"`

	// MinSectionSuccessRatio is the fraction of sections (0.0-1.0) that must
	// complete for the run to proceed to the report stage. Default: 1.0,
	// meaning every section is required.
	MinSectionSuccessRatio float64 `json:"min_section_success_ratio"`

	// ResearchTimeout bounds the whole research stage. Zero means no bound
	// beyond per-call timeouts.
	ResearchTimeout time.Duration `json:"research_timeout,omitempty"`

	// Model overrides the configured text generation model for this run.
	Model string `json:"model,omitempty"`
}

// DefaultRunConfiguration returns a RunConfiguration with default values.
func DefaultRunConfiguration() RunConfiguration {
	return RunConfiguration{
		SectionCount:           DefaultSections,
		SearchDepth:            DefaultDepth,
		ConcurrencyLimit:       3,
		MinSectionSuccessRatio: 1.0,
	}
}

// ResearchRequest is the immutable submission that starts a pipeline run.
type ResearchRequest struct {
	// Topic is the research subject (required).
	Topic string `json:"topic"`

	// SectionCount is the requested number of report sections.
	SectionCount int `json:"section_count"`

	// SearchDepth is the requested number of searches per section.
	SearchDepth int `json:"search_depth"`
}

// Normalize fills unset fields with defaults.
func (r *ResearchRequest) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.SectionCount == 0 {
		r.SectionCount = DefaultSections
	}
	if r.SearchDepth == 0 {
		r.SearchDepth = DefaultDepth
	}
}

// Validate checks the request bounds. Violations wrap ErrInvalidRequest.
func (r *ResearchRequest) Validate() error {
	if r.Topic == "" {
		return NewValidationError("topic", "is required")
	}
	if len(r.Topic) > MaxTopicLength {
		return NewValidationError("topic", "must be at most 10000 characters")
	}
	if r.SectionCount < MinSectionCount || r.SectionCount > MaxSectionCount {
		return NewValidationError("section_count", "must be between 1 and 10")
	}
	if r.SearchDepth < MinSearchDepth || r.SearchDepth > MaxSearchDepth {
		return NewValidationError("search_depth", "must be between 1 and 5")
	}
	return nil
}

// SectionSpec describes one planned report section. Index is the section's
// stable identity: results are joined back to the plan by Index, and the
// final report orders sections by Index regardless of completion order.
type SectionSpec struct {
	Index            int      `json:"index"`
	Title            string   `json:"title"`
	GuidingQuestions []string `json:"guiding_questions,omitempty"`
}

// ResearchPlan is the output of the planning stage: an ordered set of
// section specifications plus topic-level framing.
type ResearchPlan struct {
	Topic           string        `json:"topic"`
	Methodology     string        `json:"methodology,omitempty"`
	EstimatedLength string        `json:"estimated_length,omitempty"`
	Sections        []SectionSpec `json:"sections"`
}

// SectionTitles returns the planned section titles in plan order.
func (p *ResearchPlan) SectionTitles() []string {
	titles := make([]string, len(p.Sections))
	for i, s := range p.Sections {
		titles[i] = s.Title
	}
	return titles
}

// SourceRef is a single cited source discovered during research.
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SectionResult is the immutable outcome of one section sub-pipeline.
type SectionResult struct {
	Index       int           `json:"index"`
	Title       string        `json:"title"`
	Content     string        `json:"content,omitempty"`
	Sources     []SourceRef   `json:"sources,omitempty"`
	QueriesUsed []string      `json:"queries_used,omitempty"`
	Status      SectionStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ReportDraft accumulates the report stage output. Each field has exactly
// one writing step; steps never modify fields they do not own.
type ReportDraft struct {
	ExecutiveSummary string `json:"executive_summary,omitempty"`
	Body             string `json:"body,omitempty"`
	Conclusion       string `json:"conclusion,omitempty"`
	SourcesSection   string `json:"sources_section,omitempty"`
	Markdown         string `json:"markdown,omitempty"`
}

// ReportMetadata summarizes a finished report.
type ReportMetadata struct {
	SectionCount int       `json:"section_count"`
	TotalSources int       `json:"total_sources"`
	TotalQueries int       `json:"total_queries"`
	WordCount    int       `json:"word_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Report is the final artifact of a completed run.
type Report struct {
	Markdown string         `json:"markdown"`
	Metadata ReportMetadata `json:"metadata"`
}

// FailureInfo records where and why a run failed.
type FailureInfo struct {
	Stage   StageName `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// PipelineRun is the persisted envelope for one end-to-end run.
type PipelineRun struct {
	ID uuid.UUID `json:"id"`

	// Topic is the research subject submitted by the caller.
	Topic string `json:"topic"`

	Status RunStatus `json:"status"`

	// Failure is set only when Status is failed.
	Failure *FailureInfo `json:"failure,omitempty"`

	// Configuration (stored as JSONB)
	Configuration RunConfiguration `json:"configuration"`

	// Plan is set once the planning stage completes.
	Plan *ResearchPlan `json:"plan,omitempty"`

	// Report is set once the run completes.
	Report *Report `json:"report,omitempty"`

	// Temporal workflow tracking
	TemporalWorkflowID string `json:"temporal_workflow_id,omitempty"`
	TemporalRunID      string `json:"temporal_run_id,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the duration of the run.
// Returns zero if the run has not started.
// Returns elapsed time from start if still running.
// Returns total duration if completed.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}

	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}

	return time.Since(*r.StartedAt)
}

// IsActive returns true if the run is still in progress.
func (r *PipelineRun) IsActive() bool {
	return !r.Status.IsTerminal()
}

// RunProgress is a snapshot of a run's state used for progress reporting.
type RunProgress struct {
	RunID uuid.UUID `json:"run_id"`

	Status RunStatus `json:"status"`

	// CurrentStage describes the active pipeline stage.
	CurrentStage StageName `json:"current_stage"`

	// SectionsPlanned is the number of sections in the research plan.
	SectionsPlanned int `json:"sections_planned"`

	// SectionsCompleted counts section sub-pipelines that produced content.
	SectionsCompleted int `json:"sections_completed"`

	// SectionsFailed counts section sub-pipelines that failed.
	SectionsFailed int `json:"sections_failed"`

	// SectionsInFlight counts sub-pipelines currently running.
	SectionsInFlight int `json:"sections_in_flight"`

	LastUpdatedAt time.Time `json:"last_updated_at"`
}
