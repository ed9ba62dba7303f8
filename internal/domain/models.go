// Package domain provides domain models and business logic for the Research Report Service.
package domain

// RunStatus represents the lifecycle states of a pipeline run.
// These values must match the database enum run_status.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusPlanning    RunStatus = "planning"
	RunStatusResearching RunStatus = "researching"
	RunStatusReporting   RunStatus = "reporting"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidRunStatus reports whether s is a known run status value.
func IsValidRunStatus(s RunStatus) bool {
	switch s {
	case RunStatusPending, RunStatusPlanning, RunStatusResearching,
		RunStatusReporting, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StageName identifies one of the pipeline stages.
type StageName string

const (
	StagePlanning StageName = "planning"
	StageResearch StageName = "research"
	StageReport   StageName = "report"
)

// SectionStatus represents the outcome of a single section sub-pipeline.
// These values must match the database enum section_status.
type SectionStatus string

const (
	SectionStatusPending   SectionStatus = "pending"
	SectionStatusCompleted SectionStatus = "completed"
	SectionStatusFailed    SectionStatus = "failed"
)

// ErrorKind classifies failures surfaced by external calls and the pipeline.
type ErrorKind string

const (
	ErrorKindInvalidInput         ErrorKind = "invalid_input"
	ErrorKindTransient            ErrorKind = "transient"
	ErrorKindRateLimited          ErrorKind = "rate_limited"
	ErrorKindUnavailable          ErrorKind = "unavailable"
	ErrorKindTimeout              ErrorKind = "timeout"
	ErrorKindInsufficientSections ErrorKind = "insufficient_sections"
	ErrorKindCancelled            ErrorKind = "cancelled"
	ErrorKindInternal             ErrorKind = "internal"
)

// SearchProvider identifies the web search backend used for a query.
type SearchProvider string

const (
	SearchProviderTavily     SearchProvider = "tavily"
	SearchProviderDuckDuckGo SearchProvider = "duckduckgo"
)

// GenerationProvider identifies the text generation backend.
type GenerationProvider string

const (
	GenerationProviderOpenAI    GenerationProvider = "openai"
	GenerationProviderAnthropic GenerationProvider = "anthropic"
)
