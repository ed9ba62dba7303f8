// Package activities provides Temporal activity implementations for the
// research report pipeline.
//
// Activity inputs and outputs are defined as serializable structs that cross the
// Temporal serialization boundary. Each activity receives an input struct and
// returns an output struct (or error). All fields must be exported for JSON
// serialization by the Temporal SDK's default data converter.
package activities

import (
	"github.com/google/uuid"

	"github.com/helixir/research-report-service/internal/domain"
)

// PlanTopicInput contains the parameters for the planning activity.
type PlanTopicInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Topic is the research subject to plan for.
	Topic string

	// SectionCount is the number of report sections to plan.
	SectionCount int
}

// PlanTopicOutput contains the results of the planning activity.
type PlanTopicOutput struct {
	// Plan is the research plan produced by the planning stage.
	Plan *domain.ResearchPlan
}

// ResearchSectionInput contains the parameters for the section research activity.
type ResearchSectionInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Topic is the overall research subject.
	Topic string

	// Section is the planned section to research.
	Section domain.SectionSpec

	// SearchDepth is the number of web searches to run for the section.
	SearchDepth int
}

// ResearchSectionOutput contains the results of the section research activity.
type ResearchSectionOutput struct {
	// Result is the completed section result.
	Result *domain.SectionResult
}

// ComposeReportInput contains the parameters for the report composition activity.
type ComposeReportInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Plan is the research plan from the planning stage.
	Plan domain.ResearchPlan

	// Sections are the completed section results in plan order.
	Sections []domain.SectionResult
}

// ComposeReportOutput contains the results of the report composition activity.
type ComposeReportOutput struct {
	// Report is the final report artifact.
	Report *domain.Report
}

// UpdateRunStatusInput contains the parameters for the run status update activity.
type UpdateRunStatusInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Status is the new run status to set.
	Status domain.RunStatus
}

// SavePlanInput contains the parameters for the plan persistence activity.
type SavePlanInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Plan is the research plan to persist.
	Plan *domain.ResearchPlan
}

// SaveSectionResultInput contains the parameters for the section result
// persistence activity.
type SaveSectionResultInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Result is the section result to upsert.
	Result *domain.SectionResult
}

// ListSectionResultsInput contains the parameters for loading persisted
// section results.
type ListSectionResultsInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID
}

// ListSectionResultsOutput contains the persisted section results for a run.
type ListSectionResultsOutput struct {
	// Results are the section results in section index order.
	Results []*domain.SectionResult
}

// SaveReportInput contains the parameters for the report persistence activity.
type SaveReportInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Report is the final report artifact to persist.
	Report *domain.Report
}

// RecordFailureInput contains the parameters for the failure recording activity.
type RecordFailureInput struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Failure records the failing stage and error classification.
	Failure domain.FailureInfo
}

// PublishRunEventInput is the serializable input for the PublishRunEvent activity.
type PublishRunEventInput struct {
	// EventType is the run lifecycle event type (e.g., "run.started").
	EventType string

	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Topic is the research subject of the run.
	Topic string

	// Status is the run status at the time of the event.
	Status domain.RunStatus

	// Failure carries stage and classification for run.failed events.
	Failure *domain.FailureInfo
}
