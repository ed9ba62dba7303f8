package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/research-report-service/internal/domain"
)

// RunRepository handles pipeline run persistence and lifecycle management.
type RunRepository interface {
	// Create inserts a new pipeline run. The run must have a valid ID and a
	// non-empty topic. Returns domain.ErrAlreadyExists if a run with the
	// same ID already exists.
	Create(ctx context.Context, run *domain.PipelineRun) error

	// Get retrieves a pipeline run by its ID.
	// Returns domain.ErrNotFound if no matching run exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error)

	// GetByWorkflowID retrieves a pipeline run by its Temporal workflow ID.
	// Returns domain.ErrNotFound if no matching run exists.
	GetByWorkflowID(ctx context.Context, workflowID string) (*domain.PipelineRun, error)

	// List retrieves pipeline runs matching the filter criteria. Returns the
	// matching runs and the total count for pagination; the count reflects
	// all matching records regardless of limit and offset.
	List(ctx context.Context, filter RunFilter) ([]*domain.PipelineRun, int64, error)

	// UpdateStatus transitions the run to the given status. The transition
	// is validated against the run state machine; an invalid transition
	// returns an error wrapping domain.ErrInvalidInput. Entering the
	// planning stage sets started_at; entering a terminal status sets
	// completed_at.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus) error

	// SetWorkflowIDs records the Temporal workflow and run IDs after the
	// workflow has been started.
	SetWorkflowIDs(ctx context.Context, id uuid.UUID, workflowID, temporalRunID string) error

	// SavePlan stores the research plan produced by the planning stage.
	SavePlan(ctx context.Context, id uuid.UUID, plan *domain.ResearchPlan) error

	// SaveSectionResult upserts the outcome of one section sub-pipeline,
	// keyed by (run_id, section_index). A retried section overwrites its
	// previous row.
	SaveSectionResult(ctx context.Context, runID uuid.UUID, result *domain.SectionResult) error

	// ListSectionResults returns all section results for a run in section
	// index order.
	ListSectionResults(ctx context.Context, runID uuid.UUID) ([]*domain.SectionResult, error)

	// SaveReport stores the final report artifact.
	SaveReport(ctx context.Context, id uuid.UUID, report *domain.Report) error

	// RecordFailure marks the run as failed with the originating stage and
	// error classification. Applying it to an already-terminal run returns
	// an error wrapping domain.ErrInvalidInput.
	RecordFailure(ctx context.Context, id uuid.UUID, failure domain.FailureInfo) error
}

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	// Status filters by one or more run statuses (optional). When multiple
	// statuses are provided, runs matching any status are returned.
	Status []domain.RunStatus

	// CreatedAfter filters to runs created after this timestamp (optional).
	CreatedAfter *time.Time

	// CreatedBefore filters to runs created before this timestamp (optional).
	CreatedBefore *time.Time

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate normalizes pagination values.
func (f *RunFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
