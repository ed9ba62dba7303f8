package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/observability"
	"github.com/helixir/research-report-service/internal/repository"
)

// StatusActivities provides Temporal activities for run status transitions
// and artifact persistence (plan, section results, report, failure info).
// Methods on this struct are registered as Temporal activities via the worker.
type StatusActivities struct {
	runRepo repository.RunRepository
	metrics *observability.Metrics
}

// NewStatusActivities creates a new StatusActivities instance with the given
// repository. The metrics parameter may be nil (metrics recording will be
// skipped).
func NewStatusActivities(runRepo repository.RunRepository, metrics *observability.Metrics) *StatusActivities {
	return &StatusActivities{
		runRepo: runRepo,
		metrics: metrics,
	}
}

// UpdateRunStatus transitions the run to the given status. The repository
// validates the transition against the run state machine under a row lock.
func (a *StatusActivities) UpdateRunStatus(ctx context.Context, input UpdateRunStatusInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("updating run status",
		"runID", input.RunID,
		"status", input.Status,
	)

	if err := a.runRepo.UpdateStatus(ctx, input.RunID, input.Status); err != nil {
		logger.Error("failed to update run status",
			"runID", input.RunID,
			"status", input.Status,
			"error", err,
		)
		return fmt.Errorf("update run status to %s: %w", input.Status, err)
	}

	// Record metrics for terminal states.
	if a.metrics != nil {
		switch input.Status {
		case domain.RunStatusCompleted:
			a.metrics.RecordRunCompleted(0)
		case domain.RunStatusCancelled:
			a.metrics.RecordRunCancelled()
		}
	}

	logger.Info("run status updated",
		"runID", input.RunID,
		"status", input.Status,
	)

	return nil
}

// SavePlan persists the research plan produced by the planning stage.
func (a *StatusActivities) SavePlan(ctx context.Context, input SavePlanInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("saving plan",
		"runID", input.RunID,
		"sections", planSectionCount(input.Plan),
	)

	if err := a.runRepo.SavePlan(ctx, input.RunID, input.Plan); err != nil {
		logger.Error("failed to save plan",
			"runID", input.RunID,
			"error", err,
		)
		return fmt.Errorf("save plan: %w", err)
	}

	return nil
}

// SaveSectionResult upserts the outcome of one section sub-pipeline. Retried
// sections overwrite their previous row, so persistence is idempotent across
// workflow replays.
func (a *StatusActivities) SaveSectionResult(ctx context.Context, input SaveSectionResultInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("saving section result",
		"runID", input.RunID,
		"sectionIndex", resultIndex(input.Result),
		"status", resultStatus(input.Result),
	)

	if err := a.runRepo.SaveSectionResult(ctx, input.RunID, input.Result); err != nil {
		logger.Error("failed to save section result",
			"runID", input.RunID,
			"sectionIndex", resultIndex(input.Result),
			"error", err,
		)
		return fmt.Errorf("save section result: %w", err)
	}

	return nil
}

// ListSectionResults loads all persisted section results for a run. The
// coordinator consults these on start so a re-run workflow does not repeat
// sections that already committed.
func (a *StatusActivities) ListSectionResults(ctx context.Context, input ListSectionResultsInput) (*ListSectionResultsOutput, error) {
	results, err := a.runRepo.ListSectionResults(ctx, input.RunID)
	if err != nil {
		return nil, fmt.Errorf("list section results: %w", err)
	}

	return &ListSectionResultsOutput{Results: results}, nil
}

// SaveReport persists the final report artifact.
func (a *StatusActivities) SaveReport(ctx context.Context, input SaveReportInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("saving report",
		"runID", input.RunID,
	)

	if err := a.runRepo.SaveReport(ctx, input.RunID, input.Report); err != nil {
		logger.Error("failed to save report",
			"runID", input.RunID,
			"error", err,
		)
		return fmt.Errorf("save report: %w", err)
	}

	return nil
}

// RecordFailure marks the run as failed with the originating stage and error
// classification.
func (a *StatusActivities) RecordFailure(ctx context.Context, input RecordFailureInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("recording run failure",
		"runID", input.RunID,
		"stage", input.Failure.Stage,
		"kind", input.Failure.Kind,
	)

	if err := a.runRepo.RecordFailure(ctx, input.RunID, input.Failure); err != nil {
		logger.Error("failed to record run failure",
			"runID", input.RunID,
			"error", err,
		)
		return fmt.Errorf("record failure: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordRunFailed(0)
		a.metrics.RecordStageFailed(string(input.Failure.Stage), string(input.Failure.Kind))
	}

	return nil
}

func planSectionCount(plan *domain.ResearchPlan) int {
	if plan == nil {
		return 0
	}
	return len(plan.Sections)
}

func resultIndex(result *domain.SectionResult) int {
	if result == nil {
		return -1
	}
	return result.Index
}

func resultStatus(result *domain.SectionResult) domain.SectionStatus {
	if result == nil {
		return ""
	}
	return result.Status
}
