package workflows

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/temporal/activities"
)

// SectionWorkflowInput is the input for a single section research child
// workflow.
type SectionWorkflowInput struct {
	// RunID is the parent pipeline run identifier.
	RunID uuid.UUID

	// Topic is the overall research topic.
	Topic string

	// Section is the planned section to research.
	Section domain.SectionSpec

	// SearchDepth is the number of search queries to issue for the section.
	SearchDepth int
}

// SectionWorkflowResult is the output of a section research child workflow.
type SectionWorkflowResult struct {
	// Result is the section outcome, completed or failed. It is always
	// populated when the workflow returns without error.
	Result *domain.SectionResult
}

// SectionResearchWorkflow researches a single report section as a child
// workflow of ResearchReportWorkflow.
//
// A research failure does not fail this workflow: the failed outcome is
// persisted and returned as data so the parent can apply its minimum success
// policy over all sections. The workflow only errors when the outcome itself
// cannot be persisted.
func SectionResearchWorkflow(ctx workflow.Context, input SectionWorkflowInput) (*SectionWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting section research",
		"runID", input.RunID,
		"sectionIndex", input.Section.Index,
		"title", input.Section.Title,
	)

	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities

	// Single attempt: search retries happen in the gateway.
	researchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: sectionActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var researchOutput activities.ResearchSectionOutput
	err := workflow.ExecuteActivity(researchCtx, pipelineAct.ResearchSection, activities.ResearchSectionInput{
		RunID:       input.RunID,
		Topic:       input.Topic,
		Section:     input.Section,
		SearchDepth: input.SearchDepth,
	}).Get(ctx, &researchOutput)

	result := researchOutput.Result
	if err != nil {
		logger.Warn("section research failed",
			"runID", input.RunID,
			"sectionIndex", input.Section.Index,
			"error", err,
		)
		result = &domain.SectionResult{
			Index:       input.Section.Index,
			Title:       input.Section.Title,
			Status:      domain.SectionStatusFailed,
			Error:       err.Error(),
			CompletedAt: workflow.Now(ctx).UTC(),
		}
	}

	statusCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})

	saveErr := workflow.ExecuteActivity(statusCtx, statusAct.SaveSectionResult, activities.SaveSectionResultInput{
		RunID:  input.RunID,
		Result: result,
	}).Get(ctx, nil)
	if saveErr != nil {
		return nil, fmt.Errorf("save section %d result: %w", input.Section.Index, saveErr)
	}

	logger.Info("section research finished",
		"runID", input.RunID,
		"sectionIndex", input.Section.Index,
		"status", result.Status,
	)

	return &SectionWorkflowResult{Result: result}, nil
}
