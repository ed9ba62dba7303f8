// Package workflows defines Temporal workflow implementations for the
// research report pipeline.
package workflows

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/events"
	rrtemporal "github.com/helixir/research-report-service/internal/temporal"
	"github.com/helixir/research-report-service/internal/temporal/activities"
)

// Re-export signal/query name constants from the parent temporal package for
// convenience. These are defined in the parent package so the server layer can
// reference them without depending on the workflows package.
const (
	SignalCancel  = rrtemporal.SignalCancel
	QueryProgress = rrtemporal.QueryProgress
)

// Activity timeout constants.
const (
	planningActivityTimeout = 10 * time.Minute
	sectionActivityTimeout  = 15 * time.Minute
	reportActivityTimeout   = 10 * time.Minute
	statusActivityTimeout   = 30 * time.Second
)

// defaultConcurrencyLimit caps concurrent section child workflows when the
// run configuration does not specify one.
const defaultConcurrencyLimit = 3

// ResearchWorkflowInput is an alias for the shared input type defined in the
// parent temporal package. This allows the workflow function signature to
// remain unchanged while the type is importable from either location.
type ResearchWorkflowInput = rrtemporal.ResearchWorkflowInput

// ResearchWorkflowResult contains the final results of a research report workflow.
type ResearchWorkflowResult struct {
	// RunID is the pipeline run identifier.
	RunID uuid.UUID

	// Status is the final status of the run.
	Status string

	// SectionsCompleted is the number of sections that produced content.
	SectionsCompleted int

	// SectionsFailed is the number of sections that failed research.
	SectionsFailed int

	// TotalSources is the number of unique sources cited in the report.
	TotalSources int

	// WordCount is the word count of the final report.
	WordCount int

	// Duration is the total workflow execution time in seconds.
	Duration float64
}

// workflowProgress tracks the internal progress state of the workflow, exposed
// via the QueryProgress query handler.
type workflowProgress struct {
	Status            string
	Stage             string
	SectionsPlanned   int
	SectionsCompleted int
	SectionsFailed    int
	SectionsInFlight  int
}

// ResearchReportWorkflow orchestrates a research report run through its three
// stages.
//
// The workflow proceeds through the following stages:
//  1. Planning: one activity turns the topic into a sectioned research plan
//  2. Research: one child workflow per planned section, dispatched with a
//     bounded concurrency window; failed sections do not abort the stage
//  3. Report: one activity composes the final markdown report from the
//     completed sections in plan order
//
// Each status transition is persisted before the stage runs, so a crashed
// worker resumes from durable state. Stage activities run with a single
// attempt (retries against remote providers happen below, in the gateway);
// persistence activities retry. Section results committed by a previous
// incarnation of the workflow are loaded up front and not re-researched.
//
// The workflow supports cancellation via the "cancel" signal and progress
// queries via the "progress" query type.
func ResearchReportWorkflow(ctx workflow.Context, input ResearchWorkflowInput) (*ResearchWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)
	workflowInfo := workflow.GetInfo(ctx)

	config := input.Config
	if config.ConcurrencyLimit <= 0 {
		config.ConcurrencyLimit = defaultConcurrencyLimit
	}
	if config.MinSectionSuccessRatio <= 0 {
		config.MinSectionSuccessRatio = 1.0
	}

	// Track progress for query handler.
	progress := &workflowProgress{
		Status: string(domain.RunStatusPending),
		Stage:  "initializing",
	}

	// Register query handler for progress reporting.
	err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*workflowProgress, error) {
		return progress, nil
	})
	if err != nil {
		logger.Error("failed to register progress query handler", "error", err)
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	// Set up cancellation signal handling.
	cancelled := false
	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	signalCh := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		signalCh.Receive(gCtx, nil)
		logger.Info("received cancel signal")
		cancelled = true
		cancelFunc()
	})

	// Activity nil-pointer variables for method references.
	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	// Stage activities run once: the gateway below them already retries
	// transient provider failures, so a stage error means the stage is
	// exhausted and the run should fail.
	stageOptions := func(timeout time.Duration) workflow.ActivityOptions {
		return workflow.ActivityOptions{
			StartToCloseTimeout: timeout,
			RetryPolicy: &temporal.RetryPolicy{
				MaximumAttempts: 1,
			},
		}
	}

	persistenceRetry := &temporal.RetryPolicy{
		InitialInterval:    500 * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaximumInterval:    10 * time.Second,
		MaximumAttempts:    5,
	}

	statusCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy:         persistenceRetry,
	})

	eventCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy:         persistenceRetry,
	})

	// Helper to update status and track in progress.
	updateStatus := func(status domain.RunStatus, stage string) error {
		progress.Status = string(status)
		progress.Stage = stage
		return workflow.ExecuteActivity(statusCtx, statusAct.UpdateRunStatus, activities.UpdateRunStatusInput{
			RunID:  input.RunID,
			Status: status,
		}).Get(cancelCtx, nil)
	}

	// publishEvent is fire-and-forget: event delivery never fails the run.
	publishEvent := func(eventCtx workflow.Context, eventType string, status domain.RunStatus, failure *domain.FailureInfo) {
		_ = workflow.ExecuteActivity(eventCtx, eventAct.PublishRunEvent, activities.PublishRunEventInput{
			EventType: eventType,
			RunID:     input.RunID,
			Topic:     input.Topic,
			Status:    status,
			Failure:   failure,
		}).Get(eventCtx, nil)
	}

	// rootStatusCtx uses the root context so terminal status still commits
	// after cancelCtx has been cancelled.
	rootStatusCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy:         persistenceRetry,
	})

	// handleCancelled persists the cancelled status and ends the run without
	// a workflow error: cancellation is an outcome, not a failure.
	handleCancelled := func() (*ResearchWorkflowResult, error) {
		logger.Info("run cancelled", "runID", input.RunID)
		progress.Status = string(domain.RunStatusCancelled)

		_ = workflow.ExecuteActivity(rootStatusCtx, statusAct.UpdateRunStatus, activities.UpdateRunStatusInput{
			RunID:  input.RunID,
			Status: domain.RunStatusCancelled,
		}).Get(ctx, nil)

		publishEvent(rootStatusCtx, events.EventTypeRunCancelled, domain.RunStatusCancelled, nil)

		return &ResearchWorkflowResult{
			RunID:             input.RunID,
			Status:            string(domain.RunStatusCancelled),
			SectionsCompleted: progress.SectionsCompleted,
			SectionsFailed:    progress.SectionsFailed,
			Duration:          workflow.Now(ctx).Sub(startTime).Seconds(),
		}, nil
	}

	// handleFailure records the failure with its originating stage and
	// returns the original error.
	handleFailure := func(stage domain.StageName, originalErr error) (*ResearchWorkflowResult, error) {
		if cancelled {
			return handleCancelled()
		}

		logger.Error("workflow failed", "stage", stage, "error", originalErr)
		progress.Status = string(domain.RunStatusFailed)

		failure := domain.FailureInfo{
			Stage:   stage,
			Kind:    domain.KindForError(originalErr),
			Message: originalErr.Error(),
		}

		_ = workflow.ExecuteActivity(rootStatusCtx, statusAct.RecordFailure, activities.RecordFailureInput{
			RunID:   input.RunID,
			Failure: failure,
		}).Get(ctx, nil)

		publishEvent(rootStatusCtx, events.EventTypeRunFailed, domain.RunStatusFailed, &failure)

		return nil, originalErr
	}

	// =========================================================================
	// Stage 1: Planning
	// =========================================================================

	logger.Info("starting planning stage", "runID", input.RunID, "topic", input.Topic)
	if err := updateStatus(domain.RunStatusPlanning, "planning"); err != nil {
		return handleFailure(domain.StagePlanning, fmt.Errorf("update status to planning: %w", err))
	}

	publishEvent(eventCtx, events.EventTypeRunStarted, domain.RunStatusPlanning, nil)

	planCtx := workflow.WithActivityOptions(cancelCtx, stageOptions(planningActivityTimeout))
	var planOutput activities.PlanTopicOutput
	err = workflow.ExecuteActivity(planCtx, pipelineAct.PlanTopic, activities.PlanTopicInput{
		RunID:        input.RunID,
		Topic:        input.Topic,
		SectionCount: config.SectionCount,
	}).Get(cancelCtx, &planOutput)
	if err != nil {
		return handleFailure(domain.StagePlanning, fmt.Errorf("plan topic: %w", err))
	}

	plan := planOutput.Plan
	progress.SectionsPlanned = len(plan.Sections)
	logger.Info("plan created", "runID", input.RunID, "sections", len(plan.Sections))

	err = workflow.ExecuteActivity(statusCtx, statusAct.SavePlan, activities.SavePlanInput{
		RunID: input.RunID,
		Plan:  plan,
	}).Get(cancelCtx, nil)
	if err != nil {
		return handleFailure(domain.StagePlanning, fmt.Errorf("save plan: %w", err))
	}

	// =========================================================================
	// Stage 2: Research (one child workflow per section)
	// =========================================================================

	logger.Info("starting research stage", "runID", input.RunID)
	if err := updateStatus(domain.RunStatusResearching, "researching"); err != nil {
		return handleFailure(domain.StageResearch, fmt.Errorf("update status to researching: %w", err))
	}

	// Load section results committed by a previous incarnation of this
	// workflow so already-researched sections are not repeated.
	var existing activities.ListSectionResultsOutput
	err = workflow.ExecuteActivity(statusCtx, statusAct.ListSectionResults, activities.ListSectionResultsInput{
		RunID: input.RunID,
	}).Get(cancelCtx, &existing)
	if err != nil {
		return handleFailure(domain.StageResearch, fmt.Errorf("list section results: %w", err))
	}

	outcomes := make([]*domain.SectionResult, len(plan.Sections))
	for _, result := range existing.Results {
		if result == nil || result.Index < 0 || result.Index >= len(outcomes) {
			continue
		}
		if result.Status == domain.SectionStatusCompleted {
			outcomes[result.Index] = result
			progress.SectionsCompleted++
		}
	}

	var pending []domain.SectionSpec
	for _, section := range plan.Sections {
		if outcomes[section.Index] == nil {
			pending = append(pending, section)
		}
	}

	// Dispatch section child workflows with a bounded concurrency window.
	// Futures resolve through a selector; completion order does not matter
	// because results carry their section index.
	timedOut := false
	if len(pending) > 0 {
		researchCtx, cancelResearch := workflow.WithCancel(cancelCtx)
		next := 0
		inFlight := 0
		selector := workflow.NewSelector(cancelCtx)

		// An overall stage timeout cancels outstanding section workflows.
		// Already-committed results are unaffected; cancelled and
		// never-dispatched sections count as failed for the success policy.
		if config.ResearchTimeout > 0 {
			selector.AddFuture(workflow.NewTimer(researchCtx, config.ResearchTimeout), func(f workflow.Future) {
				if err := f.Get(researchCtx, nil); err != nil {
					// Timer cancelled: the stage drained first.
					return
				}
				logger.Warn("research stage timed out",
					"runID", input.RunID,
					"timeout", config.ResearchTimeout,
				)
				timedOut = true
				cancelResearch()
			})
		}

		for (next < len(pending) && !timedOut) || inFlight > 0 {
			for next < len(pending) && !timedOut && inFlight < config.ConcurrencyLimit {
				section := pending[next]
				idx := section.Index

				childCtx := workflow.WithChildOptions(researchCtx, workflow.ChildWorkflowOptions{
					WorkflowID: fmt.Sprintf("%s-section-%d", workflowInfo.WorkflowExecution.ID, idx),
					TaskQueue:  workflowInfo.TaskQueueName,
				})

				future := workflow.ExecuteChildWorkflow(childCtx, SectionResearchWorkflow, SectionWorkflowInput{
					RunID:       input.RunID,
					Topic:       input.Topic,
					Section:     section,
					SearchDepth: config.SearchDepth,
				})

				selector.AddFuture(future, func(f workflow.Future) {
					inFlight--
					var out SectionWorkflowResult
					if err := f.Get(cancelCtx, &out); err != nil {
						logger.Warn("section workflow failed",
							"sectionIndex", idx,
							"error", err,
						)
						progress.SectionsFailed++
						return
					}
					outcomes[idx] = out.Result
					if out.Result != nil && out.Result.Status == domain.SectionStatusCompleted {
						progress.SectionsCompleted++
					} else {
						progress.SectionsFailed++
					}
				})

				inFlight++
				next++
				progress.SectionsInFlight = inFlight
			}

			selector.Select(cancelCtx)
			progress.SectionsInFlight = inFlight

			if cancelled {
				return handleCancelled()
			}
		}

		cancelResearch()

		// Sections never dispatched because the stage timed out count as
		// failed.
		if timedOut {
			progress.SectionsFailed += len(pending) - next
		}
	}

	// Evaluate the minimum success policy once the dispatcher drains.
	required := int(math.Ceil(config.MinSectionSuccessRatio * float64(len(plan.Sections))))
	if required < 1 {
		required = 1
	}
	if progress.SectionsCompleted < required {
		if timedOut {
			return handleFailure(domain.StageResearch, fmt.Errorf(
				"research stage timed out after %s with %d of %d required sections: %w",
				config.ResearchTimeout, progress.SectionsCompleted, required, domain.ErrTimeout))
		}
		return handleFailure(domain.StageResearch, &domain.InsufficientSectionsError{
			Required:  required,
			Completed: progress.SectionsCompleted,
			Failed:    progress.SectionsFailed,
		})
	}

	logger.Info("research stage completed",
		"runID", input.RunID,
		"completed", progress.SectionsCompleted,
		"failed", progress.SectionsFailed,
	)

	// =========================================================================
	// Stage 3: Report
	// =========================================================================

	if err := updateStatus(domain.RunStatusReporting, "reporting"); err != nil {
		return handleFailure(domain.StageReport, fmt.Errorf("update status to reporting: %w", err))
	}

	// Completed sections in plan order, regardless of completion order.
	completedSections := make([]domain.SectionResult, 0, progress.SectionsCompleted)
	for _, result := range outcomes {
		if result != nil && result.Status == domain.SectionStatusCompleted {
			completedSections = append(completedSections, *result)
		}
	}

	reportCtx := workflow.WithActivityOptions(cancelCtx, stageOptions(reportActivityTimeout))
	var reportOutput activities.ComposeReportOutput
	err = workflow.ExecuteActivity(reportCtx, pipelineAct.ComposeReport, activities.ComposeReportInput{
		RunID:    input.RunID,
		Plan:     *plan,
		Sections: completedSections,
	}).Get(cancelCtx, &reportOutput)
	if err != nil {
		return handleFailure(domain.StageReport, fmt.Errorf("compose report: %w", err))
	}

	err = workflow.ExecuteActivity(statusCtx, statusAct.SaveReport, activities.SaveReportInput{
		RunID:  input.RunID,
		Report: reportOutput.Report,
	}).Get(cancelCtx, nil)
	if err != nil {
		return handleFailure(domain.StageReport, fmt.Errorf("save report: %w", err))
	}

	if err := updateStatus(domain.RunStatusCompleted, "completed"); err != nil {
		return handleFailure(domain.StageReport, fmt.Errorf("update status to completed: %w", err))
	}

	duration := workflow.Now(ctx).Sub(startTime).Seconds()

	result := &ResearchWorkflowResult{
		RunID:             input.RunID,
		Status:            string(domain.RunStatusCompleted),
		SectionsCompleted: progress.SectionsCompleted,
		SectionsFailed:    progress.SectionsFailed,
		TotalSources:      reportOutput.Report.Metadata.TotalSources,
		WordCount:         reportOutput.Report.Metadata.WordCount,
		Duration:          duration,
	}

	publishEvent(eventCtx, events.EventTypeRunCompleted, domain.RunStatusCompleted, nil)

	logger.Info("research report workflow completed",
		"runID", input.RunID,
		"sectionsCompleted", progress.SectionsCompleted,
		"sectionsFailed", progress.SectionsFailed,
		"words", result.WordCount,
		"duration", duration,
	)

	return result, nil
}

// IsCancellation reports whether the error chain stems from workflow
// cancellation.
func IsCancellation(err error) bool {
	var canceledErr *temporal.CanceledError
	return errors.As(err, &canceledErr)
}
