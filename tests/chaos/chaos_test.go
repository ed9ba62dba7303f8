// Package chaos provides fault injection tests for the ResearchReportWorkflow.
//
// These tests verify that the workflow handles various failure scenarios
// correctly, including transient persistence failures, section research
// failures, event publisher outages, and status update failures. All tests
// use the Temporal test environment with mocked activities (no external
// services required).
package chaos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/temporal/activities"
	"github.com/helixir/research-report-service/internal/temporal/workflows"
)

// newChaosInput returns a ResearchWorkflowInput configured for chaos tests.
func newChaosInput() workflows.ResearchWorkflowInput {
	return workflows.ResearchWorkflowInput{
		RunID: uuid.New(),
		Topic: "chaos test topic",
		Config: domain.RunConfiguration{
			SectionCount:           2,
			SearchDepth:            1,
			ConcurrencyLimit:       2,
			MinSectionSuccessRatio: 1.0,
		},
	}
}

func chaosPlan(topic string) *domain.ResearchPlan {
	return &domain.ResearchPlan{
		Topic:       topic,
		Methodology: "chaos methodology",
		Sections: []domain.SectionSpec{
			{Index: 0, Title: "Section A"},
			{Index: 1, Title: "Section B"},
		},
	}
}

func completedSection(section domain.SectionSpec) *activities.ResearchSectionOutput {
	return &activities.ResearchSectionOutput{
		Result: &domain.SectionResult{
			Index:       section.Index,
			Title:       section.Title,
			Content:     "chaos findings",
			Status:      domain.SectionStatusCompleted,
			CompletedAt: time.Now().UTC(),
		},
	}
}

// TestChaos_StatusPersistenceFailsThenRecovers verifies that the workflow
// completes successfully when the status update activity fails on its first
// two invocations with retryable errors, then succeeds.
//
// Persistence activities carry a retry policy with multiple attempts, so a
// transient database outage during a status transition must not fail the run.
// We use a closure-based mock with an atomic counter: the first two attempts
// return a retryable ApplicationError; later attempts succeed.
func TestChaos_StatusPersistenceFailsThenRecovers(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(workflows.ResearchReportWorkflow)
	env.RegisterWorkflow(workflows.SectionResearchWorkflow)

	input := newChaosInput()

	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	var statusCallCount int32
	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ activities.UpdateRunStatusInput) error {
			n := atomic.AddInt32(&statusCallCount, 1)
			if n <= 2 {
				return temporal.NewApplicationError(
					"database connection reset",
					"DB_TRANSIENT",
				)
			}
			return nil
		},
	)

	env.OnActivity(eventAct.PublishRunEvent, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(pipelineAct.PlanTopic, mock.Anything, mock.Anything).Return(
		&activities.PlanTopicOutput{Plan: chaosPlan(input.Topic)}, nil,
	)
	env.OnActivity(statusAct.SavePlan, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(statusAct.ListSectionResults, mock.Anything, mock.Anything).Return(
		&activities.ListSectionResultsOutput{}, nil,
	)

	env.OnActivity(pipelineAct.ResearchSection, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.ResearchSectionInput) (*activities.ResearchSectionOutput, error) {
			return completedSection(in.Section), nil
		},
	)
	env.OnActivity(statusAct.SaveSectionResult, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(pipelineAct.ComposeReport, mock.Anything, mock.Anything).Return(
		&activities.ComposeReportOutput{
			Report: &domain.Report{
				Markdown: "# Chaos Report",
				Metadata: domain.ReportMetadata{SectionCount: 2, GeneratedAt: time.Now().UTC()},
			},
		}, nil,
	)
	env.OnActivity(statusAct.SaveReport, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(workflows.ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result workflows.ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, input.RunID, result.RunID)
	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
	assert.Equal(t, 2, result.SectionsCompleted)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&statusCallCount), int32(3),
		"transient failures should have been retried")

	env.AssertExpectations(t)
}

// TestChaos_EventPublisherDown verifies that the workflow completes when
// every PublishRunEvent call fails.
//
// Event publishing is fire-and-forget: a Kafka outage must never fail a run.
func TestChaos_EventPublisherDown(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(workflows.ResearchReportWorkflow)
	env.RegisterWorkflow(workflows.SectionResearchWorkflow)

	input := newChaosInput()

	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(nil)

	// Every event publish fails with a non-retryable error.
	env.OnActivity(eventAct.PublishRunEvent, mock.Anything, mock.Anything).Return(
		temporal.NewNonRetryableApplicationError(
			"kafka brokers unreachable",
			"KAFKA_DOWN",
			nil, // cause
		),
	)

	env.OnActivity(pipelineAct.PlanTopic, mock.Anything, mock.Anything).Return(
		&activities.PlanTopicOutput{Plan: chaosPlan(input.Topic)}, nil,
	)
	env.OnActivity(statusAct.SavePlan, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(statusAct.ListSectionResults, mock.Anything, mock.Anything).Return(
		&activities.ListSectionResultsOutput{}, nil,
	)

	env.OnActivity(pipelineAct.ResearchSection, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.ResearchSectionInput) (*activities.ResearchSectionOutput, error) {
			return completedSection(in.Section), nil
		},
	)
	env.OnActivity(statusAct.SaveSectionResult, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(pipelineAct.ComposeReport, mock.Anything, mock.Anything).Return(
		&activities.ComposeReportOutput{
			Report: &domain.Report{
				Markdown: "# Chaos Report",
				Metadata: domain.ReportMetadata{SectionCount: 2, GeneratedAt: time.Now().UTC()},
			},
		}, nil,
	)
	env.OnActivity(statusAct.SaveReport, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(workflows.ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError(),
		"event publisher outage must not fail the run")

	var result workflows.ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
}

// TestChaos_AllSectionsFail verifies workflow behavior when every
// ResearchSection call fails.
//
// Section failures are recorded as data and the run proceeds to the success
// threshold check. With every section failed the threshold cannot be met, so
// the run fails with an insufficient-sections error and the failure is
// recorded with the research stage.
func TestChaos_AllSectionsFail(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(workflows.ResearchReportWorkflow)
	env.RegisterWorkflow(workflows.SectionResearchWorkflow)

	input := newChaosInput()

	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(eventAct.PublishRunEvent, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(pipelineAct.PlanTopic, mock.Anything, mock.Anything).Return(
		&activities.PlanTopicOutput{Plan: chaosPlan(input.Topic)}, nil,
	)
	env.OnActivity(statusAct.SavePlan, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(statusAct.ListSectionResults, mock.Anything, mock.Anything).Return(
		&activities.ListSectionResultsOutput{}, nil,
	)

	env.OnActivity(pipelineAct.ResearchSection, mock.Anything, mock.Anything).Return(
		nil, temporal.NewNonRetryableApplicationError(
			"all search providers unavailable",
			"SEARCH_FAILED",
			nil, // cause
		),
	)

	// Failed section results are still persisted.
	var savedFailed int32
	env.OnActivity(statusAct.SaveSectionResult, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.SaveSectionResultInput) error {
			if in.Result.Status == domain.SectionStatusFailed {
				atomic.AddInt32(&savedFailed, 1)
			}
			return nil
		},
	)

	var mu sync.Mutex
	var recordedStage domain.StageName
	env.OnActivity(statusAct.RecordFailure, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.RecordFailureInput) error {
			mu.Lock()
			recordedStage = in.Failure.Stage
			mu.Unlock()
			return nil
		},
	)

	env.ExecuteWorkflow(workflows.ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient sections")
	assert.Equal(t, int32(2), atomic.LoadInt32(&savedFailed),
		"every failed section should be persisted as data")
	mu.Lock()
	assert.Equal(t, domain.StageResearch, recordedStage)
	mu.Unlock()
}

// TestChaos_PlanningFails verifies that a planning stage failure records the
// failure with the planning stage and surfaces the original error.
func TestChaos_PlanningFails(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(workflows.ResearchReportWorkflow)
	env.RegisterWorkflow(workflows.SectionResearchWorkflow)

	input := newChaosInput()

	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(eventAct.PublishRunEvent, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(pipelineAct.PlanTopic, mock.Anything, mock.Anything).Return(
		nil, fmt.Errorf("llm returned malformed plan"),
	)

	var mu sync.Mutex
	var recorded domain.FailureInfo
	env.OnActivity(statusAct.RecordFailure, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.RecordFailureInput) error {
			mu.Lock()
			recorded = in.Failure
			mu.Unlock()
			return nil
		},
	)

	env.ExecuteWorkflow(workflows.ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan topic")
	mu.Lock()
	assert.Equal(t, domain.StagePlanning, recorded.Stage)
	assert.NotEmpty(t, recorded.Message)
	mu.Unlock()
}

// TestChaos_StatusUpdateFailsRepeatedly verifies that the workflow fails
// when the initial status update returns a non-retryable error.
//
// Status updates are on the critical path: the first transition to planning
// must be durably recorded before any external calls run. The failure path
// also attempts to record the failure and publish a run.failed event, both of
// which may fail without affecting the returned error.
func TestChaos_StatusUpdateFailsRepeatedly(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(workflows.ResearchReportWorkflow)
	env.RegisterWorkflow(workflows.SectionResearchWorkflow)

	input := newChaosInput()

	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(
		temporal.NewNonRetryableApplicationError(
			"database connection lost",
			"DB_UNAVAILABLE",
			nil, // cause
		),
	)

	// The failure path also records the failure; let it fail too.
	env.OnActivity(statusAct.RecordFailure, mock.Anything, mock.Anything).Return(
		temporal.NewNonRetryableApplicationError(
			"database connection lost",
			"DB_UNAVAILABLE",
			nil, // cause
		),
	)

	env.OnActivity(eventAct.PublishRunEvent, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(workflows.ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update status to planning",
		"error should indicate which status transition failed")
}
