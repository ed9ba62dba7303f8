package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/events"
	"github.com/helixir/research-report-service/internal/temporal/activities"
)

// workflowMocks wires the common activity mocks and records their inputs.
// Optional fields steer individual mocks; they must be set before install,
// because the test environment matches the first registered expectation for
// an activity and ignores later duplicates.
type workflowMocks struct {
	mu sync.Mutex

	planErr      error
	persisted    []*domain.SectionResult
	failSections map[int]bool
	sectionDelay time.Duration

	statuses       []domain.RunStatus
	eventTypes     []string
	researched     []int
	recordedFailed *domain.FailureInfo
	composed       []domain.SectionResult
}

func (m *workflowMocks) install(env *testsuite.TestWorkflowEnvironment, plan *domain.ResearchPlan) {
	var pipelineAct *activities.PipelineActivities
	var statusAct *activities.StatusActivities
	var eventAct *activities.EventActivities

	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.UpdateRunStatusInput) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.statuses = append(m.statuses, input.Status)
			return nil
		})

	env.OnActivity(eventAct.PublishRunEvent, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.PublishRunEventInput) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.eventTypes = append(m.eventTypes, input.EventType)
			return nil
		})

	env.OnActivity(pipelineAct.PlanTopic, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ activities.PlanTopicInput) (*activities.PlanTopicOutput, error) {
			if m.planErr != nil {
				return nil, m.planErr
			}
			return &activities.PlanTopicOutput{Plan: plan}, nil
		})

	env.OnActivity(statusAct.SavePlan, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(statusAct.ListSectionResults, mock.Anything, mock.Anything).Return(
		&activities.ListSectionResultsOutput{Results: m.persisted}, nil)

	researchCall := env.OnActivity(pipelineAct.ResearchSection, mock.Anything, mock.Anything)
	if m.sectionDelay > 0 {
		researchCall.After(m.sectionDelay)
	}
	researchCall.Return(
		func(_ context.Context, input activities.ResearchSectionInput) (*activities.ResearchSectionOutput, error) {
			m.mu.Lock()
			m.researched = append(m.researched, input.Section.Index)
			failed := m.failSections[input.Section.Index]
			m.mu.Unlock()
			if failed {
				return nil, errors.New("all searches failed")
			}
			return &activities.ResearchSectionOutput{Result: &domain.SectionResult{
				Index:       input.Section.Index,
				Title:       input.Section.Title,
				Content:     "Section content.",
				Sources:     []domain.SourceRef{{URL: "https://example.org"}},
				Status:      domain.SectionStatusCompleted,
				CompletedAt: time.Now().UTC(),
			}}, nil
		})

	env.OnActivity(statusAct.SaveSectionResult, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(pipelineAct.ComposeReport, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.ComposeReportInput) (*activities.ComposeReportOutput, error) {
			m.mu.Lock()
			m.composed = input.Sections
			m.mu.Unlock()
			return &activities.ComposeReportOutput{Report: &domain.Report{
				Markdown: "# Report",
				Metadata: domain.ReportMetadata{
					SectionCount: len(input.Sections),
					TotalSources: len(input.Sections),
					WordCount:    420,
					GeneratedAt:  time.Now().UTC(),
				},
			}}, nil
		})

	env.OnActivity(statusAct.SaveReport, mock.Anything, mock.Anything).Return(nil)

	env.OnActivity(statusAct.RecordFailure, mock.Anything, mock.Anything).Return(
		func(_ context.Context, input activities.RecordFailureInput) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.recordedFailed = &input.Failure
			return nil
		})
}

func testWorkflowInput() ResearchWorkflowInput {
	return ResearchWorkflowInput{
		RunID: uuid.New(),
		Topic: "History of quantum error correction",
		Config: domain.RunConfiguration{
			SectionCount:           3,
			SearchDepth:            3,
			ConcurrencyLimit:       2,
			MinSectionSuccessRatio: 1.0,
		},
	}
}

func threeSectionPlan(topic string) *domain.ResearchPlan {
	return &domain.ResearchPlan{
		Topic: topic,
		Sections: []domain.SectionSpec{
			{Index: 0, Title: "Background"},
			{Index: 1, Title: "Key Developments"},
			{Index: 2, Title: "Open Problems"},
		},
	}
}

func TestResearchReportWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	mocks := &workflowMocks{}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, input.RunID, result.RunID)
	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
	assert.Equal(t, 3, result.SectionsCompleted)
	assert.Equal(t, 0, result.SectionsFailed)
	assert.Equal(t, 420, result.WordCount)

	assert.Equal(t, []domain.RunStatus{
		domain.RunStatusPlanning,
		domain.RunStatusResearching,
		domain.RunStatusReporting,
		domain.RunStatusCompleted,
	}, mocks.statuses)
	assert.Equal(t, []string{events.EventTypeRunStarted, events.EventTypeRunCompleted}, mocks.eventTypes)
	assert.Len(t, mocks.researched, 3)
}

func TestResearchReportWorkflow_ComposesSectionsInPlanOrder(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	input.Config.ConcurrencyLimit = 3
	mocks := &workflowMocks{}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	require.Len(t, mocks.composed, 3)
	for i, section := range mocks.composed {
		assert.Equal(t, i, section.Index)
	}
}

func TestResearchReportWorkflow_PlanningFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	mocks := &workflowMocks{planErr: errors.New("model returned malformed plan")}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan topic")

	require.NotNil(t, mocks.recordedFailed)
	assert.Equal(t, domain.StagePlanning, mocks.recordedFailed.Stage)
	assert.Contains(t, mocks.eventTypes, events.EventTypeRunFailed)
}

func TestResearchReportWorkflow_PartialSectionsAboveThreshold(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	input.Config.MinSectionSuccessRatio = 0.5
	mocks := &workflowMocks{failSections: map[int]bool{1: true}}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
	assert.Equal(t, 2, result.SectionsCompleted)
	assert.Equal(t, 1, result.SectionsFailed)

	// The failed section is excluded from the report.
	require.Len(t, mocks.composed, 2)
	assert.Equal(t, 0, mocks.composed[0].Index)
	assert.Equal(t, 2, mocks.composed[1].Index)
}

func TestResearchReportWorkflow_InsufficientSections(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	mocks := &workflowMocks{failSections: map[int]bool{1: true}}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient sections")

	require.NotNil(t, mocks.recordedFailed)
	assert.Equal(t, domain.StageResearch, mocks.recordedFailed.Stage)
	assert.Equal(t, domain.ErrorKindInsufficientSections, mocks.recordedFailed.Kind)
	assert.Contains(t, mocks.eventTypes, events.EventTypeRunFailed)
}

func TestResearchReportWorkflow_ResumeSkipsPersistedSections(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	mocks := &workflowMocks{persisted: []*domain.SectionResult{
		{Index: 0, Title: "Background", Content: "Persisted.", Status: domain.SectionStatusCompleted},
	}}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 3, result.SectionsCompleted)

	// Section 0 was already committed and must not be re-researched.
	assert.NotContains(t, mocks.researched, 0)
	assert.Len(t, mocks.researched, 2)
}

func TestResearchReportWorkflow_ResearchStageTimeout(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	input.Config.ResearchTimeout = time.Minute

	// Every section takes far longer than the stage bound.
	mocks := &workflowMocks{sectionDelay: 10 * time.Minute}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research stage timed out")

	require.NotNil(t, mocks.recordedFailed)
	assert.Equal(t, domain.StageResearch, mocks.recordedFailed.Stage)
	assert.Equal(t, domain.ErrorKindTimeout, mocks.recordedFailed.Kind)
	assert.Contains(t, mocks.eventTypes, events.EventTypeRunFailed)
	assert.NotContains(t, mocks.statuses, domain.RunStatusReporting)
}

func TestResearchReportWorkflow_ResearchTimerDisarmedOnDrain(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	// Sections finish well inside the stage bound: the armed timer must be
	// disarmed when the stage drains, not fail the run afterwards.
	input := testWorkflowInput()
	input.Config.ResearchTimeout = time.Minute
	mocks := &workflowMocks{sectionDelay: 10 * time.Second}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
	assert.Equal(t, 3, result.SectionsCompleted)
}

func TestResearchReportWorkflow_ConcurrencyWindow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	input.Config.SectionCount = 6
	input.Config.ConcurrencyLimit = 2

	plan := &domain.ResearchPlan{Topic: input.Topic}
	for i := 0; i < 6; i++ {
		plan.Sections = append(plan.Sections, domain.SectionSpec{
			Index: i,
			Title: fmt.Sprintf("Section %d", i),
		})
	}

	mocks := &workflowMocks{}
	mocks.install(env, plan)

	// High-water mark of concurrently running section workflows.
	var mu sync.Mutex
	active, peak := 0, 0
	env.SetOnChildWorkflowStartedListener(func(_ *workflow.Info, _ workflow.Context, _ converter.EncodedValues) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
	})
	env.SetOnChildWorkflowCompletedListener(func(_ *workflow.Info, _ converter.EncodedValue, _ error) {
		mu.Lock()
		active--
		mu.Unlock()
	})

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 6, result.SectionsCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "in-flight sections must not exceed the concurrency limit")
	assert.Len(t, mocks.researched, 6, "every queued section should eventually run")
}

func TestResearchReportWorkflow_CancelSignal(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	mocks := &workflowMocks{}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancel, nil)
	}, 0)

	env.ExecuteWorkflow(ResearchReportWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, string(domain.RunStatusCancelled), result.Status)
	assert.Contains(t, mocks.statuses, domain.RunStatusCancelled)
	assert.Contains(t, mocks.eventTypes, events.EventTypeRunCancelled)
	assert.NotContains(t, mocks.statuses, domain.RunStatusCompleted)
}

func TestResearchReportWorkflow_ProgressQuery(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SectionResearchWorkflow)

	input := testWorkflowInput()
	mocks := &workflowMocks{}
	mocks.install(env, threeSectionPlan(input.Topic))

	env.ExecuteWorkflow(ResearchReportWorkflow, input)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	val, err := env.QueryWorkflow(QueryProgress)
	require.NoError(t, err)

	var progress workflowProgress
	require.NoError(t, val.Get(&progress))
	assert.Equal(t, string(domain.RunStatusCompleted), progress.Status)
	assert.Equal(t, 3, progress.SectionsPlanned)
	assert.Equal(t, 3, progress.SectionsCompleted)
	assert.Equal(t, 0, progress.SectionsFailed)
}
