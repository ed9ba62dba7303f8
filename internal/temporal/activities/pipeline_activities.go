package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/observability"
)

// TopicPlanner produces a research plan for a topic. Implemented by
// pipeline.Planner.
type TopicPlanner interface {
	Plan(ctx context.Context, topic string, sectionCount int) (*domain.ResearchPlan, error)
}

// SectionResearcher researches a single planned section. Implemented by
// pipeline.SectionResearcher.
type SectionResearcher interface {
	Research(ctx context.Context, topic string, section domain.SectionSpec, searchDepth int) (*domain.SectionResult, error)
}

// ReportComposer assembles the final report from completed sections.
// Implemented by pipeline.ReportWriter.
type ReportComposer interface {
	Write(ctx context.Context, plan domain.ResearchPlan, sections []domain.SectionResult) (*domain.Report, error)
}

// PipelineActivities provides Temporal activities that execute the three
// pipeline stages. Each activity runs one stage graph to completion; remote
// call retries happen inside the gateway, so these activities are registered
// with MaximumAttempts 1 and a failure here means the stage is exhausted.
//
// Methods on this struct are registered as Temporal activities via the worker.
type PipelineActivities struct {
	planner    TopicPlanner
	researcher SectionResearcher
	composer   ReportComposer
	metrics    *observability.Metrics
}

// NewPipelineActivities creates a new PipelineActivities instance with the
// given stage implementations. The metrics parameter may be nil (metrics
// recording will be skipped).
func NewPipelineActivities(
	planner TopicPlanner,
	researcher SectionResearcher,
	composer ReportComposer,
	metrics *observability.Metrics,
) *PipelineActivities {
	return &PipelineActivities{
		planner:    planner,
		researcher: researcher,
		composer:   composer,
		metrics:    metrics,
	}
}

// PlanTopic runs the planning stage graph and returns the research plan.
func (a *PipelineActivities) PlanTopic(ctx context.Context, input PlanTopicInput) (*PlanTopicOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("planning topic",
		"runID", input.RunID,
		"sectionCount", input.SectionCount,
	)

	start := time.Now()
	plan, err := a.planner.Plan(ctx, input.Topic, input.SectionCount)
	if err != nil {
		logger.Error("planning failed",
			"runID", input.RunID,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.RecordStageFailed(string(domain.StagePlanning), string(domain.KindForError(err)))
		}
		return nil, fmt.Errorf("plan topic: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordSectionsPlanned(len(plan.Sections))
		a.metrics.RecordStageCompleted(string(domain.StagePlanning), time.Since(start).Seconds())
	}

	logger.Info("plan created",
		"runID", input.RunID,
		"sections", len(plan.Sections),
	)

	return &PlanTopicOutput{Plan: plan}, nil
}

// ResearchSection runs the research stage graph for a single section.
func (a *PipelineActivities) ResearchSection(ctx context.Context, input ResearchSectionInput) (*ResearchSectionOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("researching section",
		"runID", input.RunID,
		"sectionIndex", input.Section.Index,
		"sectionTitle", input.Section.Title,
	)

	result, err := a.researcher.Research(ctx, input.Topic, input.Section, input.SearchDepth)
	if err != nil {
		logger.Error("section research failed",
			"runID", input.RunID,
			"sectionIndex", input.Section.Index,
			"error", err,
		)
		return nil, fmt.Errorf("research section %d: %w", input.Section.Index, err)
	}

	logger.Info("section researched",
		"runID", input.RunID,
		"sectionIndex", result.Index,
		"sources", len(result.Sources),
		"queries", len(result.QueriesUsed),
	)

	return &ResearchSectionOutput{Result: result}, nil
}

// ComposeReport runs the report stage graph and returns the final artifact.
func (a *PipelineActivities) ComposeReport(ctx context.Context, input ComposeReportInput) (*ComposeReportOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("composing report",
		"runID", input.RunID,
		"sections", len(input.Sections),
	)

	report, err := a.composer.Write(ctx, input.Plan, input.Sections)
	if err != nil {
		logger.Error("report composition failed",
			"runID", input.RunID,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.RecordStageFailed(string(domain.StageReport), string(domain.KindForError(err)))
		}
		return nil, fmt.Errorf("compose report: %w", err)
	}

	logger.Info("report composed",
		"runID", input.RunID,
		"words", report.Metadata.WordCount,
		"sources", report.Metadata.TotalSources,
	)

	return &ComposeReportOutput{Report: report}, nil
}
