package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/llm"
	"github.com/helixir/research-report-service/internal/observability"
)

// Report graph step names.
const (
	stepWriteSummary    = "write_summary"
	stepCompileBody     = "compile_body"
	stepWriteConclusion = "write_conclusion"
	stepCompileSources  = "compile_sources"
	stepFinalize        = "finalize"
)

// Preview lengths used when feeding section content back into prompts.
const (
	summaryPreviewLen    = 300
	conclusionPreviewLen = 200
)

// ReportState is the state record of the report graph. Each step writes
// exactly one field of Draft and never touches the others.
type ReportState struct {
	Plan     domain.ResearchPlan
	Sections []domain.SectionResult

	Draft domain.ReportDraft

	// Report is set by finalize.
	Report *domain.Report
}

// ReportWriter composes the final report from the plan and the completed
// section results.
type ReportWriter struct {
	generator TextGateway
	logger    zerolog.Logger
	now       func() time.Time
}

// NewReportWriter creates a report writer over the given text gateway.
func NewReportWriter(generator TextGateway, logger zerolog.Logger) *ReportWriter {
	return &ReportWriter{
		generator: generator,
		logger:    observability.WithStageContext(logger, string(domain.StageReport)),
		now:       time.Now,
	}
}

// Write produces the final report. Sections must be the completed results in
// plan order; the caller filters out failed sections beforehand.
func (w *ReportWriter) Write(ctx context.Context, plan domain.ResearchPlan, sections []domain.SectionResult) (*domain.Report, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("report: no completed sections")
	}

	graph := NewGraph[ReportState]("report", stepWriteSummary, w.logger).
		AddStep(stepWriteSummary, Seq(stepCompileBody, w.writeSummary)).
		AddStep(stepCompileBody, Seq(stepWriteConclusion, w.compileBody)).
		AddStep(stepWriteConclusion, Seq(stepCompileSources, w.writeConclusion)).
		AddStep(stepCompileSources, Seq(stepFinalize, w.compileSources)).
		AddStep(stepFinalize, Seq(End, w.finalize))

	state, err := graph.Run(ctx, ReportState{
		Plan:     plan,
		Sections: sections,
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info().
		Int("sections", state.Report.Metadata.SectionCount).
		Int("words", state.Report.Metadata.WordCount).
		Msg("report completed")

	return state.Report, nil
}

// writeSummary produces the executive summary from previews of all sections.
func (w *ReportWriter) writeSummary(ctx context.Context, state ReportState) (ReportState, error) {
	previews := make([]string, len(state.Sections))
	for i, s := range state.Sections {
		previews[i] = fmt.Sprintf("**%s**: %s", s.Title, truncate(s.Content, summaryPreviewLen))
	}

	result, err := w.generator.GenerateText(ctx, llm.GenerateRequest{
		Prompt: summaryPrompt(state.Plan.Topic, len(state.Sections), strings.Join(previews, "\n\n")),
	})
	if err != nil {
		return state, fmt.Errorf("writing summary: %w", err)
	}

	state.Draft.ExecutiveSummary = result.Text
	return state, nil
}

// compileBody assembles the table of contents, the methodology, and the
// numbered section contents. No model call.
func (w *ReportWriter) compileBody(_ context.Context, state ReportState) (ReportState, error) {
	var toc strings.Builder
	for i, s := range state.Sections {
		fmt.Fprintf(&toc, "%d. %s\n", i+1, s.Title)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "## Table of Contents\n\n%s\n## Methodology\n\n%s\n\n---\n",
		toc.String(), state.Plan.Methodology)

	for i, s := range state.Sections {
		fmt.Fprintf(&body, "\n## %d. %s\n\n%s\n", i+1, s.Title, s.Content)
	}

	state.Draft.Body = body.String()
	return state, nil
}

// writeConclusion synthesizes a conclusion from the key points of all
// sections.
func (w *ReportWriter) writeConclusion(ctx context.Context, state ReportState) (ReportState, error) {
	points := make([]string, len(state.Sections))
	for i, s := range state.Sections {
		points[i] = fmt.Sprintf("- %s: %s", s.Title, truncate(s.Content, conclusionPreviewLen))
	}

	result, err := w.generator.GenerateText(ctx, llm.GenerateRequest{
		Prompt: conclusionPrompt(state.Plan.Topic, strings.Join(points, "\n")),
	})
	if err != nil {
		return state, fmt.Errorf("writing conclusion: %w", err)
	}

	state.Draft.Conclusion = result.Text
	return state, nil
}

// compileSources deduplicates and sorts all cited sources into the sources
// section, with totals appended. No model call.
func (w *ReportWriter) compileSources(_ context.Context, state ReportState) (ReportState, error) {
	sources := uniqueSources(state.Sections)

	var sb strings.Builder
	sb.WriteString("## Sources\n\n")

	if len(sources) > 0 {
		sb.WriteString("### Web Sources\n")
		for i, src := range sources {
			if src.Title != "" {
				fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, src.Title, src.URL)
			} else {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, src.URL)
			}
		}
	}

	totalQueries := 0
	for _, s := range state.Sections {
		totalQueries += len(s.QueriesUsed)
	}

	fmt.Fprintf(&sb, "\n\n---\n*Sections researched: %d*\n*Total sources: %d*\n*Total queries executed: %d*",
		len(state.Sections), len(sources), totalQueries)

	state.Draft.SourcesSection = sb.String()
	return state, nil
}

// finalize assembles the full markdown document and computes the report
// metadata.
func (w *ReportWriter) finalize(_ context.Context, state ReportState) (ReportState, error) {
	markdown := fmt.Sprintf(`# %s - Comprehensive Research Report

## Executive Summary

%s

%s

## Conclusion

%s

%s
`,
		state.Plan.Topic,
		state.Draft.ExecutiveSummary,
		state.Draft.Body,
		state.Draft.Conclusion,
		state.Draft.SourcesSection,
	)

	totalQueries := 0
	for _, s := range state.Sections {
		totalQueries += len(s.QueriesUsed)
	}

	state.Draft.Markdown = markdown
	state.Report = &domain.Report{
		Markdown: markdown,
		Metadata: domain.ReportMetadata{
			SectionCount: len(state.Sections),
			TotalSources: len(uniqueSources(state.Sections)),
			TotalQueries: totalQueries,
			WordCount:    len(strings.Fields(markdown)),
			GeneratedAt:  w.now().UTC(),
		},
	}
	return state, nil
}

// uniqueSources deduplicates all section sources by URL and sorts them.
func uniqueSources(sections []domain.SectionResult) []domain.SourceRef {
	seen := make(map[string]bool)
	var sources []domain.SourceRef
	for _, s := range sections {
		for _, src := range s.Sources {
			if src.URL == "" || seen[src.URL] {
				continue
			}
			seen[src.URL] = true
			sources = append(sources, src)
		}
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].URL < sources[j].URL
	})
	return sources
}

// summaryPrompt asks for a 300-500 word executive summary.
func summaryPrompt(topic string, sectionCount int, previews string) string {
	return fmt.Sprintf(`Create a comprehensive executive summary for this research report:

Topic: %s
Number of sections: %d

SECTION CONTENT PREVIEWS:
%s

Create an executive summary that:
- Captures the key findings across all sections
- Highlights the most important insights
- Provides a clear overview of the research scope
- Is engaging and informative (300-500 words)

Write in a professional, accessible tone.`, topic, sectionCount, previews)
}

// conclusionPrompt asks for a 400-600 word synthesized conclusion.
func conclusionPrompt(topic, keyPoints string) string {
	return fmt.Sprintf(`Create a comprehensive conclusion for this research report:

Topic: %s

KEY FINDINGS FROM SECTIONS:
%s

Write a conclusion that:
- Synthesizes findings across all research areas
- Identifies patterns and connections
- Discusses implications and significance
- Suggests areas for future research
- Provides a thoughtful wrap-up (400-600 words)

Focus on insights that emerge from connecting the different research areas.`, topic, keyPoints)
}
