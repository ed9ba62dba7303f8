package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/llm"
	"github.com/helixir/research-report-service/internal/observability"
)

// TextGateway is the slice of the external-call gateway used by the stage
// graphs for text generation.
type TextGateway interface {
	GenerateText(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)
}

// Planning graph step names.
const (
	stepAnalyzeTopic = "analyze_topic"
	stepCreatePlan   = "create_plan"
)

// PlanningState is the state record of the planning graph.
type PlanningState struct {
	Topic        string
	SectionCount int

	// Analysis is the topic analysis produced by analyze_topic and consumed
	// by create_plan as context.
	Analysis string

	// Plan is set by create_plan.
	Plan *domain.ResearchPlan
}

// Planner runs the planning stage: analyze the topic, then structure it into
// a research plan with the requested number of sections.
type Planner struct {
	generator TextGateway
	logger    zerolog.Logger
}

// NewPlanner creates a planner over the given text gateway.
func NewPlanner(generator TextGateway, logger zerolog.Logger) *Planner {
	return &Planner{
		generator: generator,
		logger:    observability.WithStageContext(logger, string(domain.StagePlanning)),
	}
}

// Plan produces a research plan with exactly sectionCount sections.
func (p *Planner) Plan(ctx context.Context, topic string, sectionCount int) (*domain.ResearchPlan, error) {
	graph := NewGraph[PlanningState]("planning", stepAnalyzeTopic, p.logger).
		AddStep(stepAnalyzeTopic, Seq(stepCreatePlan, p.analyzeTopic)).
		AddStep(stepCreatePlan, Seq(End, p.createPlan))

	state, err := graph.Run(ctx, PlanningState{
		Topic:        topic,
		SectionCount: sectionCount,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("topic", topic).
		Int("sections", len(state.Plan.Sections)).
		Msg("planning completed")

	return state.Plan, nil
}

func (p *Planner) analyzeTopic(ctx context.Context, state PlanningState) (PlanningState, error) {
	p.logger.Info().Str("topic", state.Topic).Msg("analyzing topic")

	result, err := p.generator.GenerateText(ctx, llm.GenerateRequest{
		Prompt: analysisPrompt(state.Topic),
	})
	if err != nil {
		return state, fmt.Errorf("analyzing topic: %w", err)
	}

	state.Analysis = result.Text
	return state, nil
}

func (p *Planner) createPlan(ctx context.Context, state PlanningState) (PlanningState, error) {
	p.logger.Info().Int("sections", state.SectionCount).Msg("creating plan")

	result, err := p.generator.GenerateText(ctx, llm.GenerateRequest{
		Prompt:     planPrompt(state.Topic, state.SectionCount, state.Analysis),
		JSONOutput: true,
	})
	if err != nil {
		return state, fmt.Errorf("creating plan: %w", err)
	}

	plan, err := parsePlan(result.Text, state.Topic, state.SectionCount)
	if err != nil {
		return state, err
	}

	state.Plan = plan
	return state, nil
}

// analysisPrompt asks for a structured analysis of the research scope.
func analysisPrompt(topic string) string {
	return fmt.Sprintf(`Analyze this research topic and provide initial insights: %s

Consider:
- What are the main aspects to research?
- What methodology would be most appropriate?
- What are the key areas that need coverage?

Provide a structured analysis of the research scope and approach.`, topic)
}

// planPrompt asks for the research plan as a JSON object.
func planPrompt(topic string, sectionCount int, analysis string) string {
	return fmt.Sprintf(`Based on this topic analysis:
%s

Create a detailed research plan for: %s

Requirements:
- Exactly %d sections
- Each section should focus on a specific, distinct aspect
- Sections should be comprehensive and non-overlapping
- Include appropriate research methodology

Respond with a JSON object with this exact structure:
{
  "topic": "the research topic",
  "sections": [
    {"title": "section title", "guiding_questions": ["question the section should answer"]}
  ],
  "methodology": "the research methodology",
  "estimated_length": "estimated report length"
}`, analysis, topic, sectionCount)
}

// planDocument is the JSON shape the model is asked to produce.
type planDocument struct {
	Topic    string `json:"topic"`
	Sections []struct {
		Title            string   `json:"title"`
		GuidingQuestions []string `json:"guiding_questions"`
	} `json:"sections"`
	Methodology     string `json:"methodology"`
	EstimatedLength string `json:"estimated_length"`
}

// parsePlan decodes the model output into a ResearchPlan with exactly
// sectionCount sections. Extra sections are dropped; too few is an error.
func parsePlan(text, topic string, sectionCount int) (*domain.ResearchPlan, error) {
	var doc planDocument
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &doc); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	if doc.Topic == "" {
		doc.Topic = topic
	}
	if len(doc.Sections) < sectionCount {
		return nil, fmt.Errorf("parsing plan: got %d sections, want %d", len(doc.Sections), sectionCount)
	}

	plan := &domain.ResearchPlan{
		Topic:           doc.Topic,
		Methodology:     doc.Methodology,
		EstimatedLength: doc.EstimatedLength,
		Sections:        make([]domain.SectionSpec, 0, sectionCount),
	}

	for i, s := range doc.Sections[:sectionCount] {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			return nil, fmt.Errorf("parsing plan: section %d has no title", i)
		}
		plan.Sections = append(plan.Sections, domain.SectionSpec{
			Index:            i,
			Title:            title,
			GuidingQuestions: s.GuidingQuestions,
		})
	}

	return plan, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some models
// emit even when asked for bare JSON.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
