package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/llm"
	"github.com/helixir/research-report-service/internal/observability"
	"github.com/helixir/research-report-service/internal/search"
)

// SearchGateway is the slice of the external-call gateway used by the
// research graph to run batches of web searches.
type SearchGateway interface {
	SearchQueries(ctx context.Context, provider domain.SearchProvider, queries []string, maxResults int) []search.QueryResult
}

// Research graph step names.
const (
	stepGenerateQueries   = "generate_queries"
	stepFallbackQueries   = "fallback_queries"
	stepRunSearches       = "run_searches"
	stepSynthesizeContent = "synthesize_content"
)

// searchContentLimit caps how much of each search result is fed into the
// synthesis prompt.
const searchContentLimit = 1500

// ResearchState is the state record of the per-section research graph.
type ResearchState struct {
	Topic       string
	Section     domain.SectionSpec
	SearchDepth int

	// Queries is set by generate_queries (or fallback_queries when the
	// model produced none).
	Queries []string

	// Searches holds one entry per query, in query order, set by
	// run_searches. Failed queries carry their error.
	Searches []search.QueryResult

	// Result is set by synthesize_content.
	Result *domain.SectionResult
}

// ResearcherConfig tunes the research graph.
type ResearcherConfig struct {
	// Provider selects the web search backend.
	Provider domain.SearchProvider

	// MaxResults caps the number of results fetched per query.
	MaxResults int
}

// SectionResearcher runs the research stage for a single planned section:
// generate search queries, run them, and synthesize the findings into
// section content.
type SectionResearcher struct {
	generator TextGateway
	searcher  SearchGateway
	config    ResearcherConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSectionResearcher creates a researcher over the given gateways.
func NewSectionResearcher(generator TextGateway, searcher SearchGateway, cfg ResearcherConfig, logger zerolog.Logger) *SectionResearcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	return &SectionResearcher{
		generator: generator,
		searcher:  searcher,
		config:    cfg,
		logger:    observability.WithStageContext(logger, string(domain.StageResearch)),
		now:       time.Now,
	}
}

// Research produces the SectionResult for one planned section. Individual
// query failures are tolerated; it fails only when every query fails.
func (r *SectionResearcher) Research(ctx context.Context, topic string, section domain.SectionSpec, searchDepth int) (*domain.SectionResult, error) {
	logger := observability.WithSectionContext(r.logger, section.Index, section.Title)

	graph := NewGraph[ResearchState]("research", stepGenerateQueries, logger).
		AddStep(stepGenerateQueries, r.generateQueries).
		AddStep(stepFallbackQueries, Seq(stepRunSearches, r.fallbackQueries)).
		AddStep(stepRunSearches, Seq(stepSynthesizeContent, r.runSearches)).
		AddStep(stepSynthesizeContent, Seq(End, r.synthesizeContent))

	state, err := graph.Run(ctx, ResearchState{
		Topic:       topic,
		Section:     section,
		SearchDepth: searchDepth,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("content_chars", len(state.Result.Content)).
		Int("sources", len(state.Result.Sources)).
		Msg("section research completed")

	return state.Result, nil
}

// generateQueries asks the model for search queries, one per line. When the
// model returns no usable queries the graph branches to fallback_queries.
func (r *SectionResearcher) generateQueries(ctx context.Context, state ResearchState) (ResearchState, string, error) {
	result, err := r.generator.GenerateText(ctx, llm.GenerateRequest{
		Prompt: queriesPrompt(state.Section.Title, state.Topic, state.SearchDepth),
	})
	if err != nil {
		return state, "", fmt.Errorf("generating queries: %w", err)
	}

	state.Queries = parseQueries(result.Text, state.SearchDepth)
	if len(state.Queries) == 0 {
		return state, stepFallbackQueries, nil
	}
	return state, stepRunSearches, nil
}

// fallbackQueries derives queries from the section title and guiding
// questions when the model produced none.
func (r *SectionResearcher) fallbackQueries(_ context.Context, state ResearchState) (ResearchState, error) {
	r.logger.Warn().
		Str("section", state.Section.Title).
		Msg("model returned no queries, deriving from section title")

	queries := []string{
		fmt.Sprintf("%s %s", state.Section.Title, state.Topic),
		fmt.Sprintf("%s overview", state.Section.Title),
	}
	for _, q := range state.Section.GuidingQuestions {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}

	if len(queries) > state.SearchDepth {
		queries = queries[:state.SearchDepth]
	}
	state.Queries = queries
	return state, nil
}

// runSearches executes all queries against the configured provider. The step
// fails only when every query fails.
func (r *SectionResearcher) runSearches(ctx context.Context, state ResearchState) (ResearchState, error) {
	results := r.searcher.SearchQueries(ctx, r.config.Provider, state.Queries, r.config.MaxResults)

	failed := 0
	var lastErr error
	for _, qr := range results {
		if qr.Error != nil {
			failed++
			lastErr = qr.Error
			r.logger.Warn().
				Str("query", qr.Query).
				Err(qr.Error).
				Msg("search query failed")
		}
	}

	if failed == len(results) {
		return state, fmt.Errorf("all %d searches failed: %w", len(results), lastErr)
	}

	state.Searches = results
	return state, nil
}

// synthesizeContent turns the successful search results into the section
// content and collects the cited sources.
func (r *SectionResearcher) synthesizeContent(ctx context.Context, state ResearchState) (ResearchState, error) {
	result, err := r.generator.GenerateText(ctx, llm.GenerateRequest{
		Prompt: synthesisPrompt(state.Section.Title, state.Topic, searchSummary(state.Searches)),
	})
	if err != nil {
		return state, fmt.Errorf("synthesizing content: %w", err)
	}

	state.Result = &domain.SectionResult{
		Index:       state.Section.Index,
		Title:       state.Section.Title,
		Content:     result.Text,
		Sources:     collectSources(state.Searches),
		QueriesUsed: state.Queries,
		Status:      domain.SectionStatusCompleted,
		CompletedAt: r.now().UTC(),
	}
	return state, nil
}

// queriesPrompt asks for one query per line.
func queriesPrompt(sectionTitle, topic string, searchDepth int) string {
	return fmt.Sprintf(`Generate %d specific, diverse search queries for researching this section:

Section: %s
Main Topic: %s

Requirements:
- Queries should be specific and focused
- Cover different aspects of the section
- Use varied terminology and approaches
- Target different types of information sources

Return only the queries, one per line, without numbers or bullets.`, searchDepth, sectionTitle, topic)
}

// parseQueries splits model output into at most limit non-empty queries.
func parseQueries(text string, limit int) []string {
	var queries []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			queries = append(queries, line)
		}
	}
	if len(queries) > limit {
		queries = queries[:limit]
	}
	return queries
}

// searchSummary formats the successful search results as prompt context.
// Each result item becomes a Query/Source/Content block; failed queries are
// excluded.
func searchSummary(searches []search.QueryResult) string {
	var blocks []string
	for _, qr := range searches {
		if qr.Error != nil || qr.Result == nil {
			continue
		}
		for _, item := range qr.Result.Items {
			content := item.Content
			if content == "" {
				content = item.Snippet
			}
			blocks = append(blocks, fmt.Sprintf("Query: %s\nSource: %s\nContent: %s",
				qr.Query, item.URL, truncate(content, searchContentLimit)))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// collectSources deduplicates result items by URL, preserving first-seen
// order.
func collectSources(searches []search.QueryResult) []domain.SourceRef {
	seen := make(map[string]bool)
	var sources []domain.SourceRef
	for _, qr := range searches {
		if qr.Error != nil || qr.Result == nil {
			continue
		}
		for _, item := range qr.Result.Items {
			if item.URL == "" || seen[item.URL] {
				continue
			}
			seen[item.URL] = true
			sources = append(sources, domain.SourceRef{
				Title: item.Title,
				URL:   item.URL,
			})
		}
	}
	return sources
}

// synthesisPrompt asks for the section content grounded in the search
// results.
func synthesisPrompt(sectionTitle, topic, summary string) string {
	return fmt.Sprintf(`Create a comprehensive, well-researched section based on the search results below.

Section Title: %s
Main Topic: %s

SEARCH RESULTS:
%s

REQUIREMENTS:
- Write a detailed, informative section (800-1200 words)
- Include specific facts, statistics, and findings from the search results
- Use clear subsections and markdown formatting
- Cite specific information where possible
- Provide objective analysis based on the evidence
- Include concrete examples and case studies if mentioned in sources

STRUCTURE:
- Brief introduction to the section topic
- 2-3 detailed subsections covering different aspects
- Key findings and implications
- Specific data points and evidence from research

DO NOT use generic phrases like "research indicates" without specific details.
DO include actual facts, numbers, and specific findings from the sources.`, sectionTitle, topic, summary)
}

// truncate cuts s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
