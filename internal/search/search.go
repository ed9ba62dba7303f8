// Package search provides interfaces and types for web search provider clients.
//
// This package defines the foundational abstractions that all search provider
// implementations must follow. Each provider (Tavily, DuckDuckGo) implements
// the Searcher interface, allowing the research pipeline to run queries
// against whichever provider is configured with a unified API.
//
// Example usage:
//
//	searcher := tavily.New(cfg, httpClient)
//	params := search.Params{
//		Query:      "solid-state battery manufacturing",
//		MaxResults: 5,
//	}
//	result, err := searcher.Search(ctx, params)
package search

import (
	"context"
	"time"

	"github.com/helixir/research-report-service/internal/domain"
)

// Params defines the parameters for a web search.
type Params struct {
	// Query is the search query string (required).
	Query string

	// MaxResults limits the number of results returned.
	// A value of 0 uses the provider's default limit.
	MaxResults int
}

// Item is a single web search result.
type Item struct {
	// Title is the result page title.
	Title string

	// URL is the result page URL.
	URL string

	// Snippet is a short excerpt of the page content relevant to the query.
	Snippet string

	// Content is the extracted page content, when the provider returns it.
	// Empty for providers that only return snippets.
	Content string

	// Score is the provider's relevance score, when available.
	Score float64
}

// Result contains the results from a search operation.
type Result struct {
	// Items contains the search results. May be empty if nothing matched.
	Items []Item

	// Query is the query that produced these results.
	Query string

	// Provider identifies which search provider produced these results.
	Provider domain.SearchProvider

	// SearchDuration is the time taken to execute the search,
	// including network latency and response parsing.
	SearchDuration time.Duration
}

// Searcher defines the interface that all search provider clients must implement.
//
// Implementations perform a single search attempt per call; retry behavior is
// left to the caller. They should respect context cancellation, apply rate
// limiting, and wrap API failures in *domain.ExternalAPIError so callers can
// classify them by status code.
type Searcher interface {
	// Search queries the provider for results matching the given parameters.
	Search(ctx context.Context, params Params) (*Result, error)

	// ProviderType returns the type identifier for this provider.
	ProviderType() domain.SearchProvider

	// Name returns a human-readable name for this provider.
	// Used for logging, metrics, and display purposes.
	Name() string
}
