// Package tavily implements the search.Searcher interface for the Tavily
// Search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/search"
)

const (
	// DefaultBaseURL is the default base URL for the Tavily API.
	DefaultBaseURL = "https://api.tavily.com"

	// DefaultRateLimit is the default rate limit in requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of results per search.
	DefaultMaxResults = 5

	// sourceName is the human-readable name for this provider.
	sourceName = "Tavily"
)

// Config contains configuration options for the Tavily client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the Tavily API key (required).
	APIKey string

	// Timeout is the HTTP request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults is the maximum number of results to return per search.
	// Defaults to DefaultMaxResults if zero.
	MaxResults int

	// SearchDepth selects the Tavily search depth ("basic" or "advanced").
	// Defaults to "basic" if empty.
	SearchDepth string
}

// Client implements the search.Searcher interface for Tavily.
type Client struct {
	httpClient *search.HTTPClient
	config     Config
}

// Compile-time check that Client implements search.Searcher.
var _ search.Searcher = (*Client)(nil)

// New creates a new Tavily client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func New(cfg Config, httpClient *search.HTTPClient) *Client {
	// Apply defaults
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}

	if httpClient == nil {
		httpClient = search.NewHTTPClient(search.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries the Tavily Search API for results matching the given parameters.
func (c *Client) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	start := time.Now()

	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}

	apiReq := searchRequest{
		Query:             params.Query,
		SearchDepth:       c.config.SearchDepth,
		MaxResults:        limit,
		IncludeRawContent: true,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &search.Result{
		Items:          convertItems(searchResp.Results),
		Query:          params.Query,
		Provider:       domain.SearchProviderTavily,
		SearchDuration: time.Since(start),
	}, nil
}

// ProviderType returns the provider type identifier.
func (c *Client) ProviderType() domain.SearchProvider {
	return domain.SearchProviderTavily
}

// Name returns the human-readable name for this provider.
func (c *Client) Name() string {
	return sourceName
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read the error body (limit to 1MB to prevent resource exhaustion)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Detail
		if message == "" {
			message = errResp.Error
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// convertItems converts API search results to search items.
func convertItems(results []searchResult) []search.Item {
	items := make([]search.Item, 0, len(results))
	for _, r := range results {
		items = append(items, search.Item{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Content: r.RawContent,
			Score:   r.Score,
		})
	}
	return items
}
