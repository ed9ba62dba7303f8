// Package duckduckgo implements the search.Searcher interface against the
// DuckDuckGo HTML endpoint.
//
// DuckDuckGo has no official search API; this client queries the
// html.duckduckgo.com endpoint and parses the result markup. It requires no
// API key but must be rate limited conservatively.
package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/search"
)

const (
	// DefaultBaseURL is the default base URL for the DuckDuckGo HTML endpoint.
	DefaultBaseURL = "https://html.duckduckgo.com"

	// DefaultRateLimit is the default rate limit in requests per second.
	// The HTML endpoint throttles aggressive clients, so stay conservative.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of results per search.
	DefaultMaxResults = 5

	// sourceName is the human-readable name for this provider.
	sourceName = "DuckDuckGo"
)

// Config contains configuration options for the DuckDuckGo client.
type Config struct {
	// BaseURL is the base URL for the HTML endpoint.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

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
}

// Client implements the search.Searcher interface for DuckDuckGo.
type Client struct {
	httpClient *search.HTTPClient
	config     Config
}

// Compile-time check that Client implements search.Searcher.
var _ search.Searcher = (*Client)(nil)

// New creates a new DuckDuckGo client with the given configuration.
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

// Search queries the DuckDuckGo HTML endpoint for results matching the given
// parameters and parses the result markup.
func (c *Client) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	start := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}

	// Limit body to 10MB to prevent resource exhaustion.
	items, err := parseResults(io.LimitReader(resp.Body, 10<<20), limit)
	if err != nil {
		return nil, fmt.Errorf("parsing results: %w", err)
	}

	return &search.Result{
		Items:          items,
		Query:          params.Query,
		Provider:       domain.SearchProviderDuckDuckGo,
		SearchDuration: time.Since(start),
	}, nil
}

// ProviderType returns the provider type identifier.
func (c *Client) ProviderType() domain.SearchProvider {
	return domain.SearchProviderDuckDuckGo
}

// Name returns the human-readable name for this provider.
func (c *Client) Name() string {
	return sourceName
}

// buildSearchURL constructs the HTML endpoint URL with query parameters.
func (c *Client) buildSearchURL(params search.Params) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("html")

	q := searchURL.Query()
	q.Set("q", params.Query)
	searchURL.RawQuery = q.Encode()

	return searchURL.String(), nil
}
