package search

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "Authorization").
	APIKeyHeader string
}

// HTTPClient wraps http.Client with token bucket rate limiting.
// It performs exactly one attempt per request; retry behavior is left to the
// caller so that attempts can be coordinated across providers in one place.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new rate-limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	// Apply defaults
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-ResearchReportService/1.0"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request after waiting for the rate limiter.
// It sets the User-Agent and optional API key headers before sending.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	return c.client.Do(req)
}

// Tokens returns the number of rate limiter tokens currently available.
func (c *HTTPClient) Tokens() float64 {
	return c.rateLimiter.Tokens()
}
