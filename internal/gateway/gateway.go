// Package gateway mediates all calls to external providers (LLM text
// generation and web search) behind a single retry and classification policy.
//
// Providers themselves perform exactly one attempt per call; the gateway owns
// attempt budgets, per-attempt timeouts, and exponential backoff, so retry
// behavior is identical regardless of which provider is configured. Invalid
// input is never retried, and rate-limited calls back off longer than other
// transient failures.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/llm"
	"github.com/helixir/research-report-service/internal/observability"
	"github.com/helixir/research-report-service/internal/search"
)

// Call kinds used in errors, logs, and metrics labels.
const (
	CallKindGenerateText = "generate_text"
	CallKindWebSearch    = "web_search"
)

// Config controls the gateway retry policy.
type Config struct {
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration

	// MaxAttempts is the total attempt budget per call, including the first.
	MaxAttempts int

	// RetryBaseDelay is the backoff delay before the first retry; it doubles
	// per retry up to RetryMaxDelay.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the exponential backoff delay.
	RetryMaxDelay time.Duration

	// RateLimitDelay is the minimum delay before retrying a rate-limited
	// call. It takes precedence over the exponential delay when larger.
	RateLimitDelay time.Duration
}

// applyDefaults fills in zero values with the standard policy.
func (c Config) applyDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = 5 * time.Second
	}
	return c
}

// Gateway routes external calls through a uniform retry policy.
// It is safe for concurrent use.
type Gateway struct {
	generator llm.TextGenerator
	registry  *search.Registry
	config    Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a gateway over the given text generator and search registry.
// metrics may be nil, in which case no metrics are recorded.
func New(generator llm.TextGenerator, registry *search.Registry, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		generator: generator,
		registry:  registry,
		config:    cfg.applyDefaults(),
		logger:    logger.With().Str("component", "gateway").Logger(),
		metrics:   metrics,
	}
}

// GenerateText calls the configured LLM provider through the retry policy.
func (g *Gateway) GenerateText(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	var result *llm.GenerateResult

	err := g.do(ctx, CallKindGenerateText, g.generator.Provider(), func(ctx context.Context) error {
		var err error
		result, err = g.generator.Generate(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Search runs a single query against the given provider through the retry policy.
func (g *Gateway) Search(ctx context.Context, provider domain.SearchProvider, params search.Params) (*search.Result, error) {
	searcher, err := g.registry.Get(provider)
	if err != nil {
		return nil, &Error{
			Kind:     domain.ErrorKindInvalidInput,
			CallKind: CallKindWebSearch,
			Provider: string(provider),
			Attempts: 0,
			Err:      err,
		}
	}

	var result *search.Result
	err = g.do(ctx, CallKindWebSearch, string(provider), func(ctx context.Context) error {
		var err error
		result, err = searcher.Search(ctx, params)
		if err == nil && g.metrics != nil {
			g.metrics.RecordSearch(string(provider), len(result.Items))
		}
		return err
	})
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordSearchFailed(string(provider))
		}
		return nil, err
	}

	return result, nil
}

// SearchQueries runs the given queries concurrently against one provider.
// Each query independently gets the full retry budget. Results are returned
// in query order with per-query errors; the caller decides how to handle
// partial failure.
func (g *Gateway) SearchQueries(ctx context.Context, provider domain.SearchProvider, queries []string, maxResults int) []search.QueryResult {
	if len(queries) == 0 {
		return nil
	}

	results := make([]search.QueryResult, len(queries))
	var wg sync.WaitGroup

	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()

			result, err := g.Search(ctx, provider, search.Params{
				Query:      query,
				MaxResults: maxResults,
			})
			results[i] = search.QueryResult{
				Query:  query,
				Result: result,
				Error:  err,
			}
		}(i, query)
	}

	wg.Wait()
	return results
}

// do runs fn under the retry policy: up to MaxAttempts attempts, each bounded
// by CallTimeout, with exponential backoff between attempts. Non-retryable
// kinds (invalid input, cancellation) end the loop immediately.
func (g *Gateway) do(ctx context.Context, callKind, provider string, fn func(context.Context) error) error {
	logger := observability.WithGatewayContext(g.logger, callKind, provider)

	var lastErr error
	var lastKind domain.ErrorKind
	attempts := 0

	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := g.retryDelay(attempt, lastKind)
			logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("error_kind", string(lastKind)).
				Err(lastErr).
				Msg("retrying external call")

			if g.metrics != nil {
				g.metrics.RecordGatewayRetry(callKind)
			}

			select {
			case <-ctx.Done():
				return &Error{
					Kind:     Classify(ctx.Err()),
					CallKind: callKind,
					Provider: provider,
					Attempts: attempts,
					Err:      ctx.Err(),
				}
			case <-time.After(delay):
			}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
		err := fn(attemptCtx)
		cancel()
		attempts++

		if g.metrics != nil {
			g.metrics.RecordGatewayCall(callKind, provider, time.Since(start).Seconds())
		}

		if err == nil {
			return nil
		}

		lastErr = err
		lastKind = Classify(err)

		// An attempt that exhausted its own timeout while the parent context
		// is still live counts as a timeout, not a cancellation.
		if lastKind == domain.ErrorKindCancelled && ctx.Err() == nil {
			lastKind = domain.ErrorKindTimeout
		}

		if g.metrics != nil {
			g.metrics.RecordGatewayCallFailed(callKind, provider, string(lastKind))
		}

		if !kindRetryable(lastKind) {
			break
		}
	}

	return &Error{
		Kind:     lastKind,
		CallKind: callKind,
		Provider: provider,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// retryDelay computes the backoff before the given attempt (2..MaxAttempts).
func (g *Gateway) retryDelay(attempt int, kind domain.ErrorKind) time.Duration {
	// Cap the exponent: past this the doubling exceeds any sane RetryMaxDelay,
	// and an unchecked shift overflows to a negative duration.
	shift := attempt - 2
	if shift > 30 {
		shift = 30
	}
	delay := g.config.RetryBaseDelay << shift
	if delay <= 0 || delay > g.config.RetryMaxDelay {
		delay = g.config.RetryMaxDelay
	}

	if kind == domain.ErrorKindRateLimited && delay < g.config.RateLimitDelay {
		delay = g.config.RateLimitDelay
	}

	return delay
}
