package search

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for controlling request rates
// to external APIs. It is safe for concurrent use because the underlying
// rate.Limiter is goroutine-safe for all operations.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// ratePerSecond is the sustained rate of requests per second.
// burst is the maximum burst size (number of tokens that can be consumed at once).
//
// Example configurations:
//   - Tavily: NewRateLimiter(5, 5) for 5 requests per second
//   - DuckDuckGo: NewRateLimiter(1, 2) to stay well under scraping limits
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
// It returns an error if the context is canceled or the deadline is exceeded.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting.
// It consumes one token if allowed, and returns false if no tokens are available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the rate limit while preserving the current burst size.
// This can be used to dynamically adjust the rate based on API responses
// (e.g., when receiving rate limit headers from the API).
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// SetBurst updates the burst size.
func (r *RateLimiter) SetBurst(burst int) {
	r.limiter.SetBurst(burst)
}

// Tokens returns the current number of available tokens.
// This can be useful for monitoring and debugging.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
