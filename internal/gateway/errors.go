package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/llm"
)

// Error wraps a failed gateway call with its classification and attempt count.
type Error struct {
	// Kind is the classified error kind.
	Kind domain.ErrorKind
	// CallKind identifies the call ("generate_text" or "web_search").
	CallKind string
	// Provider is the external provider that failed.
	Provider string
	// Attempts is the number of attempts made before giving up.
	Attempts int
	// Err is the last underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s via %s failed after %d attempt(s) (%s): %v",
		e.CallKind, e.Provider, e.Attempts, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed for this kind.
func (e *Error) Retryable() bool {
	return kindRetryable(e.Kind)
}

// Classify maps an error from an external call to an error kind.
//
// Provider API errors are classified by HTTP status code: 429 is rate
// limited, other 4xx are invalid input, 5xx is the provider being
// unavailable, and status 0 (no HTTP response) is a transient network
// failure. Context errors map to timeout and cancelled.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return domain.ErrorKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}

	var llmErr *llm.APIError
	if errors.As(err, &llmErr) {
		return classifyStatus(llmErr.StatusCode)
	}

	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}

	// Unrecognized errors (JSON decode failures, malformed responses) are
	// treated as transient: the next attempt may get a well-formed response.
	return domain.ErrorKindTransient
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(statusCode int) domain.ErrorKind {
	switch {
	case statusCode == 0:
		return domain.ErrorKindTransient
	case statusCode == http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		return domain.ErrorKindTimeout
	case statusCode >= 400 && statusCode < 500:
		return domain.ErrorKindInvalidInput
	case statusCode >= 500:
		return domain.ErrorKindUnavailable
	default:
		return domain.ErrorKindTransient
	}
}

// kindRetryable reports whether a call failing with this kind may be retried.
func kindRetryable(kind domain.ErrorKind) bool {
	switch kind {
	case domain.ErrorKindTransient, domain.ErrorKindRateLimited,
		domain.ErrorKindUnavailable, domain.ErrorKindTimeout:
		return true
	default:
		return false
	}
}
