package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidRequest indicates that a research request failed validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidInput indicates that input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that a call was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrInsufficientSections indicates that too few section sub-pipelines
	// succeeded to satisfy the run's minimum success policy.
	ErrInsufficientSections = errors.New("insufficient sections")

	// ErrInternalError indicates an internal server error.
	ErrInternalError = errors.New("internal error")

	// ErrWorkflowFailed indicates that a Temporal workflow failed.
	ErrWorkflowFailed = errors.New("workflow failed")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrReportNotReady indicates that a report was requested for a run that
	// has not completed.
	ErrReportNotReady = errors.New("report not ready")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// InsufficientSectionsError reports a research stage that finished below the
// configured minimum success ratio.
type InsufficientSectionsError struct {
	Required  int
	Completed int
	Failed    int
}

// Error implements the error interface.
func (e *InsufficientSectionsError) Error() string {
	return fmt.Sprintf("insufficient sections: %d completed, %d failed, %d required",
		e.Completed, e.Failed, e.Required)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InsufficientSectionsError) Unwrap() error {
	return ErrInsufficientSections
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// KindForError maps an error to its ErrorKind classification.
func KindForError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidInput):
		return ErrorKindInvalidInput
	case errors.Is(err, ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, ErrServiceUnavailable):
		return ErrorKindUnavailable
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrInsufficientSections):
		return ErrorKindInsufficientSections
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}
