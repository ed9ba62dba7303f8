package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	runIDKey         contextKey = "run_id"
	correlationIDKey contextKey = "correlation_id"
	workflowIDKey    contextKey = "workflow_id"
	workflowRunKey   contextKey = "workflow_run_id"
)

// WithRunID adds a pipeline run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the pipeline run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from context.
// Returns empty string if not present.
func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithWorkflow adds workflow ID and run ID to the context.
func WithWorkflow(ctx context.Context, workflowID, runID string) context.Context {
	ctx = context.WithValue(ctx, workflowIDKey, workflowID)
	ctx = context.WithValue(ctx, workflowRunKey, runID)
	return ctx
}

// WorkflowFromContext retrieves workflow ID and run ID from context.
// Returns empty strings if not present.
func WorkflowFromContext(ctx context.Context) (workflowID, runID string) {
	if v := ctx.Value(workflowIDKey); v != nil {
		if id, ok := v.(string); ok {
			workflowID = id
		}
	}
	if v := ctx.Value(workflowRunKey); v != nil {
		if id, ok := v.(string); ok {
			runID = id
		}
	}
	return workflowID, runID
}
