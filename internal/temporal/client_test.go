package temporal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"

	"github.com/helixir/research-report-service/internal/domain"
)

func TestTemporalError(t *testing.T) {
	t.Run("Error includes all fields", func(t *testing.T) {
		err := &TemporalError{
			Op:         "StartWorkflow",
			Kind:       ErrWorkflowNotFound,
			WorkflowID: "wf-123",
			RunID:      "run-456",
			Err:        errors.New("underlying error"),
		}

		msg := err.Error()
		assert.Contains(t, msg, "StartWorkflow")
		assert.Contains(t, msg, "workflow not found")
		assert.Contains(t, msg, "wf-123")
		assert.Contains(t, msg, "run-456")
		assert.Contains(t, msg, "underlying error")
	})

	t.Run("Error without workflow IDs", func(t *testing.T) {
		err := &TemporalError{
			Op:   "Health",
			Kind: ErrConnectionFailed,
		}

		msg := err.Error()
		assert.Contains(t, msg, "Health")
		assert.Contains(t, msg, "connection failed")
		assert.NotContains(t, msg, "workflowID")
	})

	t.Run("Unwrap returns underlying error", func(t *testing.T) {
		underlying := errors.New("underlying")
		err := &TemporalError{
			Op:   "Test",
			Kind: ErrConnectionFailed,
			Err:  underlying,
		}

		assert.Equal(t, underlying, err.Unwrap())
	})

	t.Run("Is matches Kind", func(t *testing.T) {
		err := &TemporalError{
			Op:   "Test",
			Kind: ErrWorkflowNotFound,
		}

		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.False(t, errors.Is(err, ErrConnectionFailed))
	})
}

func TestWrapTemporalError(t *testing.T) {
	t.Run("returns nil for nil error", func(t *testing.T) {
		result := wrapTemporalError("Test", nil, "", "")
		assert.Nil(t, result)
	})

	t.Run("wraps NotFound error", func(t *testing.T) {
		notFoundErr := serviceerror.NewNotFound("not found")
		result := wrapTemporalError("Test", notFoundErr, "wf-1", "run-1")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrWorkflowNotFound, te.Kind)
	})

	t.Run("wraps WorkflowExecutionAlreadyStarted error", func(t *testing.T) {
		alreadyStartedErr := serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "")
		result := wrapTemporalError("Test", alreadyStartedErr, "wf-1", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrWorkflowAlreadyStarted, te.Kind)
	})

	t.Run("wraps context.DeadlineExceeded", func(t *testing.T) {
		result := wrapTemporalError("Test", context.DeadlineExceeded, "", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrDeadlineExceeded, te.Kind)
	})

	t.Run("wraps context.Canceled", func(t *testing.T) {
		result := wrapTemporalError("Test", context.Canceled, "", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrClientClosed, te.Kind)
	})

	t.Run("wraps unknown error as connection failed", func(t *testing.T) {
		unknownErr := errors.New("unknown error")
		result := wrapTemporalError("Test", unknownErr, "", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrConnectionFailed, te.Kind)
	})
}

func TestErrorCheckers(t *testing.T) {
	t.Run("IsWorkflowNotFound", func(t *testing.T) {
		err := &TemporalError{Kind: ErrWorkflowNotFound}
		assert.True(t, IsWorkflowNotFound(err))
		assert.False(t, IsWorkflowNotFound(errors.New("other")))
	})

	t.Run("IsWorkflowAlreadyStarted", func(t *testing.T) {
		err := &TemporalError{Kind: ErrWorkflowAlreadyStarted}
		assert.True(t, IsWorkflowAlreadyStarted(err))
		assert.False(t, IsWorkflowAlreadyStarted(errors.New("other")))
	})

	t.Run("IsQueryFailed", func(t *testing.T) {
		err := &TemporalError{Kind: ErrQueryFailed}
		assert.True(t, IsQueryFailed(err))
		assert.False(t, IsQueryFailed(errors.New("other")))
	})

	t.Run("IsConnectionFailed", func(t *testing.T) {
		err := &TemporalError{Kind: ErrConnectionFailed}
		assert.True(t, IsConnectionFailed(err))
		assert.False(t, IsConnectionFailed(errors.New("other")))
	})
}

func TestTLSConfig(t *testing.T) {
	t.Run("returns nil when not enabled", func(t *testing.T) {
		cfg := &TLSConfig{Enabled: false}
		tlsCfg, err := cfg.buildTLSConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsCfg)
	})

	t.Run("builds config with basic settings", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:            true,
			ServerName:         "test.example.com",
			InsecureSkipVerify: true,
		}
		tlsCfg, err := cfg.buildTLSConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.Equal(t, "test.example.com", tlsCfg.ServerName)
		assert.True(t, tlsCfg.InsecureSkipVerify)
	})

	t.Run("errors on invalid cert path", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:  true,
			CertPath: "/nonexistent/cert.pem",
			KeyPath:  "/nonexistent/key.pem",
		}
		_, err := cfg.buildTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load client certificate")
	})

	t.Run("errors on invalid CA cert path", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:    true,
			CACertPath: "/nonexistent/ca.pem",
		}
		_, err := cfg.buildTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read CA certificate")
	})
}

func TestWorkflowIDForRun(t *testing.T) {
	runID := uuid.New()

	workflowID := WorkflowIDForRun(runID)
	assert.Equal(t, fmt.Sprintf("research-run-%s", runID), workflowID)

	// Same run always maps to the same workflow ID.
	assert.Equal(t, workflowID, WorkflowIDForRun(runID))
}

func TestRunWorkflowClient(t *testing.T) {
	t.Run("NewRunWorkflowClient sets defaults", func(t *testing.T) {
		rc := NewRunWorkflowClient(nil, "test-queue")

		assert.Equal(t, "test-queue", rc.TaskQueue())
		assert.Equal(t, DefaultHealthCheckTimeout, rc.healthCheckTimeout)
	})

	t.Run("closed client returns error on Health", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		err := rc.Health(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on StartResearchWorkflow", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		input := ResearchWorkflowInput{
			RunID:  uuid.New(),
			Topic:  "quantum computing",
			Config: domain.DefaultRunConfiguration(),
		}
		_, _, err := rc.StartResearchWorkflow(context.Background(), nil, input)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on CancelRun", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		err := rc.CancelRun(context.Background(), "wf-1", "run-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on CancelWorkflow", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		err := rc.CancelWorkflow(context.Background(), "wf-1", "run-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on GetWorkflowResult", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		var result interface{}
		err := rc.GetWorkflowResult(context.Background(), "wf-1", "run-1", &result)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on DescribeWorkflow", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		_, err := rc.DescribeWorkflow(context.Background(), "wf-1", "run-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on SignalWorkflow", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		err := rc.SignalWorkflow(context.Background(), "wf-1", "run-1", "signal", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("closed client returns error on QueryWorkflow", func(t *testing.T) {
		rc := &RunWorkflowClient{closed: true}

		var result interface{}
		err := rc.QueryWorkflow(context.Background(), "wf-1", "run-1", "query", &result)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		rc := &RunWorkflowClient{
			closed: false,
			client: nil, // nil client means Close won't actually close anything
		}

		rc.Close()
		rc.Close()
	})
}

func TestWorkflowDescription(t *testing.T) {
	t.Run("stores all fields", func(t *testing.T) {
		desc := WorkflowDescription{
			WorkflowID: "wf-123",
			RunID:      "run-456",
			Status:     "RUNNING",
		}

		assert.Equal(t, "wf-123", desc.WorkflowID)
		assert.Equal(t, "run-456", desc.RunID)
		assert.Equal(t, "RUNNING", desc.Status)
		assert.Nil(t, desc.CloseTime)
	})
}
