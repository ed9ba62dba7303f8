package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/research-report-service/internal/events"
	"github.com/helixir/research-report-service/internal/observability"
)

// EventPublisher is the interface used by EventActivities to publish events.
// This decouples the activity from the concrete Kafka publisher, enabling
// straightforward testing with mock implementations.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event events.RunEvent) error
}

// EventActivities provides Temporal activities for publishing run lifecycle
// events to Kafka.
//
// Methods on this struct are registered as Temporal activities via the worker.
type EventActivities struct {
	publisher EventPublisher
	metrics   *observability.Metrics
}

// NewEventActivities creates a new EventActivities with the given publisher.
// The metrics parameter may be nil (metrics recording will be skipped).
func NewEventActivities(publisher EventPublisher, metrics *observability.Metrics) *EventActivities {
	return &EventActivities{
		publisher: publisher,
		metrics:   metrics,
	}
}

// PublishRunEvent publishes a run lifecycle event.
//
// This activity is designed to be called with fire-and-forget semantics from
// the workflow; event publishing failure should never fail the pipeline.
func (a *EventActivities) PublishRunEvent(ctx context.Context, input PublishRunEventInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("publishing run event",
		"eventType", input.EventType,
		"runID", input.RunID,
	)

	err := a.publisher.PublishRunEvent(ctx, events.RunEvent{
		EventType: input.EventType,
		RunID:     input.RunID.String(),
		Topic:     input.Topic,
		Status:    input.Status,
		Failure:   input.Failure,
	})
	if err != nil {
		logger.Error("failed to publish run event",
			"eventType", input.EventType,
			"runID", input.RunID,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.RecordEventFailed(input.EventType)
		}
		return fmt.Errorf("publish run event %s: %w", input.EventType, err)
	}

	if a.metrics != nil {
		a.metrics.RecordEventPublished(input.EventType)
	}

	return nil
}
