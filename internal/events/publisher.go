// Package events publishes run lifecycle events to Kafka.
//
// Events are fire-and-forget: publishing failures are logged and never fail
// the pipeline. Messages are keyed by run ID so events for the same run land
// on the same partition in order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/research-report-service/internal/config"
	"github.com/helixir/research-report-service/internal/domain"
)

// Run lifecycle event types.
const (
	EventTypeRunStarted   = "run.started"
	EventTypeRunCompleted = "run.completed"
	EventTypeRunFailed    = "run.failed"
	EventTypeRunCancelled = "run.cancelled"
)

const serviceName = "research-report-service"

// RunEvent is the envelope published for every run lifecycle change.
type RunEvent struct {
	// EventID uniquely identifies this event.
	EventID string `json:"event_id"`
	// EventType is one of the run.* event types.
	EventType string `json:"event_type"`
	// Source identifies the emitting service.
	Source string `json:"source"`
	// RunID is the pipeline run this event belongs to.
	RunID string `json:"run_id"`
	// Topic is the research topic of the run.
	Topic string `json:"topic"`
	// Status is the run status at the time of the event.
	Status domain.RunStatus `json:"status"`
	// Failure carries stage and classification for run.failed events.
	Failure *domain.FailureInfo `json:"failure,omitempty"`
	// OccurredAt is when the event was emitted.
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes run lifecycle events.
type Publisher interface {
	// PublishRunEvent publishes a single run event. Implementations must be
	// safe for concurrent use.
	PublishRunEvent(ctx context.Context, event RunEvent) error

	// Close releases publisher resources.
	Close() error
}

// messageWriter is the subset of kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes run events to a Kafka topic.
type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "kafka_publisher").Logger(),
	}, nil
}

// PublishRunEvent publishes a single run event keyed by run ID.
func (p *KafkaPublisher) PublishRunEvent(ctx context.Context, event RunEvent) error {
	if event.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if event.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Source == "" {
		event.Source = serviceName
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s for run %s: %w", event.EventType, event.RunID, err)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("run_id", event.RunID).
		Msg("Published run event")

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards all events. Used when Kafka publishing is disabled.
type NopPublisher struct{}

// PublishRunEvent discards the event.
func (NopPublisher) PublishRunEvent(context.Context, RunEvent) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }

// NewRunEvent builds a RunEvent from a pipeline run.
func NewRunEvent(eventType string, run *domain.PipelineRun) RunEvent {
	event := RunEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		Source:     serviceName,
		RunID:      run.ID.String(),
		Topic:      run.Topic,
		Status:     run.Status,
		OccurredAt: time.Now().UTC(),
	}
	if eventType == EventTypeRunFailed {
		event.Failure = run.Failure
	}
	return event
}
