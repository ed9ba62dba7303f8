package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for run lifecycle events.
const (
	EventTypeRunStarted        = "run.started"
	EventTypeRunPlanCreated    = "run.plan_created"
	EventTypeRunSectionDone    = "run.section_completed"
	EventTypeRunCompleted      = "run.completed"
	EventTypeRunFailed         = "run.failed"
	EventTypeRunCancelled      = "run.cancelled"
)

// RunEvent represents a domain event published to the event stream.
type RunEvent struct {
	EventID      string
	EventVersion int
	AggregateID  string
	EventType    string
	Payload      []byte
	CreatedAt    time.Time
}

// NewRunEvent creates a new run event with the given parameters.
// The payload is JSON-serialized automatically.
func NewRunEvent(eventType, aggregateID string, payload interface{}) (*RunEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &RunEvent{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		AggregateID:  aggregateID,
		EventType:    eventType,
		Payload:      payloadBytes,
		CreatedAt:    time.Now(),
	}, nil
}

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	RunID        uuid.UUID `json:"run_id"`
	Topic        string    `json:"topic"`
	SectionCount int       `json:"section_count"`
	SearchDepth  int       `json:"search_depth"`
}

// RunPlanCreatedPayload is the payload for run.plan_created events.
type RunPlanCreatedPayload struct {
	RunID         uuid.UUID `json:"run_id"`
	SectionTitles []string  `json:"section_titles"`
}

// RunSectionCompletedPayload is the payload for run.section_completed events.
type RunSectionCompletedPayload struct {
	RunID        uuid.UUID     `json:"run_id"`
	SectionIndex int           `json:"section_index"`
	SectionTitle string        `json:"section_title"`
	Status       SectionStatus `json:"status"`
	SourceCount  int           `json:"source_count"`
}

// RunCompletedPayload is the payload for run.completed events.
type RunCompletedPayload struct {
	RunID        uuid.UUID     `json:"run_id"`
	SectionCount int           `json:"section_count"`
	TotalSources int           `json:"total_sources"`
	WordCount    int           `json:"word_count"`
	Duration     time.Duration `json:"duration_ns"`
}

// RunFailedPayload is the payload for run.failed events.
type RunFailedPayload struct {
	RunID uuid.UUID `json:"run_id"`
	Stage StageName `json:"stage"`
	Kind  ErrorKind `json:"kind"`
	Error string    `json:"error"`
}

// RunCancelledPayload is the payload for run.cancelled events.
type RunCancelledPayload struct {
	RunID  uuid.UUID `json:"run_id"`
	Reason string    `json:"reason,omitempty"`
}
