// -----------------------------------------------------------------------
// Events - In-process pub/sub vocabulary for pipeline progress
// -----------------------------------------------------------------------

package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobTransitioned   EventType = "job_transitioned"
	EventExtractionStarted EventType = "extraction_started"
	EventFileCompleted     EventType = "file_completed"
	EventBatchCommitted    EventType = "batch_committed"
)

// Event represents a system event
type Event struct {
	Type    EventType   `json:"type"`
	JobID   int64       `json:"job_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus. Publish never blocks the
// pipeline; slow subscribers drop events rather than stall extraction.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event)
	Close() error
}
