// -----------------------------------------------------------------------
// Job - Unit of background work (import or export)
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job represents a background import or export job. Progress columns are
// maintained exclusively by the scheduler; status may additionally change
// through user control actions.
type Job struct {
	ID      int64   `json:"id"`
	JobType JobType `json:"job_type"`
	Status  JobStatus `json:"status"`

	ProgressTotal   int    `json:"progress_total"`
	ProgressCurrent int    `json:"progress_current"`
	ErrorCount      int    `json:"error_count"`
	CurrentFilename string `json:"current_filename,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ProgressPercent returns whole-number completion for status displays.
func (j *Job) ProgressPercent() int {
	if j.ProgressTotal <= 0 {
		return 0
	}
	return int(float64(j.ProgressCurrent) / float64(j.ProgressTotal) * 100)
}

// QueueMessage is the immutable payload enqueued on the persistent task
// queue. The web process enqueues; the worker process consumes. All job
// state lives in the store; the message only names the job.
type QueueMessage struct {
	JobID   int64   `json:"job_id"`
	JobType JobType `json:"job_type"`
}

// ToJSON serializes the queue message.
func (m *QueueMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return data, nil
}

// QueueMessageFromJSON deserializes a queue message.
func QueueMessageFromJSON(data []byte) (*QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue message: %w", err)
	}
	return &msg, nil
}
