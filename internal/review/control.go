// -----------------------------------------------------------------------
// Job Control - Pause, cancel, and resume under the status machine
// -----------------------------------------------------------------------

package review

import (
	"context"
	"fmt"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// controlSources maps each action to the statuses it may be applied from.
var controlSources = map[models.ControlAction][]models.JobStatus{
	models.ControlPause:  {models.JobStatusRunning},
	models.ControlCancel: {models.JobStatusRunning, models.JobStatusPaused, models.JobStatusPending},
	models.ControlResume: {models.JobStatusPaused},
}

// controlTargets maps each action to the status it produces.
var controlTargets = map[models.ControlAction]models.JobStatus{
	models.ControlPause:  models.JobStatusPaused,
	models.ControlCancel: models.JobStatusCancelled,
	models.ControlResume: models.JobStatusRunning,
}

// TransitionError reports an illegal control request along with the
// states it would have been legal from. Handlers render it as a 400 with
// an allowed_states list.
type TransitionError struct {
	JobID   int64
	From    models.JobStatus
	Action  models.ControlAction
	Allowed []models.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s job %d in status %s", e.Action, e.JobID, e.From)
}

// AllowedStates renders the legal source states for API payloads.
func (e *TransitionError) AllowedStates() []string {
	states := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		states = append(states, string(s))
	}
	return states
}

// ControlJob applies a pause, cancel, or resume request. The durable
// status column changes first; the in-process scheduler loop, if any, is
// then nudged so the request lands before the next commit-window re-read.
// Resume additionally re-enqueues the job for the worker.
func (s *Service) ControlJob(ctx context.Context, jobID int64, action models.ControlAction, queue interfaces.QueueManager) (*models.Job, error) {
	job, err := s.store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	allowed, ok := controlSources[action]
	if !ok {
		return nil, fmt.Errorf("unknown control action: %q", action)
	}

	legal := false
	for _, from := range allowed {
		if job.Status == from {
			legal = true
			break
		}
	}
	if !legal {
		return nil, &TransitionError{JobID: jobID, From: job.Status, Action: action, Allowed: allowed}
	}

	target := controlTargets[action]
	if err := s.store.Jobs().UpdateJobStatus(ctx, jobID, target); err != nil {
		return nil, err
	}
	job.Status = target

	if s.control != nil {
		s.control.Signal(jobID, action)
	}

	if action == models.ControlResume && queue != nil {
		msg := &models.QueueMessage{JobID: job.ID, JobType: job.JobType}
		if err := queue.Enqueue(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to re-enqueue job %d: %w", jobID, err)
		}
	}

	s.logger.Info().
		Int64("job_id", jobID).
		Str("action", string(action)).
		Str("status", string(target)).
		Msg("Job control applied")
	return job, nil
}
