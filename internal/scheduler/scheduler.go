// -----------------------------------------------------------------------
// Scheduler - Owns job lifecycles: worker pool, batched commit,
// pause/cancel observation, error-threshold halt, resume
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/duplicates"
	"github.com/ternarybob/mediaparser/internal/export"
	"github.com/ternarybob/mediaparser/internal/extract"
	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

const (
	// earlyProgressWindow is the number of initial results that commit
	// job progress individually so the UI sees movement right away.
	earlyProgressWindow = 20

	// progressCommitEvery is the progress-only commit cadence after the
	// early window.
	progressCommitEvery = 5

	// errorCheckMinimum delays the threshold check until enough results
	// are in to make the rate meaningful.
	errorCheckMinimum = 10

	// maxErrorMessageLen truncates unexpected failure messages stored on
	// the job row.
	maxErrorMessageLen = 500
)

// Config tunes the scheduler. Zero values fall back to the documented
// defaults: one worker, batches of 10, a 10% error threshold.
type Config struct {
	WorkerCount     int
	BatchCommitSize int
	ErrorThreshold  float64
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.BatchCommitSize <= 0 {
		c.BatchCommitSize = 10
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 0.10
	}
	return c
}

// Scheduler drives import and export jobs. One control goroutine per job
// owns all store writes; workers only compute and report back on a
// completion channel.
type Scheduler struct {
	store     interfaces.StorageManager
	extractor *extract.Extractor
	exporter  *export.Exporter
	dupes     *duplicates.Engine
	events    interfaces.EventService
	control   *ControlHub
	config    Config
	logger    arbor.ILogger
}

// New creates a scheduler. The exporter may be nil when the process only
// runs imports.
func New(
	store interfaces.StorageManager,
	extractor *extract.Extractor,
	exporter *export.Exporter,
	dupes *duplicates.Engine,
	events interfaces.EventService,
	control *ControlHub,
	config Config,
	logger arbor.ILogger,
) *Scheduler {
	if control == nil {
		control = NewControlHub()
	}
	return &Scheduler{
		store:     store,
		extractor: extractor,
		exporter:  exporter,
		dupes:     dupes,
		events:    events,
		control:   control,
		config:    config.withDefaults(),
		logger:    logger,
	}
}

// Control exposes the in-process control hub so the mutation API can
// nudge a running job without waiting for the next status re-read.
func (s *Scheduler) Control() *ControlHub {
	return s.control
}

// HandleImport is the queue handler for import jobs.
func (s *Scheduler) HandleImport(ctx context.Context, msg *models.QueueMessage) error {
	return s.runGuarded(ctx, msg.JobID, s.runImport)
}

// HandleExport is the queue handler for export jobs.
func (s *Scheduler) HandleExport(ctx context.Context, msg *models.QueueMessage) error {
	if s.exporter == nil {
		return fmt.Errorf("export jobs are not enabled on this worker")
	}
	return s.runGuarded(ctx, msg.JobID, s.runExport)
}

// runGuarded wraps a job run with panic recovery. An unexpected failure
// in the control loop transitions the job to FAILED with a truncated
// message; extraction already committed is preserved.
func (s *Scheduler) runGuarded(ctx context.Context, jobID int64, run func(context.Context, *models.Job) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %d panicked: %v", jobID, r)
			s.failJob(ctx, jobID, err)
		}
	}()

	job, err := s.store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", jobID, err)
	}

	switch job.Status {
	case models.JobStatusCancelled, models.JobStatusCompleted, models.JobStatusHalted:
		s.logger.Info().Int64("job_id", jobID).Str("status", string(job.Status)).Msg("Skipping settled job")
		return nil
	case models.JobStatusPaused:
		// Stays paused; resume re-enqueues.
		return nil
	}

	// A resumed job is already RUNNING when its message arrives.
	if job.Status != models.JobStatusRunning {
		if err := s.transition(ctx, job, models.JobStatusRunning); err != nil {
			return err
		}
	}

	if err := run(ctx, job); err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}
	return nil
}

// transition applies a legal status edge, persists it, and publishes the
// change. Illegal edges are a scheduler bug and surface as errors.
func (s *Scheduler) transition(ctx context.Context, job *models.Job, target models.JobStatus) error {
	if !job.Status.CanTransition(target) {
		return fmt.Errorf("illegal job %d transition %s -> %s", job.ID, job.Status, target)
	}
	if err := s.store.Jobs().UpdateJobStatus(ctx, job.ID, target); err != nil {
		return fmt.Errorf("failed to persist job %d status %s: %w", job.ID, target, err)
	}
	from := job.Status
	job.Status = target

	s.logger.Info().
		Int64("job_id", job.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("Job transitioned")

	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type:  interfaces.EventJobTransitioned,
			JobID: job.ID,
			Payload: map[string]interface{}{
				"from": string(from),
				"to":   string(target),
			},
		})
	}
	return nil
}

// failJob force-marks a job FAILED after an unexpected error.
func (s *Scheduler) failJob(ctx context.Context, jobID int64, cause error) {
	message := cause.Error()
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}

	job, err := s.store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("Cannot load job to mark failed")
		return
	}
	job.ErrorMessage = message
	job.Status = models.JobStatusFailed
	if err := s.store.Jobs().UpdateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("Cannot mark job failed")
		return
	}

	s.logger.Error().Int64("job_id", jobID).Str("error", message).Msg("Job failed")
	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobTransitioned,
			JobID:   jobID,
			Payload: map[string]interface{}{"to": string(models.JobStatusFailed), "error": message},
		})
	}
}

// observeStatus is the yield point: it drains any in-process control
// signal, then re-reads the durable status from the store. The store is
// the source of truth; the channel only makes same-process control
// faster.
func (s *Scheduler) observeStatus(ctx context.Context, job *models.Job) (models.JobStatus, error) {
	s.control.drain(job.ID)

	status, err := s.store.Jobs().GetJobStatus(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("failed to re-read job %d status: %w", job.ID, err)
	}
	job.Status = status
	return status, nil
}

// progressCommitDue reports whether a progress-only commit should happen
// after the given completion count.
func progressCommitDue(completed int) bool {
	if completed <= earlyProgressWindow {
		return true
	}
	return completed%progressCommitEvery == 0
}
