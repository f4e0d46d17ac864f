// -----------------------------------------------------------------------
// Import Loop - Extraction worker pool with batched commits
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"sync"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// runImport drives one import job: dispatch pending files to the
// extraction pool, commit results in batches, observe control signals at
// every commit, and run duplicate detection once the pool drains.
func (s *Scheduler) runImport(ctx context.Context, job *models.Job) error {
	s.control.register(job.ID)
	defer s.control.unregister(job.ID)

	files, err := s.store.Files().GetJobFiles(ctx, job.ID)
	if err != nil {
		return err
	}

	// Pending = not yet extracted. On resume everything already hashed is
	// skipped, so no file is ever processed twice.
	pending := make([]*models.File, 0, len(files))
	for _, f := range files {
		if !f.Extracted() {
			pending = append(pending, f)
		}
	}

	job.ProgressTotal = len(files)
	job.ProgressCurrent = len(files) - len(pending)
	if job.StartedAt == nil || job.ProgressCurrent == 0 {
		job.ErrorCount = 0
	}
	if err := s.store.Jobs().UpdateJob(ctx, job); err != nil {
		return err
	}

	s.logger.Info().
		Int64("job_id", job.ID).
		Int("total", job.ProgressTotal).
		Int("pending", len(pending)).
		Msg("Import extraction starting")
	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventExtractionStarted,
			JobID:   job.ID,
			Payload: map[string]interface{}{"total": job.ProgressTotal, "pending": len(pending)},
		})
	}

	if len(pending) > 0 {
		finished, err := s.extractPending(ctx, job, pending)
		if err != nil {
			return err
		}
		if !finished {
			// Paused, cancelled, or halted; buffered work is committed.
			return nil
		}
	}

	if err := s.detectDuplicates(ctx, job); err != nil {
		return err
	}

	job.CurrentFilename = ""
	if err := s.store.Jobs().UpdateJobProgress(ctx, job.ID, job.ProgressCurrent, job.ErrorCount, ""); err != nil {
		return err
	}
	return s.transition(ctx, job, models.JobStatusCompleted)
}

// extractPending fans the pending files out to the worker pool and
// consumes results on the completion channel. Returns false when the job
// stopped early (pause, cancel, halt).
func (s *Scheduler) extractPending(ctx context.Context, job *models.Job, pending []*models.File) (bool, error) {
	poolCtx, stopPool := context.WithCancel(ctx)
	defer stopPool()

	tasks := make(chan *models.File)
	results := make(chan *models.ExtractionResult, s.config.WorkerCount)

	var wg sync.WaitGroup
	for i := 0; i < s.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range tasks {
				select {
				case results <- s.extractor.Process(poolCtx, f):
				case <-poolCtx.Done():
					return
				}
			}
		}()
	}

	// Submit in file order; completion order is arbitrary.
	go func() {
		defer close(tasks)
		for _, f := range pending {
			select {
			case tasks <- f:
			case <-poolCtx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	fileByID := make(map[int64]*models.File, len(pending))
	for _, f := range pending {
		fileByID[f.ID] = f
	}

	var buffer []*models.ExtractionResult
	completed := 0

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := s.store.CommitExtractionBatch(ctx, job, buffer); err != nil {
			return err
		}
		if s.events != nil {
			s.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.EventBatchCommitted,
				JobID:   job.ID,
				Payload: map[string]interface{}{"size": len(buffer), "progress": job.ProgressCurrent},
			})
		}
		buffer = buffer[:0]
		return nil
	}

	for result := range results {
		completed++
		job.ProgressCurrent++
		if f, ok := fileByID[result.FileID]; ok {
			job.CurrentFilename = f.OriginalFilename
		}
		buffer = append(buffer, result)

		if result.Failed() {
			job.ErrorCount++
			s.logger.Warn().
				Int64("job_id", job.ID).
				Int64("file_id", result.FileID).
				Str("error", result.ErrorMessage).
				Msg("File extraction failed")
		}
		if s.events != nil {
			s.events.Publish(ctx, interfaces.Event{
				Type:  interfaces.EventFileCompleted,
				JobID: job.ID,
				Payload: map[string]interface{}{
					"file_id":  result.FileID,
					"progress": job.ProgressCurrent,
					"failed":   result.Failed(),
				},
			})
		}

		// Error-threshold halt: drain what is buffered, then stop.
		if job.ProgressCurrent >= errorCheckMinimum &&
			float64(job.ErrorCount)/float64(job.ProgressCurrent) > s.config.ErrorThreshold {
			stopPool()
			if err := flush(); err != nil {
				return false, err
			}
			s.logger.Warn().
				Int64("job_id", job.ID).
				Int("errors", job.ErrorCount).
				Int("processed", job.ProgressCurrent).
				Msg("Error threshold exceeded, halting job")
			return false, s.transition(ctx, job, models.JobStatusHalted)
		}

		committed := false
		if len(buffer) >= s.config.BatchCommitSize {
			if err := flush(); err != nil {
				return false, err
			}
			committed = true
		} else if progressCommitDue(completed) {
			// Progress-only commit so the UI sees early movement.
			if err := s.store.Jobs().UpdateJobProgress(ctx, job.ID,
				job.ProgressCurrent, job.ErrorCount, job.CurrentFilename); err != nil {
				return false, err
			}
			committed = true
		}

		// Yield point: control requests take effect within one commit
		// window. The store is authoritative, so any status written there
		// while the loop ran stops it, not just pause and cancel.
		if committed {
			status, err := s.observeStatus(ctx, job)
			if err != nil {
				return false, err
			}
			if status != models.JobStatusRunning {
				stopPool()
				if err := flush(); err != nil {
					return false, err
				}
				s.logger.Info().
					Int64("job_id", job.ID).
					Str("status", string(status)).
					Int("progress", job.ProgressCurrent).
					Msg("Import stopped by status change")
				return false, nil
			}
		}
	}

	return true, flush()
}

// detectDuplicates re-reads the job's committed files, clusters them, and
// persists the group assignments in one transaction.
func (s *Scheduler) detectDuplicates(ctx context.Context, job *models.Job) error {
	files, err := s.store.Files().GetJobFiles(ctx, job.ID)
	if err != nil {
		return err
	}

	s.dupes.Detect(files)

	changed := make([]*models.File, 0, len(files))
	for _, f := range files {
		if f.ExactGroupID != nil || f.SimilarGroupID != nil {
			changed = append(changed, f)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return s.store.Files().UpdateFiles(ctx, changed)
}
