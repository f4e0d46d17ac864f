// -----------------------------------------------------------------------
// Export Loop - Copies reviewed files out under the batching protocol
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// runExport drives one export job. Structurally the same loop as import:
// workers copy files instead of extracting, and the pending filter is
// output_path unset.
func (s *Scheduler) runExport(ctx context.Context, job *models.Job) error {
	s.control.register(job.ID)
	defer s.control.unregister(job.ID)

	files, err := s.store.Files().GetJobFiles(ctx, job.ID)
	if err != nil {
		return err
	}

	eligible := make([]*models.File, 0, len(files))
	pending := make([]*models.File, 0, len(files))
	for _, f := range files {
		if f.Discarded || f.ProcessingError != nil {
			continue
		}
		eligible = append(eligible, f)
		if f.OutputPath == nil {
			pending = append(pending, f)
		}
	}

	// Chronological output: effective timestamp ascending, files without
	// one last, name as tie-break.
	sort.SliceStable(pending, func(i, j int) bool {
		ti, tj := pending[i].EffectiveTimestamp(), pending[j].EffectiveTimestamp()
		switch {
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.Before(*tj)
		case ti != nil && tj == nil:
			return true
		case ti == nil && tj != nil:
			return false
		}
		return pending[i].OriginalFilename < pending[j].OriginalFilename
	})

	job.ProgressTotal = len(eligible)
	job.ProgressCurrent = len(eligible) - len(pending)
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
		Msg("Export starting")

	if len(pending) > 0 {
		finished, err := s.exportPending(ctx, job, pending)
		if err != nil {
			return err
		}
		if !finished {
			return nil
		}
	}

	job.CurrentFilename = ""
	if err := s.store.Jobs().UpdateJobProgress(ctx, job.ID, job.ProgressCurrent, job.ErrorCount, ""); err != nil {
		return err
	}
	return s.transition(ctx, job, models.JobStatusCompleted)
}

// exportResult pairs a file with its copy outcome on the completion
// channel.
type exportResult struct {
	file *models.File
	err  error
}

// exportPending copies the pending files through the worker pool. Per-file
// failures are recorded as processing errors and count toward the halt
// threshold; the rest of the export continues.
func (s *Scheduler) exportPending(ctx context.Context, job *models.Job, pending []*models.File) (bool, error) {
	poolCtx, stopPool := context.WithCancel(ctx)
	defer stopPool()

	tasks := make(chan *models.File)
	results := make(chan exportResult, s.config.WorkerCount)

	var wg sync.WaitGroup
	for i := 0; i < s.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range tasks {
				err := s.exporter.Process(poolCtx, f)
				select {
				case results <- exportResult{file: f, err: err}:
				case <-poolCtx.Done():
					return
				}
			}
		}()
	}

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

	var buffer []*models.File
	completed := 0

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := s.store.CommitExportBatch(ctx, job, buffer); err != nil {
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
		job.CurrentFilename = result.file.OriginalFilename

		if result.err != nil {
			job.ErrorCount++
			message := result.err.Error()
			result.file.ProcessingError = &message
			s.logger.Warn().
				Int64("job_id", job.ID).
				Str("file", result.file.OriginalFilename).
				Str("error", message).
				Msg("File export failed")
		}
		buffer = append(buffer, result.file)

		if s.events != nil {
			s.events.Publish(ctx, interfaces.Event{
				Type:  interfaces.EventFileCompleted,
				JobID: job.ID,
				Payload: map[string]interface{}{
					"file_id":  result.file.ID,
					"progress": job.ProgressCurrent,
					"failed":   result.err != nil,
				},
			})
		}

		if job.ProgressCurrent >= errorCheckMinimum &&
			float64(job.ErrorCount)/float64(job.ProgressCurrent) > s.config.ErrorThreshold {
			stopPool()
			if err := flush(); err != nil {
				return false, err
			}
			s.logger.Warn().
				Int64("job_id", job.ID).
				Int("errors", job.ErrorCount).
				Msg("Error threshold exceeded, halting export")
			return false, s.transition(ctx, job, models.JobStatusHalted)
		}

		committed := false
		if len(buffer) >= s.config.BatchCommitSize {
			if err := flush(); err != nil {
				return false, err
			}
			committed = true
		} else if progressCommitDue(completed) {
			if err := s.store.Jobs().UpdateJobProgress(ctx, job.ID,
				job.ProgressCurrent, job.ErrorCount, job.CurrentFilename); err != nil {
				return false, err
			}
			committed = true
		}

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
					Msg("Export stopped by status change")
				return false, nil
			}
		}
	}

	return true, flush()
}
