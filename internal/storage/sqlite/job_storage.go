// -----------------------------------------------------------------------
// JobStorage - SQLite persistence for background jobs
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

const jobColumns = `id, job_type, status, progress_total, progress_current, error_count,
	current_filename, error_message, created_at, started_at, completed_at`

// JobStorage implements SQLite persistence for jobs
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

// CreateJob inserts a new job and assigns its ID.
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := time.Now().Unix()

	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO jobs (job_type, status, progress_total, progress_current, error_count,
			current_filename, error_message, created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(job.JobType), string(job.Status), job.ProgressTotal, job.ProgressCurrent, job.ErrorCount,
		nullableString(&job.CurrentFilename), nullableString(&job.ErrorMessage),
		now, nullableTime(job.StartedAt), nullableTime(job.CompletedAt), now)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted job id: %w", err)
	}
	job.ID = id
	job.CreatedAt = unixToTime(now)
	return nil
}

// GetJob retrieves one job by ID.
func (s *JobStorage) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	return job, err
}

// GetJobStatus reads just the status column. The scheduler calls this at
// every yield point.
func (s *JobStorage) GetJobStatus(ctx context.Context, id int64) (models.JobStatus, error) {
	var status string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", interfaces.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read job status: %w", err)
	}
	return models.JobStatus(status), nil
}

// UpdateJob writes the full mutable row.
func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE jobs SET
			status = ?, progress_total = ?, progress_current = ?, error_count = ?,
			current_filename = ?, error_message = ?, started_at = ?, completed_at = ?,
			updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.ProgressTotal, job.ProgressCurrent, job.ErrorCount,
		nullableString(&job.CurrentFilename), nullableString(&job.ErrorMessage),
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		time.Now().Unix(),
		job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}
	return nil
}

// UpdateJobStatus changes only the status, maintaining started_at and
// completed_at as the job enters and leaves execution.
func (s *JobStorage) UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) error {
	now := time.Now().Unix()

	var query string
	args := []interface{}{string(status), now, id}
	switch status {
	case models.JobStatusRunning:
		query = `UPDATE jobs SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ? WHERE id = ?`
		args = []interface{}{string(status), now, now, id}
	case models.JobStatusCompleted, models.JobStatusCancelled, models.JobStatusFailed, models.JobStatusHalted:
		query = `UPDATE jobs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`
		args = []interface{}{string(status), now, now, id}
	default:
		query = `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`
	}

	res, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// UpdateJobProgress writes the progress columns the UI polls.
func (s *JobStorage) UpdateJobProgress(ctx context.Context, id int64, current, errorCount int, currentFilename string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE jobs SET progress_current = ?, error_count = ?, current_filename = ?, updated_at = ?
		WHERE id = ?`,
		current, errorCount, nullableString(&currentFilename), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update job %d progress: %w", id, err)
	}
	return nil
}

// ListJobs returns jobs newest first.
func (s *JobStorage) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetCurrentJob returns the most recent job still in flight, or
// ErrNotFound when everything is settled.
func (s *JobStorage) GetCurrentJob(ctx context.Context) (*models.Job, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('pending', 'running', 'paused')
		ORDER BY created_at DESC, id DESC LIMIT 1`)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	return job, err
}

// GetStaleRunningJobs finds RUNNING jobs whose last write predates the
// cutoff. A live scheduler bumps updated_at on every progress commit, so
// staleness here means the owning worker died; how long the job has been
// running does not matter.
func (s *JobStorage) GetStaleRunningJobs(ctx context.Context, olderThan time.Duration) ([]*models.Job, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'running' AND COALESCE(updated_at, started_at, created_at) < ?
		ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job row. Its job_files links must be gone first.
func (s *JobStorage) DeleteJob(ctx context.Context, id int64) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}

func scanJob(row scanner) (*models.Job, error) {
	var j models.Job
	var jobType, status string
	var currentFilename, errorMessage sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(&j.ID, &jobType, &status, &j.ProgressTotal, &j.ProgressCurrent, &j.ErrorCount,
		&currentFilename, &errorMessage, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.JobType = models.JobType(jobType)
	j.Status = models.JobStatus(status)
	j.CurrentFilename = currentFilename.String
	j.ErrorMessage = errorMessage.String
	j.CreatedAt = unixToTime(createdAt)
	j.StartedAt = timeFromNull(startedAt)
	j.CompletedAt = timeFromNull(completedAt)

	return &j, nil
}
