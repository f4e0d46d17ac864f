// -----------------------------------------------------------------------
// Manager - Storage aggregate and multi-entity commit paths
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// Manager implements the StorageManager interface
type Manager struct {
	db        *SQLiteDB
	files     *FileStorage
	jobs      *JobStorage
	tags      *TagStorage
	decisions *DecisionStorage
	settings  *SettingsStorage
	logger    arbor.ILogger
}

// NewManager opens the database and wires the entity stores.
func NewManager(logger arbor.ILogger, config *Config) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		files:     NewFileStorage(db, logger),
		jobs:      NewJobStorage(db, logger),
		tags:      NewTagStorage(db, logger),
		decisions: NewDecisionStorage(db, logger),
		settings:  NewSettingsStorage(db, logger),
		logger:    logger,
	}, nil
}

// Files returns the file storage interface
func (m *Manager) Files() interfaces.FileStorage {
	return m.files
}

// Jobs returns the job storage interface
func (m *Manager) Jobs() interfaces.JobStorage {
	return m.jobs
}

// Tags returns the tag storage interface
func (m *Manager) Tags() interfaces.TagStorage {
	return m.tags
}

// Decisions returns the decision storage interface
func (m *Manager) Decisions() interfaces.DecisionStorage {
	return m.decisions
}

// Settings returns the settings storage interface
func (m *Manager) Settings() interfaces.SettingsStorage {
	return m.settings
}

// CommitExtractionBatch applies extraction results and the job's progress
// columns in one transaction. The scheduler owns the batch boundary; this
// is the only place import results reach disk.
func (m *Manager) CommitExtractionBatch(ctx context.Context, job *models.Job, results []*models.ExtractionResult) error {
	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	for _, result := range results {
		if err := applyExtractionTx(ctx, tx, result); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET progress_current = ?, error_count = ?, current_filename = ?, updated_at = ?
		WHERE id = ?`,
		job.ProgressCurrent, job.ErrorCount, nullableString(&job.CurrentFilename), time.Now().Unix(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %d progress: %w", job.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit extraction batch: %w", err)
	}

	m.logger.Debug().
		Int64("job_id", job.ID).
		Int("results", len(results)).
		Int("progress", job.ProgressCurrent).
		Msg("Extraction batch committed")
	return nil
}

// CommitExportBatch records output paths and job progress in one
// transaction. A file that failed to export carries a processing error,
// and a file with a processing error belongs to no duplicate group, so
// its group memberships are cleared here and any group left with a
// single non-discarded member dissolves.
func (m *Manager) CommitExportBatch(ctx context.Context, job *models.Job, files []*models.File) error {
	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	var exactTouched, similarTouched []string
	for _, f := range files {
		_, err := tx.ExecContext(ctx,
			`UPDATE files SET output_path = ?, processing_error = ?, updated_at = ? WHERE id = ?`,
			nullableString(f.OutputPath), nullableString(f.ProcessingError), now, f.ID)
		if err != nil {
			return fmt.Errorf("failed to record export for file %d: %w", f.ID, err)
		}

		if f.ProcessingError == nil {
			continue
		}
		if f.ExactGroupID != nil {
			exactTouched = append(exactTouched, *f.ExactGroupID)
		}
		if f.SimilarGroupID != nil {
			similarTouched = append(similarTouched, *f.SimilarGroupID)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE files SET exact_group_id = NULL, exact_group_confidence = NULL,
				similar_group_id = NULL, similar_group_confidence = NULL, similar_group_type = NULL
			WHERE id = ?`, f.ID)
		if err != nil {
			return fmt.Errorf("failed to clear groups for failed file %d: %w", f.ID, err)
		}
		f.ClearGroups()
	}

	for _, groupID := range exactTouched {
		_, err := tx.ExecContext(ctx, `
			UPDATE files SET exact_group_id = NULL, exact_group_confidence = NULL
			WHERE exact_group_id = ? AND discarded = 0
			AND (SELECT COUNT(*) FROM files f2
				WHERE f2.exact_group_id = ? AND f2.discarded = 0) = 1`,
			groupID, groupID)
		if err != nil {
			return fmt.Errorf("failed to dissolve exact group %s: %w", groupID, err)
		}
	}
	for _, groupID := range similarTouched {
		_, err := tx.ExecContext(ctx, `
			UPDATE files SET similar_group_id = NULL, similar_group_confidence = NULL, similar_group_type = NULL
			WHERE similar_group_id = ? AND discarded = 0
			AND (SELECT COUNT(*) FROM files f2
				WHERE f2.similar_group_id = ? AND f2.discarded = 0) = 1`,
			groupID, groupID)
		if err != nil {
			return fmt.Errorf("failed to dissolve similar group %s: %w", groupID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET progress_current = ?, error_count = ?, current_filename = ?, updated_at = ?
		WHERE id = ?`,
		job.ProgressCurrent, job.ErrorCount, nullableString(&job.CurrentFilename), now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %d progress: %w", job.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export batch: %w", err)
	}
	return nil
}

// PurgeJob deletes a job and everything reachable only through it, in
// foreign-key-safe order, inside one transaction. Files shared with other
// jobs are kept.
func (m *Manager) PurgeJob(ctx context.Context, jobID int64) error {
	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	// Files that belong only to this job.
	rows, err := tx.QueryContext(ctx, `
		SELECT file_id FROM job_files jf
		WHERE jf.job_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM job_files other
			WHERE other.file_id = jf.file_id AND other.job_id != ?)`,
		jobID, jobID)
	if err != nil {
		return fmt.Errorf("failed to enumerate job files: %w", err)
	}

	var exclusive []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		exclusive = append(exclusive, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// Dependents first: decisions, tag links, job links, then files.
	for _, fid := range exclusive {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_decisions WHERE file_id = ?`, fid); err != nil {
			return fmt.Errorf("failed to purge decisions for file %d: %w", fid, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET usage_count = MAX(usage_count - 1, 0)
			WHERE id IN (SELECT tag_id FROM file_tags WHERE file_id = ?)`, fid); err != nil {
			return fmt.Errorf("failed to adjust tag usage for file %d: %w", fid, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ?`, fid); err != nil {
			return fmt.Errorf("failed to purge tags for file %d: %w", fid, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_files WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to purge job links: %w", err)
	}

	for _, fid := range exclusive {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fid); err != nil {
			return fmt.Errorf("failed to purge file %d: %w", fid, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to purge job %d: %w", jobID, err)
	}

	// Tags with no remaining references go too.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM file_tags)`); err != nil {
		return fmt.Errorf("failed to garbage-collect tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purge: %w", err)
	}

	m.logger.Info().Int64("job_id", jobID).Int("files", len(exclusive)).Msg("Job purged")
	return nil
}

// DB returns the underlying database connection
func (m *Manager) DB() *SQLiteDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
