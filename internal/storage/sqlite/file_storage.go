// -----------------------------------------------------------------------
// FileStorage - SQLite persistence for media files
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// fileColumns is the canonical select list; scanFile must match it.
const fileColumns = `f.id, f.original_filename, f.original_path, f.storage_path, f.size_bytes,
	f.mime_type, f.width, f.height, f.sha256, f.perceptual_hash,
	f.detected_timestamp, f.timestamp_source, f.final_timestamp, f.timestamp_candidates, f.confidence,
	f.reviewed_at, f.discarded, f.processing_error,
	f.exact_group_id, f.exact_group_confidence,
	f.similar_group_id, f.similar_group_confidence, f.similar_group_type,
	f.output_path, f.thumbnail_path, f.created_at, f.updated_at`

// FileStorage implements SQLite persistence for media files
type FileStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewFileStorage creates a new file storage instance
func NewFileStorage(db *SQLiteDB, logger arbor.ILogger) *FileStorage {
	return &FileStorage{db: db, logger: logger}
}

// CreateFiles inserts new files and assigns their IDs, in one transaction.
func (s *FileStorage) CreateFiles(ctx context.Context, files []*models.File) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, f := range files {
		candidates, err := f.CandidatesJSON()
		if err != nil {
			return err
		}
		confidence := f.Confidence
		if confidence == "" {
			confidence = models.ConfidenceNone
		}
		source := f.TimestampSource
		if source == "" {
			source = models.SourceNone
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO files (
				original_filename, original_path, storage_path, size_bytes, mime_type,
				timestamp_source, timestamp_candidates, confidence, discarded,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			f.OriginalFilename, f.OriginalPath, f.StoragePath, f.SizeBytes,
			nullableString(&f.MimeType), string(source), candidates, string(confidence),
			now, now)
		if err != nil {
			return fmt.Errorf("failed to insert file %s: %w", f.OriginalFilename, err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted file id: %w", err)
		}
		f.ID = id
		f.CreatedAt = unixToTime(now)
		f.UpdatedAt = unixToTime(now)
	}

	return tx.Commit()
}

// GetFile retrieves one file by ID.
func (s *FileStorage) GetFile(ctx context.Context, id int64) (*models.File, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files f WHERE f.id = ?`, id)
	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	return file, err
}

// GetFilesByIDs retrieves files by ID. Missing IDs are silently skipped.
func (s *FileStorage) GetFilesByIDs(ctx context.Context, ids []int64) ([]*models.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files f WHERE f.id IN (`+placeholders+`) ORDER BY f.original_filename`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// UpdateFile writes the full mutable row and bumps updated_at.
func (s *FileStorage) UpdateFile(ctx context.Context, file *models.File) error {
	return s.updateFile(ctx, s.db.DB(), file)
}

// UpdateFiles writes several files in one transaction.
func (s *FileStorage) UpdateFiles(ctx context.Context, files []*models.File) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range files {
		if err := s.updateFile(ctx, tx, f); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *FileStorage) updateFile(ctx context.Context, db execer, file *models.File) error {
	candidates, err := file.CandidatesJSON()
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	_, err = db.ExecContext(ctx, `
		UPDATE files SET
			original_filename = ?, original_path = ?, storage_path = ?, size_bytes = ?,
			mime_type = ?, width = ?, height = ?, sha256 = ?, perceptual_hash = ?,
			detected_timestamp = ?, timestamp_source = ?, final_timestamp = ?,
			timestamp_candidates = ?, confidence = ?, reviewed_at = ?, discarded = ?,
			processing_error = ?, exact_group_id = ?, exact_group_confidence = ?,
			similar_group_id = ?, similar_group_confidence = ?, similar_group_type = ?,
			output_path = ?, thumbnail_path = ?, updated_at = ?
		WHERE id = ?`,
		file.OriginalFilename, file.OriginalPath, file.StoragePath, file.SizeBytes,
		nullableString(&file.MimeType), nullableInt(file.Width), nullableInt(file.Height),
		nullableString(file.SHA256), nullableString(file.PerceptualHash),
		nullableTime(file.DetectedTimestamp), file.TimestampSource, nullableTime(file.FinalTimestamp),
		candidates, string(file.Confidence), nullableTime(file.ReviewedAt), boolToInt(file.Discarded),
		nullableString(file.ProcessingError), nullableString(file.ExactGroupID), nullableConfidence(file.ExactGroupConfidence),
		nullableString(file.SimilarGroupID), nullableConfidence(file.SimilarGroupConfidence), nullableGroupType(file.SimilarGroupType),
		nullableString(file.OutputPath), nullableString(file.ThumbnailPath), now,
		file.ID)
	if err != nil {
		return fmt.Errorf("failed to update file %d: %w", file.ID, err)
	}

	file.UpdatedAt = unixToTime(now)
	return nil
}

// DeleteFiles removes files by ID in one transaction. Referencing rows
// (tags, decisions, job links) must be removed first.
func (s *FileStorage) DeleteFiles(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete file %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// AttachFilesToJob links files to a job.
func (s *FileStorage) AttachFilesToJob(ctx context.Context, jobID int64, fileIDs []int64) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, fid := range fileIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO job_files (job_id, file_id) VALUES (?, ?)`, jobID, fid)
		if err != nil {
			return fmt.Errorf("failed to attach file %d to job %d: %w", fid, jobID, err)
		}
	}
	return tx.Commit()
}

// GetJobFiles returns all files of a job ordered by original_filename.
func (s *FileStorage) GetJobFiles(ctx context.Context, jobID int64) ([]*models.File, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+fileColumns+`
		FROM files f
		JOIN job_files jf ON jf.file_id = f.id
		WHERE jf.job_id = ?
		ORDER BY f.original_filename, f.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// JobIDsForFile returns the jobs a file belongs to, newest first.
func (s *FileStorage) JobIDsForFile(ctx context.Context, fileID int64) ([]int64, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT job_id FROM job_files WHERE file_id = ? ORDER BY job_id DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetFilesBySHA returns the job's non-discarded files with the given
// content hash.
func (s *FileStorage) GetFilesBySHA(ctx context.Context, jobID int64, sha256 string) ([]*models.File, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+fileColumns+`
		FROM files f
		JOIN job_files jf ON jf.file_id = f.id
		WHERE jf.job_id = ? AND f.sha256 = ?
		ORDER BY f.original_filename, f.id`, jobID, sha256)
	if err != nil {
		return nil, fmt.Errorf("failed to query files by hash: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// GetExactGroup returns the members of an exact duplicate group.
func (s *FileStorage) GetExactGroup(ctx context.Context, groupID string) ([]*models.File, error) {
	return s.filesWhere(ctx, `f.exact_group_id = ?`, groupID)
}

// GetSimilarGroup returns the members of a similar group.
func (s *FileStorage) GetSimilarGroup(ctx context.Context, groupID string) ([]*models.File, error) {
	return s.filesWhere(ctx, `f.similar_group_id = ?`, groupID)
}

func (s *FileStorage) filesWhere(ctx context.Context, where string, args ...interface{}) ([]*models.File, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files f WHERE `+where+` ORDER BY f.original_filename, f.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// modePredicates filter a listing to one review mode.
var modePredicates = map[string]string{
	interfaces.ModeAll:        `1 = 1`,
	interfaces.ModeDuplicates: `f.exact_group_id IS NOT NULL AND f.discarded = 0`,
	interfaces.ModeSimilar:    `f.similar_group_id IS NOT NULL AND f.discarded = 0`,
	interfaces.ModeUnreviewed: `f.reviewed_at IS NULL AND f.discarded = 0 AND f.processing_error IS NULL`,
	interfaces.ModeReviewed:   `f.reviewed_at IS NOT NULL AND f.discarded = 0`,
	interfaces.ModeDiscarded:  `f.discarded = 1`,
	interfaces.ModeFailed:     `f.processing_error IS NOT NULL`,
}

// sortColumns whitelists user-facing sort keys.
var sortColumns = map[string]string{
	"original_filename":  "f.original_filename",
	"detected_timestamp": "f.detected_timestamp",
	"size_bytes":         "f.size_bytes",
	"confidence":         "f.confidence",
	"created_at":         "f.created_at",
}

// ListFiles returns a windowed, filtered listing plus the aggregate counts
// the review UI shows beside it.
func (s *FileStorage) ListFiles(ctx context.Context, jobID int64, opts *interfaces.FileListOptions) (*interfaces.FileListResult, error) {
	if opts == nil {
		opts = &interfaces.FileListOptions{}
	}

	mode := opts.Mode
	if mode == "" {
		mode = interfaces.ModeAll
	}
	predicate, ok := modePredicates[mode]
	if !ok {
		return nil, fmt.Errorf("unknown listing mode: %q", mode)
	}

	where := `jf.job_id = ? AND ` + predicate
	args := []interface{}{jobID}

	if opts.Confidence != "" {
		where += ` AND f.confidence = ?`
		args = append(args, opts.Confidence)
	}
	if opts.Tag != "" {
		where += ` AND EXISTS (
			SELECT 1 FROM file_tags ft JOIN tags t ON t.id = ft.tag_id
			WHERE ft.file_id = f.id AND t.name = ?)`
		args = append(args, strings.ToLower(opts.Tag))
	}

	orderBy, ok := sortColumns[opts.Sort]
	if !ok {
		orderBy = "f.original_filename"
	}
	direction := "ASC"
	if strings.EqualFold(opts.Order, "desc") {
		direction = "DESC"
	}

	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + fileColumns + `
		FROM files f JOIN job_files jf ON jf.file_id = f.id
		WHERE ` + where + `
		ORDER BY ` + orderBy + ` ` + direction + `, f.id ` + direction + `
		LIMIT ? OFFSET ?`

	rows, err := s.db.DB().QueryContext(ctx, query, append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}

	result := &interfaces.FileListResult{Files: files}

	countQuery := `SELECT COUNT(*) FROM files f JOIN job_files jf ON jf.file_id = f.id WHERE ` + where
	if err := s.db.DB().QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	result.ModeCounts, err = s.confidenceCounts(ctx, jobID, predicate)
	if err != nil {
		return nil, err
	}
	result.ModeTotals, err = s.modeTotals(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// confidenceCounts breaks the active mode down by confidence level.
func (s *FileStorage) confidenceCounts(ctx context.Context, jobID int64, predicate string) (map[string]int, error) {
	counts := map[string]int{"high": 0, "medium": 0, "low": 0, "none": 0}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT f.confidence, COUNT(*)
		FROM files f JOIN job_files jf ON jf.file_id = f.id
		WHERE jf.job_id = ? AND `+predicate+`
		GROUP BY f.confidence`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count by confidence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[level] = count
	}
	return counts, rows.Err()
}

// modeTotals counts the job's files per review mode.
func (s *FileStorage) modeTotals(ctx context.Context, jobID int64) (map[string]int, error) {
	totals := make(map[string]int, len(modePredicates))
	for mode, predicate := range modePredicates {
		var count int
		err := s.db.DB().QueryRowContext(ctx, `
			SELECT COUNT(*) FROM files f JOIN job_files jf ON jf.file_id = f.id
			WHERE jf.job_id = ? AND `+predicate, jobID).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count mode %s: %w", mode, err)
		}
		totals[mode] = count
	}
	return totals, nil
}

// GetSummary aggregates the per-mode and per-confidence counts for one job.
func (s *FileStorage) GetSummary(ctx context.Context, jobID int64) (*models.JobSummary, error) {
	summary := &models.JobSummary{}

	var err error
	if summary.ByMode, err = s.modeTotals(ctx, jobID); err != nil {
		return nil, err
	}
	if summary.ByConfidence, err = s.confidenceCounts(ctx, jobID, `1 = 1`); err != nil {
		return nil, err
	}
	summary.TotalFiles = summary.ByMode[interfaces.ModeAll]
	summary.Errors = summary.ByMode[interfaces.ModeFailed]

	err = s.db.DB().QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.exact_group_id)
		FROM files f JOIN job_files jf ON jf.file_id = f.id
		WHERE jf.job_id = ? AND f.exact_group_id IS NOT NULL AND f.discarded = 0`, jobID).
		Scan(&summary.DuplicateGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to count duplicate groups: %w", err)
	}

	err = s.db.DB().QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.similar_group_id)
		FROM files f JOIN job_files jf ON jf.file_id = f.id
		WHERE jf.job_id = ? AND f.similar_group_id IS NOT NULL AND f.discarded = 0`, jobID).
		Scan(&summary.SimilarGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to count similar groups: %w", err)
	}

	return summary, nil
}

// applyExtractionTx commits one extraction result inside the caller's
// transaction. sha256 is write-once: rows that already have a hash are
// left untouched.
func applyExtractionTx(ctx context.Context, tx *sql.Tx, result *models.ExtractionResult) error {
	now := time.Now().Unix()

	if result.Failed() {
		_, err := tx.ExecContext(ctx, `
			UPDATE files SET processing_error = ?, updated_at = ?
			WHERE id = ? AND sha256 IS NULL`,
			result.ErrorMessage, now, result.FileID)
		if err != nil {
			return fmt.Errorf("failed to record extraction error for file %d: %w", result.FileID, err)
		}
		return nil
	}

	candidatesJSON := "[]"
	if len(result.Candidates) > 0 {
		data, err := json.Marshal(result.Candidates)
		if err != nil {
			return fmt.Errorf("failed to marshal candidates for file %d: %w", result.FileID, err)
		}
		candidatesJSON = string(data)
	}

	var detected sql.NullInt64
	source := models.SourceNone
	if result.ChosenInstant != nil {
		detected = sql.NullInt64{Valid: true, Int64: result.ChosenInstant.Timestamp.Unix()}
		source = result.ChosenInstant.Source
	}

	var phash sql.NullString
	if result.PerceptualHash != "" {
		phash = sql.NullString{Valid: true, String: result.PerceptualHash}
	}
	var thumb sql.NullString
	if result.ThumbnailPath != "" {
		thumb = sql.NullString{Valid: true, String: result.ThumbnailPath}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE files SET
			size_bytes = ?, mime_type = ?, width = ?, height = ?,
			sha256 = ?, perceptual_hash = ?,
			detected_timestamp = ?, timestamp_source = ?, timestamp_candidates = ?,
			confidence = ?, processing_error = NULL, thumbnail_path = ?, updated_at = ?
		WHERE id = ? AND sha256 IS NULL`,
		result.SizeBytes, nullableString(&result.MimeType), nullableInt(result.Width), nullableInt(result.Height),
		result.SHA256, phash,
		detected, source, candidatesJSON,
		string(result.Confidence), thumb, now,
		result.FileID)
	if err != nil {
		return fmt.Errorf("failed to apply extraction for file %d: %w", result.FileID, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row scanner) (*models.File, error) {
	var f models.File
	var mimeType, timestampSource, confidence sql.NullString
	var width, height sql.NullInt64
	var sha, phash, processingError sql.NullString
	var detectedAt, finalAt, reviewedAt sql.NullInt64
	var candidatesJSON string
	var discarded int
	var exactGroup, exactConf, similarGroup, similarConf, similarType sql.NullString
	var outputPath, thumbnailPath sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&f.ID, &f.OriginalFilename, &f.OriginalPath, &f.StoragePath, &f.SizeBytes,
		&mimeType, &width, &height, &sha, &phash,
		&detectedAt, &timestampSource, &finalAt, &candidatesJSON, &confidence,
		&reviewedAt, &discarded, &processingError,
		&exactGroup, &exactConf,
		&similarGroup, &similarConf, &similarType,
		&outputPath, &thumbnailPath, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	f.MimeType = mimeType.String
	f.Width = intFromNull(width)
	f.Height = intFromNull(height)
	f.SHA256 = stringFromNull(sha)
	f.PerceptualHash = stringFromNull(phash)
	f.DetectedTimestamp = timeFromNull(detectedAt)
	f.TimestampSource = timestampSource.String
	f.FinalTimestamp = timeFromNull(finalAt)
	f.Confidence = models.ConfidenceLevel(confidence.String)
	f.ReviewedAt = timeFromNull(reviewedAt)
	f.Discarded = discarded != 0
	f.ProcessingError = stringFromNull(processingError)
	f.ExactGroupID = stringFromNull(exactGroup)
	f.ExactGroupConfidence = confidenceFromNull(exactConf)
	f.SimilarGroupID = stringFromNull(similarGroup)
	f.SimilarGroupConfidence = confidenceFromNull(similarConf)
	f.SimilarGroupType = groupTypeFromNull(similarType)
	f.OutputPath = stringFromNull(outputPath)
	f.ThumbnailPath = stringFromNull(thumbnailPath)
	f.CreatedAt = unixToTime(createdAt)
	f.UpdatedAt = unixToTime(updatedAt)

	candidates, err := models.CandidatesFromJSON(candidatesJSON)
	if err != nil {
		return nil, fmt.Errorf("corrupt timestamp candidates on file %d: %w", f.ID, err)
	}
	f.TimestampCandidates = candidates

	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*models.File, error) {
	var files []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func nullableConfidence(c *models.ConfidenceLevel) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: string(*c)}
}

func confidenceFromNull(n sql.NullString) *models.ConfidenceLevel {
	if !n.Valid || n.String == "" {
		return nil
	}
	c := models.ConfidenceLevel(n.String)
	return &c
}

func nullableGroupType(g *models.GroupType) sql.NullString {
	if g == nil {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: string(*g)}
}

func groupTypeFromNull(n sql.NullString) *models.GroupType {
	if !n.Valid || n.String == "" {
		return nil
	}
	g := models.GroupType(n.String)
	return &g
}
