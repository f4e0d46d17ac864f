// -----------------------------------------------------------------------
// Storage - Persistence contracts for files, jobs, tags, and decisions
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/mediaparser/internal/models"
)

// ErrNotFound is returned by Get operations when no row matches.
var ErrNotFound = errors.New("not found")

// Listing modes for the review UI. "all" is the implicit default.
const (
	ModeAll        = "all"
	ModeDuplicates = "duplicates"
	ModeSimilar    = "similar"
	ModeUnreviewed = "unreviewed"
	ModeReviewed   = "reviewed"
	ModeDiscarded  = "discarded"
	ModeFailed     = "failed"
)

// FileListOptions windows and filters a per-job file listing.
type FileListOptions struct {
	Mode       string
	Confidence string
	Tag        string
	Sort       string // original_filename | detected_timestamp | size_bytes | confidence
	Order      string // asc | desc
	Offset     int
	Limit      int
}

// FileListResult is one window of a filtered listing plus the aggregate
// counts the review UI renders alongside it.
type FileListResult struct {
	Files      []*models.File `json:"files"`
	ModeCounts map[string]int `json:"mode_counts"` // confidence -> count within the active mode
	ModeTotals map[string]int `json:"mode_totals"` // mode -> count
	Total      int            `json:"total"`
}

// FileStorage - persistence for media files and the job-file relation
type FileStorage interface {
	CreateFiles(ctx context.Context, files []*models.File) error
	GetFile(ctx context.Context, id int64) (*models.File, error)
	GetFilesByIDs(ctx context.Context, ids []int64) ([]*models.File, error)
	UpdateFile(ctx context.Context, file *models.File) error
	UpdateFiles(ctx context.Context, files []*models.File) error
	DeleteFiles(ctx context.Context, ids []int64) error

	// Job-file relation. An export job attaches the same files as its
	// originating import job.
	AttachFilesToJob(ctx context.Context, jobID int64, fileIDs []int64) error
	GetJobFiles(ctx context.Context, jobID int64) ([]*models.File, error) // ordered by original_filename
	JobIDsForFile(ctx context.Context, fileID int64) ([]int64, error)

	// Queries for the review surface.
	ListFiles(ctx context.Context, jobID int64, opts *FileListOptions) (*FileListResult, error)
	GetFilesBySHA(ctx context.Context, jobID int64, sha256 string) ([]*models.File, error)
	GetExactGroup(ctx context.Context, groupID string) ([]*models.File, error)
	GetSimilarGroup(ctx context.Context, groupID string) ([]*models.File, error)
	GetSummary(ctx context.Context, jobID int64) (*models.JobSummary, error)
}

// JobStorage - persistence for background jobs
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetJobStatus(ctx context.Context, id int64) (models.JobStatus, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id int64, current, errorCount int, currentFilename string) error
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)
	GetCurrentJob(ctx context.Context) (*models.Job, error) // most recent pending/running/paused
	GetStaleRunningJobs(ctx context.Context, olderThan time.Duration) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id int64) error
}

// TagStorage - persistence for tags and the file-tag relation
type TagStorage interface {
	AddFileTag(ctx context.Context, fileID int64, name string) (*models.Tag, error)
	RemoveFileTag(ctx context.Context, fileID int64, name string) error
	TagsForFile(ctx context.Context, fileID int64) ([]*models.Tag, error)
	ListTags(ctx context.Context) ([]*models.Tag, error)
	DeleteUnusedTags(ctx context.Context) (int, error)
	DeleteFileTags(ctx context.Context, fileIDs []int64) error
}

// DecisionStorage - append-only audit trail of review actions
type DecisionStorage interface {
	RecordDecision(ctx context.Context, decision *models.UserDecision) error
	ListDecisions(ctx context.Context, fileID int64, limit int) ([]*models.UserDecision, error)
	DeleteDecisionsForFiles(ctx context.Context, fileIDs []int64) error
}

// Well-known settings keys.
const (
	SettingOutputDir       = "output_dir"
	SettingTimezone        = "timezone"
	SettingWorkerHeartbeat = "worker_heartbeat" // RFC 3339, written by the worker loop
)

// SettingsStorage - key/value settings that survive restarts
type SettingsStorage interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// StorageManager aggregates the entity stores backed by a single database
// and owns the multi-entity commit paths the scheduler depends on.
type StorageManager interface {
	Files() FileStorage
	Jobs() JobStorage
	Tags() TagStorage
	Decisions() DecisionStorage
	Settings() SettingsStorage

	// CommitExtractionBatch applies a batch of extraction results and the
	// job's progress columns in one transaction. Files whose sha256 is
	// already set are skipped; sha256 is write-once.
	CommitExtractionBatch(ctx context.Context, job *models.Job, results []*models.ExtractionResult) error

	// CommitExportBatch records output paths and job progress in one
	// transaction. Files that failed to export leave their duplicate
	// groups; a group left with one non-discarded member dissolves.
	CommitExportBatch(ctx context.Context, job *models.Job, files []*models.File) error

	// PurgeJob deletes decisions, file-tag rows, files, and the job itself
	// in foreign-key-safe order, inside one transaction.
	PurgeJob(ctx context.Context, jobID int64) error

	Close() error
}
