// -----------------------------------------------------------------------
// Ingest Service - Creates import and export jobs and owns finalize
// -----------------------------------------------------------------------

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// mediaExtensions are the file types collected by a server-path import.
var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".heic": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
}

// Validation errors surfaced as 4xx.
var (
	ErrNoFiles              = errors.New("no files to import")
	ErrPathNotDirectory     = errors.New("path is not a directory")
	ErrUnresolvedDuplicates = errors.New("job has unresolved duplicate groups")
	ErrJobNotFinished       = errors.New("job has not finished processing")
)

// Service creates jobs and enqueues them for the worker process.
type Service struct {
	store      interfaces.StorageManager
	queue      interfaces.QueueManager
	uploadsDir string
	thumbsDir  string
	logger     arbor.ILogger
}

// NewService creates the ingest service.
func NewService(store interfaces.StorageManager, queue interfaces.QueueManager, uploadsDir, thumbsDir string, logger arbor.ILogger) *Service {
	return &Service{
		store:      store,
		queue:      queue,
		uploadsDir: uploadsDir,
		thumbsDir:  thumbsDir,
		logger:     logger,
	}
}

// ImportUpload saves browser-uploaded files into the job's working
// directory and enqueues an import job. originalMtimes optionally carries
// the client-side modification times (ms epoch, one per file, zero to
// skip) which are restored onto the working copies so filesystem dates
// survive the upload.
func (s *Service) ImportUpload(ctx context.Context, uploads []*multipart.FileHeader, originalMtimes []int64) (*models.Job, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}

	job := &models.Job{JobType: models.JobTypeImport, Status: models.JobStatusPending, ProgressTotal: len(uploads)}
	if err := s.store.Jobs().CreateJob(ctx, job); err != nil {
		return nil, err
	}

	jobDir := filepath.Join(s.uploadsDir, fmt.Sprintf("job_%d", job.ID))
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	files := make([]*models.File, 0, len(uploads))
	for i, upload := range uploads {
		name := filepath.Base(upload.Filename)
		target := filepath.Join(jobDir, fmt.Sprintf("%03d_%s", i, name))

		if err := saveUpload(upload, target); err != nil {
			return nil, fmt.Errorf("failed to save upload %s: %w", name, err)
		}

		if i < len(originalMtimes) && originalMtimes[i] > 0 {
			mtime := time.UnixMilli(originalMtimes[i])
			if err := os.Chtimes(target, time.Now(), mtime); err != nil {
				s.logger.Warn().Err(err).Str("file", name).Msg("Failed to restore upload mtime")
			}
		}

		files = append(files, &models.File{
			OriginalFilename: name,
			OriginalPath:     upload.Filename,
			StoragePath:      target,
			SizeBytes:        upload.Size,
		})
	}

	return job, s.attachAndEnqueue(ctx, job, files)
}

// ImportPath recursively collects media files under an absolute
// server-side directory and enqueues an import job. Files are processed
// in place; no working copies are made.
func (s *Service) ImportPath(ctx context.Context, root string) (*models.Job, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("path unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, ErrPathNotDirectory
	}

	var files []*models.File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, &models.File{
			OriginalFilename: d.Name(),
			OriginalPath:     path,
			StoragePath:      path,
			SizeBytes:        fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	sort.Slice(files, func(i, j int) bool { return files[i].OriginalPath < files[j].OriginalPath })

	job := &models.Job{JobType: models.JobTypeImport, Status: models.JobStatusPending, ProgressTotal: len(files)}
	if err := s.store.Jobs().CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, s.attachAndEnqueue(ctx, job, files)
}

// attachAndEnqueue persists the file rows, links them to the job, and
// posts the job on the task queue.
func (s *Service) attachAndEnqueue(ctx context.Context, job *models.Job, files []*models.File) error {
	if err := s.store.Files().CreateFiles(ctx, files); err != nil {
		return err
	}

	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	if err := s.store.Files().AttachFilesToJob(ctx, job.ID, ids); err != nil {
		return err
	}

	job.ProgressTotal = len(files)
	if err := s.store.Jobs().UpdateJob(ctx, job); err != nil {
		return err
	}

	s.logger.Info().
		Int64("job_id", job.ID).
		Int("files", len(files)).
		Msg("Import job created")
	return s.queue.Enqueue(ctx, &models.QueueMessage{JobID: job.ID, JobType: models.JobTypeImport})
}

// CreateExport creates an export job over the same files as the given
// import job. Unless force is set, unresolved exact duplicate groups
// block the export.
func (s *Service) CreateExport(ctx context.Context, importJobID int64, force bool) (*models.Job, error) {
	source, err := s.store.Jobs().GetJob(ctx, importJobID)
	if err != nil {
		return nil, err
	}
	if !source.Status.IsTerminal() || source.Status == models.JobStatusFailed {
		return nil, ErrJobNotFinished
	}

	files, err := s.store.Files().GetJobFiles(ctx, importJobID)
	if err != nil {
		return nil, err
	}

	if !force {
		unresolved := make(map[string]int)
		for _, f := range files {
			if !f.Discarded && f.ExactGroupID != nil {
				unresolved[*f.ExactGroupID]++
			}
		}
		for _, members := range unresolved {
			if members >= 2 {
				return nil, ErrUnresolvedDuplicates
			}
		}
	}

	eligible := 0
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
		if !f.Discarded && f.ProcessingError == nil {
			eligible++
		}
	}
	if eligible == 0 {
		return nil, ErrNoFiles
	}

	job := &models.Job{JobType: models.JobTypeExport, Status: models.JobStatusPending, ProgressTotal: eligible}
	if err := s.store.Jobs().CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.store.Files().AttachFilesToJob(ctx, job.ID, ids); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("job_id", job.ID).
		Int64("import_job_id", importJobID).
		Int("files", eligible).
		Msg("Export job created")
	return job, s.queue.Enqueue(ctx, &models.QueueMessage{JobID: job.ID, JobType: models.JobTypeExport})
}

// FinalizeOptions selects which working data the finalize pass removes.
// The exported output tree is never touched.
type FinalizeOptions struct {
	CleanWorkingFiles bool // delete thumbnails
	DeleteSources     bool // delete uploaded working copies
	ClearDatabase     bool // purge file/job/decision/tag rows
}

// Finalize ends a job's lifecycle. Disk cleanup happens before the
// database purge so a failure leaves the rows (and another attempt)
// intact.
func (s *Service) Finalize(ctx context.Context, jobID int64, opts FinalizeOptions) error {
	job, err := s.store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	files, err := s.store.Files().GetJobFiles(ctx, jobID)
	if err != nil {
		return err
	}

	if opts.CleanWorkingFiles {
		for _, f := range files {
			if f.ThumbnailPath == nil {
				continue
			}
			if err := os.Remove(*f.ThumbnailPath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn().Err(err).Str("path", *f.ThumbnailPath).Msg("Failed to remove thumbnail")
			}
		}
	}

	if opts.DeleteSources {
		jobDir := filepath.Join(s.uploadsDir, fmt.Sprintf("job_%d", job.ID))
		if err := os.RemoveAll(jobDir); err != nil {
			return fmt.Errorf("failed to remove upload directory: %w", err)
		}
	}

	if opts.ClearDatabase {
		if err := s.store.PurgeJob(ctx, jobID); err != nil {
			return err
		}
	}

	s.logger.Info().
		Int64("job_id", jobID).
		Bool("clean_working_files", opts.CleanWorkingFiles).
		Bool("delete_sources", opts.DeleteSources).
		Bool("clear_database", opts.ClearDatabase).
		Msg("Job finalized")
	return nil
}

// saveUpload streams one multipart part to disk.
func saveUpload(upload *multipart.FileHeader, target string) error {
	src, err := upload.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return err
	}
	return dst.Close()
}
