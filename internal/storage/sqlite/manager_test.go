package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "mediaparser.db")
	mgr, err := NewManager(arbor.NewLogger(), DefaultConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr.(*Manager)
}

func seedJob(t *testing.T, m *Manager, names ...string) (*models.Job, []*models.File) {
	t.Helper()
	ctx := context.Background()

	job := &models.Job{JobType: models.JobTypeImport}
	require.NoError(t, m.Jobs().CreateJob(ctx, job))

	files := make([]*models.File, len(names))
	ids := make([]int64, len(names))
	for i, name := range names {
		files[i] = &models.File{
			OriginalFilename: name,
			OriginalPath:     "/media/" + name,
			StoragePath:      "/storage/" + name,
		}
	}
	require.NoError(t, m.Files().CreateFiles(ctx, files))
	for i, f := range files {
		require.NotZero(t, f.ID)
		ids[i] = f.ID
	}
	require.NoError(t, m.Files().AttachFilesToJob(ctx, job.ID, ids))

	job.ProgressTotal = len(files)
	require.NoError(t, m.Jobs().UpdateJob(ctx, job))
	return job, files
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mediaparser.db")
	logger := arbor.NewLogger()

	first, err := NewManager(logger, DefaultConfig(dbPath))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewManager(logger, DefaultConfig(dbPath))
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFileRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, files := seedJob(t, m, "IMG_0001.jpg")
	f := files[0]

	detected := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	sha := "aa11"
	f.SHA256 = &sha
	f.DetectedTimestamp = &detected
	f.TimestampSource = models.SourceDateTimeOriginal
	f.Confidence = models.ConfidenceHigh
	f.TimestampCandidates = []models.TimestampCandidate{
		{Timestamp: detected, Source: models.SourceDateTimeOriginal},
	}
	require.NoError(t, m.Files().UpdateFile(ctx, f))

	got, err := m.Files().GetFile(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SHA256)
	assert.Equal(t, "aa11", *got.SHA256)
	require.NotNil(t, got.DetectedTimestamp)
	assert.True(t, got.DetectedTimestamp.Equal(detected))
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	require.Len(t, got.TimestampCandidates, 1)
	assert.Equal(t, models.SourceDateTimeOriginal, got.TimestampCandidates[0].Source)
}

func TestGetFile_NotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Files().GetFile(context.Background(), 12345)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestJobFilesOrderedByName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job, _ := seedJob(t, m, "c.jpg", "a.jpg", "b.jpg")

	files, err := m.Files().GetJobFiles(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.jpg", files[0].OriginalFilename)
	assert.Equal(t, "b.jpg", files[1].OriginalFilename)
	assert.Equal(t, "c.jpg", files[2].OriginalFilename)
}

func TestCommitExtractionBatch_SHA256IsWriteOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job, files := seedJob(t, m, "IMG_0001.jpg")
	f := files[0]

	job.ProgressCurrent = 1
	first := &models.ExtractionResult{
		FileID:    f.ID,
		Status:    models.ExtractionSuccess,
		SizeBytes: 100,
		SHA256:    "original-hash",
		MimeType:  "image/jpeg",
	}
	require.NoError(t, m.CommitExtractionBatch(ctx, job, []*models.ExtractionResult{first}))

	// A second extraction must not overwrite the hash
	second := &models.ExtractionResult{
		FileID:    f.ID,
		Status:    models.ExtractionSuccess,
		SizeBytes: 999,
		SHA256:    "different-hash",
		MimeType:  "image/png",
	}
	require.NoError(t, m.CommitExtractionBatch(ctx, job, []*models.ExtractionResult{second}))

	got, err := m.Files().GetFile(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SHA256)
	assert.Equal(t, "original-hash", *got.SHA256)
	assert.Equal(t, int64(100), got.SizeBytes)

	gotJob, err := m.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotJob.ProgressCurrent)
}

func TestCommitExtractionBatch_ErrorKeepsFilePending(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job, files := seedJob(t, m, "broken.jpg")

	result := &models.ExtractionResult{
		FileID:       files[0].ID,
		Status:       models.ExtractionError,
		ErrorMessage: "hashing failed",
	}
	require.NoError(t, m.CommitExtractionBatch(ctx, job, []*models.ExtractionResult{result}))

	got, err := m.Files().GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Nil(t, got.SHA256) // still pending for a future resume
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, "hashing failed", *got.ProcessingError)
}

func TestListFiles_Modes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job, files := seedJob(t, m, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	now := time.Now().UTC()
	group := "deadbeef00000000"
	high := models.ConfidenceHigh

	files[0].ReviewedAt = &now // reviewed
	files[1].Discarded = true  // discarded
	errMsg := "corrupt"
	files[2].ProcessingError = &errMsg // failed
	files[3].ExactGroupID = &group     // duplicate
	files[3].ExactGroupConfidence = &high
	require.NoError(t, m.Files().UpdateFiles(ctx, files))

	result, err := m.Files().ListFiles(ctx, job.ID, &interfaces.FileListOptions{Mode: interfaces.ModeDiscarded})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "b.jpg", result.Files[0].OriginalFilename)
	assert.Equal(t, 1, result.Total)

	assert.Equal(t, 1, result.ModeTotals[interfaces.ModeReviewed])
	assert.Equal(t, 1, result.ModeTotals[interfaces.ModeDiscarded])
	assert.Equal(t, 1, result.ModeTotals[interfaces.ModeFailed])
	assert.Equal(t, 1, result.ModeTotals[interfaces.ModeDuplicates])
	assert.Equal(t, 4, result.ModeTotals[interfaces.ModeAll])

	dupes, err := m.Files().ListFiles(ctx, job.ID, &interfaces.FileListOptions{Mode: interfaces.ModeDuplicates})
	require.NoError(t, err)
	require.Len(t, dupes.Files, 1)
	assert.Equal(t, "d.jpg", dupes.Files[0].OriginalFilename)
}

func TestListFiles_UnknownModeRejected(t *testing.T) {
	m := newTestManager(t)

	job, _ := seedJob(t, m, "a.jpg")
	_, err := m.Files().ListFiles(context.Background(), job.ID, &interfaces.FileListOptions{Mode: "bogus"})
	assert.Error(t, err)
}

func TestJobStatusLifecycleTimestamps(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobTypeImport}
	require.NoError(t, m.Jobs().CreateJob(ctx, job))
	assert.Equal(t, models.JobStatusPending, job.Status)

	require.NoError(t, m.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
	running, err := m.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, running.StartedAt)
	assert.Nil(t, running.CompletedAt)

	require.NoError(t, m.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))
	done, err := m.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	status, err := m.Jobs().GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status)
}

func TestGetCurrentJob(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Jobs().GetCurrentJob(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	job := &models.Job{JobType: models.JobTypeImport}
	require.NoError(t, m.Jobs().CreateJob(ctx, job))

	current, err := m.Jobs().GetCurrentJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, current.ID)

	require.NoError(t, m.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
	require.NoError(t, m.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusCancelled))

	_, err = m.Jobs().GetCurrentJob(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestTagUsageCounts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, files := seedJob(t, m, "a.jpg", "b.jpg")

	tag, err := m.Tags().AddFileTag(ctx, files[0].ID, "  Holiday ")
	require.NoError(t, err)
	assert.Equal(t, "holiday", tag.Name)
	assert.Equal(t, 1, tag.UsageCount)

	// same tag on a second file bumps usage; re-tagging does not
	tag, err = m.Tags().AddFileTag(ctx, files[1].ID, "holiday")
	require.NoError(t, err)
	assert.Equal(t, 2, tag.UsageCount)

	tag, err = m.Tags().AddFileTag(ctx, files[1].ID, "holiday")
	require.NoError(t, err)
	assert.Equal(t, 2, tag.UsageCount)

	require.NoError(t, m.Tags().RemoveFileTag(ctx, files[0].ID, "holiday"))
	tags, err := m.Tags().ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 1, tags[0].UsageCount)

	require.NoError(t, m.Tags().RemoveFileTag(ctx, files[1].ID, "holiday"))
	n, err := m.Tags().DeleteUnusedTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSettingsUpsert(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Settings().GetSetting(ctx, "output_dir")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, m.Settings().SetSetting(ctx, "output_dir", "/exports"))
	require.NoError(t, m.Settings().SetSetting(ctx, "output_dir", "/exports/v2"))

	got, err := m.Settings().GetSetting(ctx, "output_dir")
	require.NoError(t, err)
	assert.Equal(t, "/exports/v2", got)

	all, err := m.Settings().AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"output_dir": "/exports/v2"}, all)
}

func TestPurgeJob(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job, files := seedJob(t, m, "a.jpg", "b.jpg")

	_, err := m.Tags().AddFileTag(ctx, files[0].ID, "keep")
	require.NoError(t, err)
	require.NoError(t, m.Decisions().RecordDecision(ctx, &models.UserDecision{
		FileID:       files[0].ID,
		DecisionType: models.DecisionDiscard,
	}))

	require.NoError(t, m.PurgeJob(ctx, job.ID))

	_, err = m.Files().GetFile(ctx, files[0].ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = m.Jobs().GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	tags, err := m.Tags().ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestPurgeJob_SharedFilesSurvive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	importJob, files := seedJob(t, m, "shared.jpg")

	exportJob := &models.Job{JobType: models.JobTypeExport}
	require.NoError(t, m.Jobs().CreateJob(ctx, exportJob))
	require.NoError(t, m.Files().AttachFilesToJob(ctx, exportJob.ID, []int64{files[0].ID}))

	require.NoError(t, m.PurgeJob(ctx, exportJob.ID))

	// the file still belongs to the import job
	got, err := m.Files().GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "shared.jpg", got.OriginalFilename)

	jobIDs, err := m.Files().JobIDsForFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{importJob.ID}, jobIDs)
}
