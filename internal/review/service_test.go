package review

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
	"github.com/ternarybob/mediaparser/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "mediaparser.db")
	store, err := sqlite.NewManager(arbor.NewLogger(), sqlite.DefaultConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store, nil, arbor.NewLogger()), store
}

func seedJob(t *testing.T, store interfaces.StorageManager, names ...string) (*models.Job, []*models.File) {
	t.Helper()
	ctx := context.Background()

	job := &models.Job{JobType: models.JobTypeImport}
	require.NoError(t, store.Jobs().CreateJob(ctx, job))

	files := make([]*models.File, len(names))
	ids := make([]int64, len(names))
	for i, name := range names {
		files[i] = &models.File{
			OriginalFilename: name,
			OriginalPath:     "/media/" + name,
			StoragePath:      "/storage/" + name,
		}
	}
	require.NoError(t, store.Files().CreateFiles(ctx, files))
	for i, f := range files {
		ids[i] = f.ID
	}
	require.NoError(t, store.Files().AttachFilesToJob(ctx, job.ID, ids))
	return job, files
}

// linkExact puts the given files into one exact group.
func linkExact(t *testing.T, store interfaces.StorageManager, groupID string, files ...*models.File) {
	t.Helper()
	high := models.ConfidenceHigh
	for _, f := range files {
		f.ExactGroupID = &groupID
		c := high
		f.ExactGroupConfidence = &c
	}
	require.NoError(t, store.Files().UpdateFiles(context.Background(), files))
}

// linkSimilar puts the given files into one similar group.
func linkSimilar(t *testing.T, store interfaces.StorageManager, groupID string, files ...*models.File) {
	t.Helper()
	medium := models.ConfidenceMedium
	groupType := models.GroupTypeSimilar
	for _, f := range files {
		f.SimilarGroupID = &groupID
		c := medium
		f.SimilarGroupConfidence = &c
		gt := groupType
		f.SimilarGroupType = &gt
	}
	require.NoError(t, store.Files().UpdateFiles(context.Background(), files))
}

func TestConfirmTimestamp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "IMG_0001.jpg")
	instant := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

	got, err := svc.ConfirmTimestamp(ctx, files[0].ID, instant, models.SourceDateTimeOriginal)
	require.NoError(t, err)
	require.NotNil(t, got.FinalTimestamp)
	assert.True(t, got.FinalTimestamp.Equal(instant))
	assert.NotNil(t, got.ReviewedAt)
	assert.Equal(t, models.SourceDateTimeOriginal, got.TimestampSource)

	decisions, err := store.Decisions().ListDecisions(ctx, files[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.DecisionTimestampOverride, decisions[0].DecisionType)
}

func TestConfirmTimestamp_DiscardedRejected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "IMG_0001.jpg")
	files[0].Discarded = true
	require.NoError(t, store.Files().UpdateFile(ctx, files[0]))

	_, err := svc.ConfirmTimestamp(ctx, files[0].ID, time.Now(), "")
	assert.ErrorIs(t, err, ErrFileDiscarded)
}

func TestUnreviewClearsConfirmation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "IMG_0001.jpg")
	_, err := svc.ConfirmTimestamp(ctx, files[0].ID, time.Now(), "")
	require.NoError(t, err)

	got, err := svc.Unreview(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Nil(t, got.FinalTimestamp)
	assert.Nil(t, got.ReviewedAt)
}

func TestDiscard_DonatesCandidatesAndDissolvesPair(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg")
	linkExact(t, store, "group-ab", files...)

	instant := time.Date(2023, 7, 1, 9, 0, 0, 0, time.UTC)
	files[0].TimestampCandidates = []models.TimestampCandidate{
		{Timestamp: instant, Source: models.SourceDateTimeOriginal},
	}
	require.NoError(t, store.Files().UpdateFile(ctx, files[0]))

	discarded, err := svc.Discard(ctx, files[0].ID)
	require.NoError(t, err)
	assert.True(t, discarded.Discarded)
	assert.Nil(t, discarded.ExactGroupID)

	// The kept sibling inherits the evidence and, as the last member
	// standing, loses its group link.
	kept, err := store.Files().GetFile(ctx, files[1].ID)
	require.NoError(t, err)
	require.Len(t, kept.TimestampCandidates, 1)
	assert.Equal(t, models.SourceDateTimeOriginal, kept.TimestampCandidates[0].Source)
	assert.Nil(t, kept.ExactGroupID)
}

func TestDiscard_GroupOfThreeSurvives(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg", "c.jpg")
	linkExact(t, store, "group-abc", files...)

	_, err := svc.Discard(ctx, files[0].ID)
	require.NoError(t, err)

	for _, id := range []int64{files[1].ID, files[2].ID} {
		f, err := store.Files().GetFile(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, f.ExactGroupID)
		assert.Equal(t, "group-abc", *f.ExactGroupID)
	}
}

func TestDiscard_Idempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg")
	_, err := svc.Discard(ctx, files[0].ID)
	require.NoError(t, err)
	_, err = svc.Discard(ctx, files[0].ID)
	require.NoError(t, err)

	decisions, err := store.Decisions().ListDecisions(ctx, files[0].ID, 10)
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestUndiscard_RelinksBySHA(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg")
	sha := "cafebabe"
	for _, f := range files {
		h := sha
		f.SHA256 = &h
	}
	require.NoError(t, store.Files().UpdateFiles(ctx, files))
	linkExact(t, store, "group-ab", files...)

	_, err := svc.Discard(ctx, files[0].ID)
	require.NoError(t, err)

	restored, err := svc.Undiscard(ctx, files[0].ID)
	require.NoError(t, err)
	assert.False(t, restored.Discarded)

	// Both files share the content hash again, so the group comes back.
	a, err := store.Files().GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	b, err := store.Files().GetFile(ctx, files[1].ID)
	require.NoError(t, err)
	require.NotNil(t, a.ExactGroupID)
	require.NotNil(t, b.ExactGroupID)
	assert.Equal(t, *a.ExactGroupID, *b.ExactGroupID)
	require.NotNil(t, a.ExactGroupConfidence)
	assert.Equal(t, models.ConfidenceHigh, *a.ExactGroupConfidence)
}

func TestKeepAllDuplicates(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg")
	linkExact(t, store, "group-ab", files...)

	require.NoError(t, svc.KeepAllDuplicates(ctx, "group-ab"))

	for _, f := range files {
		got, err := store.Files().GetFile(ctx, f.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ExactGroupID)
		assert.False(t, got.Discarded)
	}
}

func TestKeepAllDuplicates_UnknownGroup(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.KeepAllDuplicates(context.Background(), "no-such-group")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestResolveSimilarGroup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg", "c.jpg")
	linkSimilar(t, store, "sim-abc", files...)

	require.NoError(t, svc.ResolveSimilarGroup(ctx, "sim-abc", []int64{files[0].ID}))

	kept, err := store.Files().GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.False(t, kept.Discarded)
	assert.Nil(t, kept.SimilarGroupID)

	for _, id := range []int64{files[1].ID, files[2].ID} {
		f, err := store.Files().GetFile(ctx, id)
		require.NoError(t, err)
		assert.True(t, f.Discarded)
		assert.Nil(t, f.SimilarGroupID)
	}
}

func TestResolveSimilarGroup_NothingToKeep(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg")
	linkSimilar(t, store, "sim-ab", files...)

	err := svc.ResolveSimilarGroup(ctx, "sim-ab", []int64{999999})
	assert.ErrorIs(t, err, ErrNothingToKeep)
}

func TestExactGroupsPayload(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, files := seedJob(t, store, "a.jpg", "b.jpg", "c.jpg")
	files[0].SizeBytes = 100
	files[1].SizeBytes = 500 // largest wins the recommendation
	require.NoError(t, store.Files().UpdateFiles(ctx, files))
	linkExact(t, store, "group-ab", files[0], files[1])

	groups, err := svc.ExactGroups(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	group := groups[0]
	assert.Equal(t, "group-ab", group.GroupID)
	assert.Equal(t, models.ConfidenceHigh, group.Confidence)
	assert.Len(t, group.Files, 2)
	assert.Equal(t, files[1].ID, group.RecommendedID)
	require.Len(t, group.Quality, 2)
}

func TestAutoConfirmHigh(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, files := seedJob(t, store, "high.jpg", "low.jpg", "reviewed.jpg")
	detected := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	files[0].Confidence = models.ConfidenceHigh
	files[0].DetectedTimestamp = &detected
	files[1].Confidence = models.ConfidenceLow
	files[1].DetectedTimestamp = &detected
	files[2].Confidence = models.ConfidenceHigh
	files[2].DetectedTimestamp = &detected
	files[2].ReviewedAt = &now
	require.NoError(t, store.Files().UpdateFiles(ctx, files))

	confirmed, err := svc.AutoConfirmHigh(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	got, err := store.Files().GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinalTimestamp)
	assert.True(t, got.FinalTimestamp.Equal(detected))

	low, err := store.Files().GetFile(ctx, files[1].ID)
	require.NoError(t, err)
	assert.Nil(t, low.FinalTimestamp)
}

func TestBulkDiscardAndUndiscard(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg", "c.jpg")
	ids := []int64{files[0].ID, files[1].ID}

	discarded, err := svc.BulkDiscard(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, discarded)

	// Already-discarded files are skipped on a second pass.
	discarded, err = svc.BulkDiscard(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, discarded)

	restored, err := svc.BulkUndiscard(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
}

func TestBulkKeepDuplicates(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, store, "a.jpg", "b.jpg", "c.jpg")
	linkExact(t, store, "group-abc", files...)

	cleared, err := svc.BulkKeepDuplicates(ctx, []int64{files[0].ID, files[1].ID})
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	// The group fell to one member and dissolved.
	last, err := store.Files().GetFile(ctx, files[2].ID)
	require.NoError(t, err)
	assert.Nil(t, last.ExactGroupID)
}

func TestBulkReview_ConfidenceScope(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, files := seedJob(t, store, "a.jpg", "b.jpg")
	detected := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	files[0].Confidence = models.ConfidenceMedium
	files[0].DetectedTimestamp = &detected
	files[1].Confidence = models.ConfidenceLow
	files[1].DetectedTimestamp = &detected
	require.NoError(t, store.Files().UpdateFiles(ctx, files))

	confirmed, err := svc.BulkReview(ctx, &BulkReviewRequest{
		JobID:      job.ID,
		Scope:      ScopeConfidence,
		Action:     ActionConfirm,
		Confidence: models.ConfidenceMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	got, err := store.Files().GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ReviewedAt)
}

func TestBulkReview_UnknownScope(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.BulkReview(context.Background(), &BulkReviewRequest{Scope: "everything", Action: ActionConfirm})
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestAddAndRemoveTags(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, files := seedJob(t, svc.store, "a.jpg")

	tags, err := svc.AddTags(ctx, files[0].ID, []string{"Holiday", "beach"})
	require.NoError(t, err)
	require.Len(t, tags, 2)

	tags, err = svc.RemoveTag(ctx, files[0].ID, "holiday")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "beach", tags[0].Name)
}
