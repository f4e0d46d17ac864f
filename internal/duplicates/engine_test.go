package duplicates

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// hashWithBits flips the given low bits of a base hash so the Hamming
// distance from the base is exactly len(bits).
func hashWithBits(bits ...uint) string {
	var v uint64 = 0xa5a5a5a5a5a5a5a5
	for _, b := range bits {
		v ^= 1 << b
	}
	return fmt.Sprintf("%016x", v)
}

func testFile(id int64, sha, phash string) *models.File {
	f := &models.File{ID: id, OriginalFilename: fmt.Sprintf("f%03d.jpg", id)}
	if sha != "" {
		f.SHA256 = &sha
	}
	if phash != "" {
		f.PerceptualHash = &phash
	}
	return f
}

func TestHammingDistance(t *testing.T) {
	base := hashWithBits()
	assert.Equal(t, 0, HammingDistance(base, base))
	assert.Equal(t, 1, HammingDistance(base, hashWithBits(0)))
	assert.Equal(t, 5, HammingDistance(base, hashWithBits(0, 1, 2, 3, 4)))
	assert.Equal(t, 17, HammingDistance(base, hashWithBits(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16)))

	assert.Equal(t, IncomparableDistance, HammingDistance("", base))
	assert.Equal(t, IncomparableDistance, HammingDistance(base, "not-a-hash-here"))
	assert.Equal(t, IncomparableDistance, HammingDistance("zzzzzzzzzzzzzzzz", base))
}

func TestShaPartitionFormsExactGroup(t *testing.T) {
	a := testFile(1, "sha-a", "")
	b := testFile(2, "sha-a", "")
	c := testFile(3, "sha-b", "")

	exact, similar := NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b, c})

	assert.Equal(t, 1, exact)
	assert.Equal(t, 0, similar)
	require.NotNil(t, a.ExactGroupID)
	require.NotNil(t, b.ExactGroupID)
	assert.Equal(t, *a.ExactGroupID, *b.ExactGroupID)
	assert.Nil(t, c.ExactGroupID)

	// Pure checksum group with no comparable hashes is HIGH.
	require.NotNil(t, a.ExactGroupConfidence)
	assert.Equal(t, models.ConfidenceHigh, *a.ExactGroupConfidence)
}

func TestDistanceBandBoundaries(t *testing.T) {
	base := hashWithBits()

	tests := []struct {
		name     string
		distance int
		other    string
		exact    bool
		similar  bool
	}{
		{"distance 5 is exact", 5, hashWithBits(0, 1, 2, 3, 4), true, false},
		{"distance 6 is similar", 6, hashWithBits(0, 1, 2, 3, 4, 5), false, true},
		{"distance 16 is similar", 16, hashWithBits(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15), false, true},
		{"distance 17 is unrelated", 17, hashWithBits(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testFile(1, "sha-a", base)
			b := testFile(2, "sha-b", tt.other)
			require.Equal(t, tt.distance, HammingDistance(base, tt.other))

			NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b})

			assert.Equal(t, tt.exact, a.ExactGroupID != nil)
			assert.Equal(t, tt.similar, a.SimilarGroupID != nil)
		})
	}
}

func TestMergeAdoptsExistingGroupID(t *testing.T) {
	// a/b are byte-identical, c is perceptually near a. All three must
	// end in one exact group.
	near := hashWithBits(0, 1)
	a := testFile(1, "sha-a", hashWithBits())
	b := testFile(2, "sha-a", hashWithBits())
	c := testFile(3, "sha-c", near)

	exact, _ := NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b, c})

	assert.Equal(t, 1, exact)
	require.NotNil(t, c.ExactGroupID)
	assert.Equal(t, *a.ExactGroupID, *c.ExactGroupID)
}

func TestExactGroupConfidenceFromMeanDistance(t *testing.T) {
	// Distances a-b=0, a-c=4, b-c=4: mean 8/3 ≈ 2.67 → MEDIUM.
	a := testFile(1, "sha-a", hashWithBits())
	b := testFile(2, "sha-a", hashWithBits())
	c := testFile(3, "sha-c", hashWithBits(0, 1, 2, 3))

	NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b, c})

	require.NotNil(t, a.ExactGroupConfidence)
	assert.Equal(t, models.ConfidenceMedium, *a.ExactGroupConfidence)
}

func TestBurstClassification(t *testing.T) {
	// Pairwise distances 7, 8, 9 with timestamps one second apart.
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	a := testFile(1, "sha-a", hashWithBits())
	b := testFile(2, "sha-b", hashWithBits(0, 1, 2, 3, 4, 5, 6))
	c := testFile(3, "sha-c", hashWithBits(4, 5, 6, 7, 8, 9, 10, 11))
	for i, f := range []*models.File{a, b, c} {
		ts := base.Add(time.Duration(i) * time.Second)
		f.DetectedTimestamp = &ts
	}
	require.Equal(t, 7, HammingDistance(*a.PerceptualHash, *b.PerceptualHash))
	require.Equal(t, 8, HammingDistance(*a.PerceptualHash, *c.PerceptualHash))
	require.Equal(t, 9, HammingDistance(*b.PerceptualHash, *c.PerceptualHash))

	exact, similar := NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b, c})

	assert.Equal(t, 0, exact)
	assert.Equal(t, 1, similar)
	require.NotNil(t, a.SimilarGroupType)
	assert.Equal(t, models.GroupTypeBurst, *a.SimilarGroupType)

	// Mean (7+8+9)/3 = 8 is still inside the HIGH band.
	require.NotNil(t, a.SimilarGroupConfidence)
	assert.Equal(t, models.ConfidenceHigh, *a.SimilarGroupConfidence)
}

func TestPanoramaAndTieResolution(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	a := testFile(1, "sha-a", hashWithBits())
	b := testFile(2, "sha-b", hashWithBits(0, 1, 2, 3, 4, 5, 6))
	ts1, ts2 := base, base.Add(10*time.Second)
	a.DetectedTimestamp = &ts1
	b.DetectedTimestamp = &ts2

	NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b})

	require.NotNil(t, a.SimilarGroupType)
	assert.Equal(t, models.GroupTypePanorama, *a.SimilarGroupType)
}

func TestMissingTimestampsClassifySimilar(t *testing.T) {
	a := testFile(1, "sha-a", hashWithBits())
	b := testFile(2, "sha-b", hashWithBits(0, 1, 2, 3, 4, 5, 6))

	NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b})

	require.NotNil(t, a.SimilarGroupType)
	assert.Equal(t, models.GroupTypeSimilar, *a.SimilarGroupType)
}

func TestDiscardedAndFailedFilesExcluded(t *testing.T) {
	a := testFile(1, "sha-a", "")
	b := testFile(2, "sha-a", "")
	b.Discarded = true
	c := testFile(3, "sha-a", "")
	c.ProcessingError = strPtr("hashing failed")

	exact, _ := NewEngine(arbor.NewLogger()).Detect([]*models.File{a, b, c})

	assert.Equal(t, 0, exact)
	assert.Nil(t, a.ExactGroupID)
	assert.Nil(t, b.ExactGroupID)
	assert.Nil(t, c.ExactGroupID)
}

func TestRecommendKeep(t *testing.T) {
	small := testFile(1, "", "")
	small.Width, small.Height = intPtr(1920), intPtr(1080)
	small.SizeBytes = 900_000

	large := testFile(2, "", "")
	large.Width, large.Height = intPtr(4000), intPtr(3000)
	large.SizeBytes = 4_200_000

	assert.Equal(t, large, RecommendKeep([]*models.File{small, large}))

	// Same resolution: bigger file wins.
	bigger := testFile(3, "", "")
	bigger.Width, bigger.Height = intPtr(1920), intPtr(1080)
	bigger.SizeBytes = 1_200_000
	assert.Equal(t, bigger, RecommendKeep([]*models.File{small, bigger}))

	// No dimensions at all: size decides.
	x := testFile(4, "", "")
	x.SizeBytes = 100
	y := testFile(5, "", "")
	y.SizeBytes = 200
	assert.Equal(t, y, RecommendKeep([]*models.File{x, y}))

	assert.Nil(t, RecommendKeep(nil))
}
