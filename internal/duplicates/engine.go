// -----------------------------------------------------------------------
// Duplicate Engine - Exact and similar grouping over a job's files
// -----------------------------------------------------------------------

package duplicates

import (
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/common"
	"github.com/ternarybob/mediaparser/internal/models"
)

const (
	// Hamming distance bands
	exactDistanceMax   = 5
	similarDistanceMax = 16

	// Mean-distance confidence cutoffs
	exactHighMean     = 1.0
	exactMediumMean   = 3.0
	similarHighMean   = 8.0
	similarMediumMean = 13.0

	// Relationship classification windows
	burstWindow    = 2 * time.Second
	panoramaWindow = 30 * time.Second
)

// Engine clusters a job's files into exact and similar duplicate groups.
// It mutates the files in place; the caller persists them.
type Engine struct {
	logger arbor.ILogger
}

// NewEngine creates a duplicate detection engine.
func NewEngine(logger arbor.ILogger) *Engine {
	return &Engine{logger: logger}
}

// Detect runs exact and perceptual grouping over the given files and
// finalizes group confidence and relationship type. Discarded and failed
// files never participate. Returns the number of exact and similar groups.
func (e *Engine) Detect(files []*models.File) (int, int) {
	eligible := make([]*models.File, 0, len(files))
	for _, f := range files {
		if f.Discarded || f.ProcessingError != nil {
			continue
		}
		eligible = append(eligible, f)
	}

	e.groupBySHA(eligible)
	e.groupByPerceptualHash(eligible)

	exactGroups := e.finalizeExactGroups(eligible)
	similarGroups := e.finalizeSimilarGroups(eligible)

	e.logger.Info().
		Int("files", len(eligible)).
		Int("exact_groups", exactGroups).
		Int("similar_groups", similarGroups).
		Msg("Duplicate detection complete")
	return exactGroups, similarGroups
}

// groupBySHA assigns one exact group per sha256 class with two or more
// members.
func (e *Engine) groupBySHA(files []*models.File) {
	bySHA := make(map[string][]*models.File)
	for _, f := range files {
		if f.SHA256 == nil {
			continue
		}
		bySHA[*f.SHA256] = append(bySHA[*f.SHA256], f)
	}

	for _, members := range bySHA {
		if len(members) < 2 {
			continue
		}
		groupID := common.NewGroupID()
		for _, f := range members {
			f.ExactGroupID = &groupID
		}
	}
}

// groupByPerceptualHash compares every pair of hashed files and merges
// them into exact or similar groups by distance band.
func (e *Engine) groupByPerceptualHash(files []*models.File) {
	hashed := make([]*models.File, 0, len(files))
	for _, f := range files {
		if f.PerceptualHash != nil {
			hashed = append(hashed, f)
		}
	}

	for i := 0; i < len(hashed); i++ {
		for j := i + 1; j < len(hashed); j++ {
			a, b := hashed[i], hashed[j]
			distance := HammingDistance(*a.PerceptualHash, *b.PerceptualHash)
			switch {
			case distance <= exactDistanceMax:
				mergeGroups(files, a, b, exactGroupID, setExactGroupID)
			case distance <= similarDistanceMax:
				mergeGroups(files, a, b, similarGroupID, setSimilarGroupID)
			}
		}
	}
}

// Group id accessors let exact and similar merging share one union pass.
func exactGroupID(f *models.File) *string          { return f.ExactGroupID }
func setExactGroupID(f *models.File, id *string)   { f.ExactGroupID = id }
func similarGroupID(f *models.File) *string        { return f.SimilarGroupID }
func setSimilarGroupID(f *models.File, id *string) { f.SimilarGroupID = id }

// mergeGroups unions a and b under one group identifier. When both sides
// already belong to distinct groups, every member of b's group adopts
// a's identifier.
func mergeGroups(files []*models.File, a, b *models.File, get func(*models.File) *string, set func(*models.File, *string)) {
	aID, bID := get(a), get(b)

	switch {
	case aID == nil && bID == nil:
		id := common.NewGroupID()
		set(a, &id)
		set(b, &id)
	case aID != nil && bID == nil:
		set(b, aID)
	case aID == nil && bID != nil:
		set(a, bID)
	case *aID != *bID:
		old := *bID
		for _, f := range files {
			if id := get(f); id != nil && *id == old {
				set(f, aID)
			}
		}
	}
}

// finalizeExactGroups computes per-group confidence from the mean of the
// defined intra-group perceptual distances. A pure checksum group with no
// comparable hashes is HIGH by definition.
func (e *Engine) finalizeExactGroups(files []*models.File) int {
	groups := collectGroups(files, exactGroupID)
	for _, members := range groups {
		mean, defined := meanDistance(members)
		confidence := models.ConfidenceHigh
		if defined {
			switch {
			case mean <= exactHighMean:
				confidence = models.ConfidenceHigh
			case mean <= exactMediumMean:
				confidence = models.ConfidenceMedium
			default:
				confidence = models.ConfidenceLow
			}
		}
		for _, f := range members {
			c := confidence
			f.ExactGroupConfidence = &c
		}
	}
	return len(groups)
}

// finalizeSimilarGroups computes confidence and the plurality relationship
// type for each similar group.
func (e *Engine) finalizeSimilarGroups(files []*models.File) int {
	groups := collectGroups(files, similarGroupID)
	for _, members := range groups {
		mean, defined := meanDistance(members)
		confidence := models.ConfidenceLow
		if defined {
			switch {
			case mean <= similarHighMean:
				confidence = models.ConfidenceHigh
			case mean <= similarMediumMean:
				confidence = models.ConfidenceMedium
			}
		}

		groupType := classifyGroup(members)
		for _, f := range members {
			c := confidence
			gt := groupType
			f.SimilarGroupConfidence = &c
			f.SimilarGroupType = &gt
		}
	}
	return len(groups)
}

// collectGroups builds id -> members over non-discarded files.
func collectGroups(files []*models.File, get func(*models.File) *string) map[string][]*models.File {
	groups := make(map[string][]*models.File)
	for _, f := range files {
		if id := get(f); id != nil {
			groups[*id] = append(groups[*id], f)
		}
	}
	return groups
}

// meanDistance averages the defined pairwise perceptual distances among
// the members. The second return is false when no pair is comparable.
func meanDistance(members []*models.File) (float64, bool) {
	var sum, count int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if members[i].PerceptualHash == nil || members[j].PerceptualHash == nil {
				continue
			}
			d := HammingDistance(*members[i].PerceptualHash, *members[j].PerceptualHash)
			if d == IncomparableDistance {
				continue
			}
			sum += d
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return float64(sum) / float64(count), true
}

// classifyGroup determines the relationship type as the plurality of the
// per-pair classification. Ties resolve to SIMILAR.
func classifyGroup(members []*models.File) models.GroupType {
	counts := make(map[models.GroupType]int)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			counts[classifyPair(members[i], members[j])]++
		}
	}

	best := models.GroupTypeSimilar
	bestCount := counts[models.GroupTypeSimilar]
	for _, gt := range []models.GroupType{models.GroupTypeBurst, models.GroupTypePanorama} {
		if counts[gt] > bestCount {
			best = gt
			bestCount = counts[gt]
		}
	}
	return best
}

// classifyPair grades one pair by the gap between their effective
// timestamps.
func classifyPair(a, b *models.File) models.GroupType {
	at, bt := a.EffectiveTimestamp(), b.EffectiveTimestamp()
	if at == nil || bt == nil {
		return models.GroupTypeSimilar
	}
	delta := at.Sub(*bt)
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta < burstWindow:
		return models.GroupTypeBurst
	case delta < panoramaWindow:
		return models.GroupTypePanorama
	}
	return models.GroupTypeSimilar
}

// Megapixels computes the declared resolution of a file, zero when
// dimensions are unknown.
func Megapixels(f *models.File) float64 {
	if f.Width == nil || f.Height == nil {
		return 0
	}
	return float64(*f.Width) * float64(*f.Height) / 1e6
}

// RecommendKeep picks the highest quality member of a group: most
// megapixels, then largest file, then the oldest record.
func RecommendKeep(members []*models.File) *models.File {
	if len(members) == 0 {
		return nil
	}
	best := members[0]
	for _, f := range members[1:] {
		switch {
		case Megapixels(f) > Megapixels(best):
			best = f
		case Megapixels(f) == Megapixels(best) && f.SizeBytes > best.SizeBytes:
			best = f
		case Megapixels(f) == Megapixels(best) && f.SizeBytes == best.SizeBytes && f.ID < best.ID:
			best = f
		}
	}
	return best
}
