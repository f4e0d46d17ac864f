// -----------------------------------------------------------------------
// Confidence Engine - Scores timestamp candidates by source reliability
// and inter-source agreement
// -----------------------------------------------------------------------

package confidence

import (
	"sort"
	"time"

	"github.com/ternarybob/mediaparser/internal/models"
)

// SourceWeights ranks timestamp sources by reliability. Unknown sources
// weigh zero.
var SourceWeights = map[string]int{
	models.SourceDateTimeOriginal: 10,
	models.SourceCreateDate:       8,
	models.SourceQuickTimeCreate:  7,
	models.SourceModifyDate:       5,
	models.SourceFilenameDatetime: 3,
	models.SourceFilenameDate:     2,
	models.SourceFileModify:       1,
}

// AgreementTolerance is the window within which two candidates are treated
// as recording the same moment.
const AgreementTolerance = 30 * time.Second

// optionMinScore is the floor for extra buckets offered to the reviewer.
const optionMinScore = 3

// Engine scores candidate sets. Immutable, safe for concurrent use.
type Engine struct {
	minYear int
}

// NewEngine builds an engine that ignores candidates before minYear.
func NewEngine(minYear int) *Engine {
	if minYear <= 0 {
		minYear = 2000
	}
	return &Engine{minYear: minYear}
}

// Score picks the detected timestamp and grades it.
//
// The earliest valid instant wins, with a lexicographic source tie-break
// for determinism. Confidence combines the chosen source's weight w with
// the agreement cluster size k:
//
//	HIGH    w >= 8 and k > 1
//	MEDIUM  w >= 5 or  k > 1
//	LOW     otherwise
//	NONE    no candidate survived the year filter
func (e *Engine) Score(candidates []models.TimestampCandidate) (*models.TimestampCandidate, models.ConfidenceLevel) {
	valid := e.validSorted(candidates)
	if len(valid) == 0 {
		return nil, models.ConfidenceNone
	}

	chosen := valid[0]
	weight := SourceWeights[chosen.Source]

	agreements := 0
	for _, c := range valid {
		if absDuration(c.Timestamp.Sub(chosen.Timestamp)) <= AgreementTolerance {
			agreements++
		}
	}

	var level models.ConfidenceLevel
	switch {
	case weight >= 8 && agreements > 1:
		level = models.ConfidenceHigh
	case weight >= 5 || agreements > 1:
		level = models.ConfidenceMedium
	default:
		level = models.ConfidenceLow
	}

	return &models.TimestampCandidate{Timestamp: chosen.Timestamp, Source: chosen.Source}, level
}

// Options produces the review UI's curated alternatives: candidates merge
// into agreement buckets, each bucket scored by the sum of its source
// weights. The list holds the earliest bucket (marked selected), the
// top-scoring bucket if different, and up to two further buckets scoring
// at least optionMinScore.
func (e *Engine) Options(candidates []models.TimestampCandidate) []models.TimestampOption {
	valid := e.validSorted(candidates)
	if len(valid) == 0 {
		return nil
	}

	var buckets []*bucket
	for _, c := range valid {
		last := (*bucket)(nil)
		if len(buckets) > 0 {
			last = buckets[len(buckets)-1]
		}
		if last != nil && c.Timestamp.Sub(last.instant) <= AgreementTolerance {
			last.add(c)
			continue
		}
		b := &bucket{instant: c.Timestamp}
		b.add(c)
		buckets = append(buckets, b)
	}

	for _, b := range buckets {
		b.grade()
	}

	out := []models.TimestampOption{buckets[0].toOption(true)}
	taken := map[*bucket]bool{buckets[0]: true}

	// Top-scoring bucket, earliest on ties.
	best := buckets[0]
	for _, b := range buckets[1:] {
		if b.score > best.score {
			best = b
		}
	}
	if !taken[best] {
		out = append(out, best.toOption(false))
		taken[best] = true
	}

	// Up to two more buckets worth showing, strongest first.
	rest := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		if !taken[b] && b.score >= optionMinScore {
			rest = append(rest, b)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].score > rest[j].score })
	for i := 0; i < len(rest) && i < 2; i++ {
		out = append(out, rest[i].toOption(false))
	}

	return out
}

// validSorted filters out pre-minYear candidates and orders the rest by
// (instant, source).
func (e *Engine) validSorted(candidates []models.TimestampCandidate) []models.TimestampCandidate {
	valid := make([]models.TimestampCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Timestamp.Year() >= e.minYear {
			valid = append(valid, c)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		if !valid[i].Timestamp.Equal(valid[j].Timestamp) {
			return valid[i].Timestamp.Before(valid[j].Timestamp)
		}
		return valid[i].Source < valid[j].Source
	})
	return valid
}

type bucket struct {
	instant time.Time // earliest member, the bucket anchor
	members []models.TimestampCandidate
	score   int
	level   models.ConfidenceLevel
}

func (b *bucket) add(c models.TimestampCandidate) {
	b.members = append(b.members, c)
	b.score += SourceWeights[c.Source]
}

// grade applies the Score rule within the bucket.
func (b *bucket) grade() {
	weight := SourceWeights[b.members[0].Source]
	k := len(b.members)
	switch {
	case weight >= 8 && k > 1:
		b.level = models.ConfidenceHigh
	case weight >= 5 || k > 1:
		b.level = models.ConfidenceMedium
	default:
		b.level = models.ConfidenceLow
	}
}

func (b *bucket) toOption(selected bool) models.TimestampOption {
	sources := make([]string, 0, len(b.members))
	for _, m := range b.members {
		sources = append(sources, m.Source)
	}
	return models.TimestampOption{
		Timestamp:  b.instant,
		Sources:    sources,
		Score:      b.score,
		Confidence: b.level,
		Selected:   selected,
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
