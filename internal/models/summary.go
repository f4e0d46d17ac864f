// -----------------------------------------------------------------------
// Summary - Aggregate counts and group payloads for the review surface
// -----------------------------------------------------------------------

package models

import "time"

// JobSummary aggregates per-mode and per-confidence counts for one job.
type JobSummary struct {
	TotalFiles      int            `json:"total_files"`
	ByMode          map[string]int `json:"by_mode"`
	ByConfidence    map[string]int `json:"by_confidence"`
	DuplicateGroups int            `json:"duplicate_groups"`
	SimilarGroups   int            `json:"similar_groups"`
	Errors          int            `json:"errors"`
}

// TimestampOption is one curated alternative offered to the reviewer. All
// candidates within the agreement tolerance collapse into a single option.
type TimestampOption struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sources    []string        `json:"sources"`
	Score      int             `json:"score"`
	Confidence ConfidenceLevel `json:"confidence"`
	Selected   bool            `json:"selected"`
}

// FileQuality is the per-member quality metric used to recommend which
// file of a group to keep. Megapixels win; size breaks ties.
type FileQuality struct {
	FileID     int64   `json:"file_id"`
	Megapixels float64 `json:"megapixels"`
	SizeBytes  int64   `json:"size_bytes"`
}

// DuplicateGroup is the API shape for one exact or similar group.
type DuplicateGroup struct {
	GroupID       string          `json:"group_id"`
	Confidence    ConfidenceLevel `json:"confidence"`
	GroupType     *GroupType      `json:"group_type,omitempty"` // similar groups only
	RecommendedID int64           `json:"recommended_id"`
	Files         []*File         `json:"files"`
	Quality       []FileQuality   `json:"quality"`
}
