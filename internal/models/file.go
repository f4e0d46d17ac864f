// -----------------------------------------------------------------------
// File - A single ingested media object
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampCandidate is one (instant, source) pair extracted from a file.
// Instants are always UTC.
type TimestampCandidate struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// File represents a media file tracked by the system. All instants are UTC;
// display conversion is the UI's problem.
type File struct {
	ID int64 `json:"id"`

	// Origin
	OriginalFilename string `json:"original_filename"`
	OriginalPath     string `json:"original_path"`
	StoragePath      string `json:"storage_path"`

	// Content
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type,omitempty"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`

	// Hashes
	SHA256         *string `json:"sha256,omitempty"`
	PerceptualHash *string `json:"perceptual_hash,omitempty"`

	// Timestamps
	DetectedTimestamp   *time.Time           `json:"detected_timestamp,omitempty"`
	TimestampSource     string               `json:"timestamp_source,omitempty"`
	FinalTimestamp      *time.Time           `json:"final_timestamp,omitempty"`
	TimestampCandidates []TimestampCandidate `json:"timestamp_candidates,omitempty"`
	Confidence          ConfidenceLevel      `json:"confidence"`

	// Workflow state
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	Discarded       bool       `json:"discarded"`
	ProcessingError *string    `json:"processing_error,omitempty"`

	// Grouping
	ExactGroupID           *string          `json:"exact_group_id,omitempty"`
	ExactGroupConfidence   *ConfidenceLevel `json:"exact_group_confidence,omitempty"`
	SimilarGroupID         *string          `json:"similar_group_id,omitempty"`
	SimilarGroupConfidence *ConfidenceLevel `json:"similar_group_confidence,omitempty"`
	SimilarGroupType       *GroupType       `json:"similar_group_type,omitempty"`

	// Output
	OutputPath    *string `json:"output_path,omitempty"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`

	// Audit
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveTimestamp returns the user-confirmed timestamp if present,
// otherwise the detected one.
func (f *File) EffectiveTimestamp() *time.Time {
	if f.FinalTimestamp != nil {
		return f.FinalTimestamp
	}
	return f.DetectedTimestamp
}

// Extracted reports whether the extraction pipeline has run for this file.
// sha256 is monotone once set; a second extraction must not overwrite it.
func (f *File) Extracted() bool {
	return f.SHA256 != nil
}

// ClearGroups removes the file from both its exact and similar groups.
func (f *File) ClearGroups() {
	f.ExactGroupID = nil
	f.ExactGroupConfidence = nil
	f.ClearSimilarGroup()
}

// ClearSimilarGroup removes the file from its similar group only.
func (f *File) ClearSimilarGroup() {
	f.SimilarGroupID = nil
	f.SimilarGroupConfidence = nil
	f.SimilarGroupType = nil
}

// CandidatesJSON serializes the timestamp candidates for storage.
func (f *File) CandidatesJSON() (string, error) {
	if len(f.TimestampCandidates) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(f.TimestampCandidates)
	if err != nil {
		return "", fmt.Errorf("failed to marshal timestamp candidates: %w", err)
	}
	return string(data), nil
}

// CandidatesFromJSON deserializes timestamp candidates from storage.
func CandidatesFromJSON(data string) ([]TimestampCandidate, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var candidates []TimestampCandidate
	if err := json.Unmarshal([]byte(data), &candidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timestamp candidates: %w", err)
	}
	return candidates, nil
}

// MergeCandidates adds the given candidates to the file, deduplicating by
// (instant, source). Used when a discarded duplicate donates its evidence to
// a kept sibling.
func (f *File) MergeCandidates(donors []TimestampCandidate) int {
	seen := make(map[string]struct{}, len(f.TimestampCandidates))
	for _, c := range f.TimestampCandidates {
		seen[c.Timestamp.UTC().Format(time.RFC3339)+"|"+c.Source] = struct{}{}
	}
	added := 0
	for _, c := range donors {
		key := c.Timestamp.UTC().Format(time.RFC3339) + "|" + c.Source
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		f.TimestampCandidates = append(f.TimestampCandidates, c)
		added++
	}
	return added
}

// Tag is a normalized lowercase label attached to files.
type Tag struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserDecision is an append-only audit record of a review action. It is
// never consulted for correctness.
type UserDecision struct {
	ID            int64        `json:"id"`
	FileID        int64        `json:"file_id"`
	DecisionType  DecisionType `json:"decision_type"`
	DecisionValue string       `json:"decision_value"`
	DecidedAt     time.Time    `json:"decided_at"`
}
