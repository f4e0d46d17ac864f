// -----------------------------------------------------------------------
// ExtractionResult - Immutable output of the per-file extraction pipeline
// -----------------------------------------------------------------------

package models

// ExtractionStatus marks an extraction result as usable or failed.
type ExtractionStatus string

const (
	ExtractionSuccess ExtractionStatus = "success"
	ExtractionError   ExtractionStatus = "error"
)

// ExtractionResult is produced by the per-file extractor running inside a
// worker goroutine. Workers never touch the store; the scheduler commits
// these in batches.
type ExtractionResult struct {
	FileID int64
	Status ExtractionStatus

	SizeBytes      int64
	SHA256         string
	PerceptualHash string // empty when the format cannot be decoded
	MimeType       string
	Width          *int
	Height         *int

	Candidates    []TimestampCandidate
	ChosenInstant *TimestampCandidate // nil when no candidate survived
	Confidence    ConfidenceLevel

	ThumbnailPath string // empty when no thumbnail was generated

	ErrorMessage string
}

// Failed reports whether this result records a processing error.
func (r *ExtractionResult) Failed() bool {
	return r.Status == ExtractionError
}
