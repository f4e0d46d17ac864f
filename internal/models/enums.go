// -----------------------------------------------------------------------
// Enums - Job, confidence, and group classification values
// -----------------------------------------------------------------------

package models

import "fmt"

// JobStatus represents the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusHalted    JobStatus = "halted"
)

// legalTransitions enumerates the allowed status edges. PAUSED and CANCELLED
// may also be entered directly from PENDING (job controlled before a worker
// picked it up).
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:   {JobStatusRunning, JobStatusPaused, JobStatusCancelled},
	JobStatusRunning:   {JobStatusCompleted, JobStatusPaused, JobStatusCancelled, JobStatusHalted, JobStatusFailed},
	JobStatusPaused:    {JobStatusRunning, JobStatusCancelled},
	JobStatusFailed:    {JobStatusPending, JobStatusRunning},
	JobStatusHalted:    {},
	JobStatusCancelled: {},
	JobStatusCompleted: {},
}

// CanTransition reports whether moving from s to target is a legal edge in
// the job status machine.
func (s JobStatus) CanTransition(target JobStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is an end state that the scheduler
// will not advance further without user action.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed, JobStatusHalted:
		return true
	}
	return false
}

// ParseJobStatus validates a status string.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusPaused, JobStatusCancelled,
		JobStatusCompleted, JobStatusFailed, JobStatusHalted:
		return JobStatus(s), nil
	}
	return "", fmt.Errorf("unknown job status: %q", s)
}

// JobType distinguishes import from export jobs.
type JobType string

const (
	JobTypeImport JobType = "import"
	JobTypeExport JobType = "export"
)

// ConfidenceLevel grades how trustworthy a detected timestamp or a duplicate
// group is.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceNone   ConfidenceLevel = "none"
)

// ParseConfidence validates a confidence string.
func ParseConfidence(s string) (ConfidenceLevel, error) {
	switch ConfidenceLevel(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return ConfidenceLevel(s), nil
	}
	return "", fmt.Errorf("unknown confidence level: %q", s)
}

// GroupType classifies the relationship inside a similar group.
type GroupType string

const (
	GroupTypeBurst    GroupType = "burst"
	GroupTypePanorama GroupType = "panorama"
	GroupTypeSimilar  GroupType = "similar"
)

// ControlAction is a user request against a running job.
type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlCancel ControlAction = "cancel"
	ControlResume ControlAction = "resume"
)

// DecisionType labels entries in the user decision audit trail.
type DecisionType string

const (
	DecisionTimestampOverride DecisionType = "timestamp_override"
	DecisionUnreview          DecisionType = "unreview"
	DecisionDiscard           DecisionType = "discard"
	DecisionUndiscard         DecisionType = "undiscard"
	DecisionKeepAllDuplicates DecisionType = "keep_all_duplicates"
	DecisionKeepAllSimilar    DecisionType = "keep_all_similar"
	DecisionResolveSimilar    DecisionType = "resolve_similar"
	DecisionAutoConfirm       DecisionType = "auto_confirm_high"
)

// Timestamp source tags. Metadata tags use the exiftool group:name form so
// the review UI can show where a candidate came from.
const (
	SourceDateTimeOriginal  = "EXIF:DateTimeOriginal"
	SourceCreateDate        = "EXIF:CreateDate"
	SourceQuickTimeCreate   = "QuickTime:CreateDate"
	SourceModifyDate        = "EXIF:ModifyDate"
	SourceFileModify        = "File:FileModifyDate"
	SourceFileCreate        = "File:FileCreateDate"
	SourceFilenameDatetime  = "filename_datetime"
	SourceFilenameDate      = "filename_date"
	SourceNone              = "none"
)
