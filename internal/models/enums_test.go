package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTransitions(t *testing.T) {
	assert.True(t, JobStatusPending.CanTransition(JobStatusRunning))
	assert.True(t, JobStatusPending.CanTransition(JobStatusCancelled))
	assert.True(t, JobStatusRunning.CanTransition(JobStatusPaused))
	assert.True(t, JobStatusPaused.CanTransition(JobStatusRunning))

	// A failed job can be restarted.
	assert.True(t, JobStatusFailed.CanTransition(JobStatusRunning))

	// Completed, cancelled, and halted are dead ends.
	assert.False(t, JobStatusCompleted.CanTransition(JobStatusRunning))
	assert.False(t, JobStatusCancelled.CanTransition(JobStatusRunning))
	assert.False(t, JobStatusHalted.CanTransition(JobStatusRunning))

	assert.False(t, JobStatusRunning.CanTransition(JobStatusRunning))
	assert.False(t, JobStatusPending.CanTransition(JobStatusCompleted))
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusHalted.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.False(t, JobStatusPaused.IsTerminal())
}

func TestParseJobStatus(t *testing.T) {
	status, err := ParseJobStatus("paused")
	assert.NoError(t, err)
	assert.Equal(t, JobStatusPaused, status)

	_, err = ParseJobStatus("sleeping")
	assert.Error(t, err)
}

func TestEffectiveTimestamp(t *testing.T) {
	detected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	confirmed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	f := &File{}
	assert.Nil(t, f.EffectiveTimestamp())

	f.DetectedTimestamp = &detected
	assert.True(t, f.EffectiveTimestamp().Equal(detected))

	f.FinalTimestamp = &confirmed
	assert.True(t, f.EffectiveTimestamp().Equal(confirmed))
}

func TestMergeCandidates(t *testing.T) {
	instant := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &File{TimestampCandidates: []TimestampCandidate{
		{Timestamp: instant, Source: SourceDateTimeOriginal},
	}}

	added := f.MergeCandidates([]TimestampCandidate{
		{Timestamp: instant, Source: SourceDateTimeOriginal}, // duplicate
		{Timestamp: instant, Source: SourceFileModify},       // new source, same instant
		{Timestamp: instant.Add(time.Hour), Source: SourceDateTimeOriginal},
	})
	assert.Equal(t, 2, added)
	assert.Len(t, f.TimestampCandidates, 3)

	// Re-merging the same donors adds nothing.
	assert.Equal(t, 0, f.MergeCandidates(f.TimestampCandidates))
}

func TestProgressPercent(t *testing.T) {
	j := &Job{ProgressTotal: 0, ProgressCurrent: 0}
	assert.Equal(t, 0, j.ProgressPercent())

	j = &Job{ProgressTotal: 200, ProgressCurrent: 50}
	assert.Equal(t, 25, j.ProgressPercent())
}
