package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/mediaparser/internal/models"
)

func TestGetStaleRunningJobs_JudgesByLastWrite(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	makeRunning := func() *models.Job {
		job := &models.Job{JobType: models.JobTypeImport}
		require.NoError(t, m.Jobs().CreateJob(ctx, job))
		require.NoError(t, m.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
		return job
	}

	longRunning := makeRunning()
	abandoned := makeRunning()
	legacy := makeRunning()
	parked := makeRunning()

	hourAgo := time.Now().Add(-time.Hour).Unix()

	// Started an hour ago but committed progress just now: a big import
	// that is legitimately still running.
	_, err := m.db.DB().ExecContext(ctx,
		`UPDATE jobs SET started_at = ? WHERE id = ?`, hourAgo, longRunning.ID)
	require.NoError(t, err)
	require.NoError(t, m.Jobs().UpdateJobProgress(ctx, longRunning.ID, 500, 0, "IMG_0500.jpg"))

	// No write in an hour: its worker is gone.
	_, err = m.db.DB().ExecContext(ctx,
		`UPDATE jobs SET started_at = ?, updated_at = ? WHERE id = ?`, hourAgo, hourAgo, abandoned.ID)
	require.NoError(t, err)

	// A row from before the last-write column existed falls back to its
	// start time.
	_, err = m.db.DB().ExecContext(ctx,
		`UPDATE jobs SET started_at = ?, updated_at = NULL WHERE id = ?`, hourAgo, legacy.ID)
	require.NoError(t, err)

	// Paused jobs are never swept, however old.
	require.NoError(t, m.Jobs().UpdateJobStatus(ctx, parked.ID, models.JobStatusPaused))
	_, err = m.db.DB().ExecContext(ctx,
		`UPDATE jobs SET started_at = ?, updated_at = ? WHERE id = ?`, hourAgo, hourAgo, parked.ID)
	require.NoError(t, err)

	stale, err := m.Jobs().GetStaleRunningJobs(ctx, 15*time.Minute)
	require.NoError(t, err)

	ids := make([]int64, len(stale))
	for i, j := range stale {
		ids[i] = j.ID
	}
	assert.NotContains(t, ids, longRunning.ID)
	assert.NotContains(t, ids, parked.ID)
	assert.Contains(t, ids, abandoned.ID)
	assert.Contains(t, ids, legacy.ID)
}
