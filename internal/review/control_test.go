package review

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
	"github.com/ternarybob/mediaparser/internal/queue"
)

func newTestQueue(t *testing.T) interfaces.QueueManager {
	t.Helper()
	m := queue.NewManager(queue.DefaultConfig(filepath.Join(t.TempDir(), "queue.db")), arbor.NewLogger())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Stop() })
	return m
}

func TestControlJob_PauseRunning(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, _ := seedJob(t, store, "a.jpg")
	require.NoError(t, store.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))

	got, err := svc.ControlJob(ctx, job.ID, models.ControlPause, nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaused, got.Status)

	status, err := store.Jobs().GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaused, status)
}

func TestControlJob_PausePendingRejected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, _ := seedJob(t, store, "a.jpg")

	_, err := svc.ControlJob(ctx, job.ID, models.ControlPause, nil)
	var transition *TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.JobStatusPending, transition.From)
	assert.Equal(t, []string{"running"}, transition.AllowedStates())
}

func TestControlJob_CancelPending(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, _ := seedJob(t, store, "a.jpg")

	got, err := svc.ControlJob(ctx, job.ID, models.ControlCancel, nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestControlJob_ResumeReenqueues(t *testing.T) {
	svc, store := newTestService(t)
	q := newTestQueue(t)
	ctx := context.Background()

	job, _ := seedJob(t, store, "a.jpg")
	require.NoError(t, store.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
	require.NoError(t, store.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusPaused))

	got, err := svc.ControlJob(ctx, job.ID, models.ControlResume, q)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestControlJob_ResumeCompletedRejected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	job, _ := seedJob(t, store, "a.jpg")
	require.NoError(t, store.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
	require.NoError(t, store.Jobs().UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))

	_, err := svc.ControlJob(ctx, job.ID, models.ControlResume, nil)
	var transition *TransitionError
	assert.ErrorAs(t, err, &transition)
}
