package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/models"
)

func newTestQueue(t *testing.T) *Manager {
	t.Helper()

	config := DefaultConfig(filepath.Join(t.TempDir(), "queue.db"))
	config.VisibilityTimeout = time.Second

	m := NewManager(config, arbor.NewLogger())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Stop() })
	return m
}

func TestQueueRoundTrip(t *testing.T) {
	m := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 42, JobType: models.JobTypeImport}))

	length, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	msg, err := m.Receive(ctx)
	require.NoError(t, err)

	payload, err := models.QueueMessageFromJSON(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, int64(42), payload.JobID)
	assert.Equal(t, models.JobTypeImport, payload.JobType)

	require.NoError(t, m.Delete(ctx, *msg))

	length, err = m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestReceiveEmptyQueue(t *testing.T) {
	m := newTestQueue(t)

	_, err := m.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestReceivedMessageInvisibleUntilTimeout(t *testing.T) {
	m := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 1, JobType: models.JobTypeExport}))

	_, err := m.Receive(ctx)
	require.NoError(t, err)

	// Still counted, but not deliverable while in flight.
	length, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	_, err = m.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestStartIsIdempotentAcrossRestarts(t *testing.T) {
	config := DefaultConfig(filepath.Join(t.TempDir(), "queue.db"))
	logger := arbor.NewLogger()

	m := NewManager(config, logger)
	require.NoError(t, m.Start())
	require.NoError(t, m.Enqueue(context.Background(), &models.QueueMessage{JobID: 7, JobType: models.JobTypeImport}))
	require.NoError(t, m.Stop())

	// Reopening the same file must tolerate existing goqite tables and
	// keep the pending message.
	m2 := NewManager(config, logger)
	require.NoError(t, m2.Start())
	defer m2.Stop()

	length, err := m2.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}
