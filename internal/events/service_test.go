package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	s := NewService(arbor.NewLogger())

	received := make(chan interfaces.Event, 1)
	require.NoError(t, s.Subscribe(interfaces.EventJobTransitioned, func(ctx context.Context, e interfaces.Event) error {
		received <- e
		return nil
	}))

	s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobTransitioned, JobID: 7})

	select {
	case e := <-received:
		assert.Equal(t, int64(7), e.JobID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var calls atomic.Int32
	require.NoError(t, s.Subscribe(interfaces.EventFileCompleted, func(ctx context.Context, e interfaces.Event) error {
		calls.Add(1)
		return nil
	}))

	s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventBatchCommitted})
	require.NoError(t, s.Close())
	assert.Equal(t, int32(0), calls.Load())
}

func TestSubscribeNilHandlerRejected(t *testing.T) {
	s := NewService(arbor.NewLogger())
	assert.Error(t, s.Subscribe(interfaces.EventJobTransitioned, nil))
}

func TestCloseWaitsForInFlightDeliveries(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var done atomic.Bool
	require.NoError(t, s.Subscribe(interfaces.EventFileCompleted, func(ctx context.Context, e interfaces.Event) error {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
		return nil
	}))

	s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventFileCompleted})
	require.NoError(t, s.Close())
	assert.True(t, done.Load())

	// Events after close are dropped.
	s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventFileCompleted})
}
