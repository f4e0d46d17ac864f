// -----------------------------------------------------------------------
// Event Service - In-process pub/sub for pipeline progress
// -----------------------------------------------------------------------

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

// Service fans events out to subscribers. Handlers run on their own
// goroutines so a slow consumer never stalls the extraction pipeline.
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closed      bool
	logger      arbor.ILogger
}

// NewService creates an event service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type.
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")
	return nil
}

// Publish delivers an event to every subscriber of its type. Delivery is
// asynchronous; errors are logged, never returned to the publisher.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	handlers := s.subscribers[event.Type]
	s.wg.Add(len(handlers))
	s.mu.RUnlock()

	for _, handler := range handlers {
		go func(h interfaces.EventHandler) {
			defer s.wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Warn().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(handler)
	}
}

// Close waits for in-flight deliveries and stops accepting new events.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
