// -----------------------------------------------------------------------
// Worker Pool - Polls the queue and dispatches jobs by type
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"maragu.dev/goqite"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

const (
	defaultPollInterval = 2 * time.Second
	workerStagger       = 250 * time.Millisecond
)

// WorkerPool polls the queue and runs registered handlers. Only one
// import or export job runs at a time in practice; the pool size covers
// redelivery and future job types.
type WorkerPool struct {
	queue        interfaces.QueueManager
	handlers     map[models.JobType]interfaces.JobHandler
	workerCount  int
	pollInterval time.Duration
	logger       arbor.ILogger

	mu      sync.RWMutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewWorkerPool creates a worker pool with the given concurrency.
func NewWorkerPool(queue interfaces.QueueManager, workerCount int, logger arbor.ILogger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		queue:        queue,
		handlers:     make(map[models.JobType]interfaces.JobHandler),
		workerCount:  workerCount,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

// RegisterHandler binds a job type to its handler. Must be called before
// Start.
func (p *WorkerPool) RegisterHandler(jobType models.JobType, handler interfaces.JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
}

// Start launches the polling workers.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("worker pool already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
		// Stagger startup so workers do not contend on the same poll tick
		time.Sleep(workerStagger)
	}

	p.logger.Info().Int("workers", p.workerCount).Msg("Worker pool started")
	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
	return nil
}

func (p *WorkerPool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	log := p.logger.WithCorrelationId(fmt.Sprintf("worker-%d", workerID))
	log.Debug().Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping")
			return
		case <-ticker.C:
			if err := p.poll(ctx, log); err != nil {
				log.Warn().Err(err).Msg("Poll failed")
			}
		}
	}
}

// poll receives at most one message and processes it to completion.
func (p *WorkerPool) poll(ctx context.Context, log arbor.ILogger) error {
	msg, err := p.queue.Receive(ctx)
	if err != nil {
		if errors.Is(err, ErrNoMessage) || errors.Is(err, context.Canceled) {
			return nil
		}
		// Transient contention with the web process writing to the
		// queue file; the next tick retries.
		if strings.Contains(err.Error(), "SQLITE_BUSY") {
			return nil
		}
		return fmt.Errorf("failed to receive message: %w", err)
	}

	payload, err := models.QueueMessageFromJSON(msg.Body)
	if err != nil {
		log.Error().Err(err).Msg("Discarding malformed queue message")
		return p.queue.Delete(ctx, *msg)
	}

	p.mu.RLock()
	handler, ok := p.handlers[payload.JobType]
	p.mu.RUnlock()
	if !ok {
		log.Error().Str("job_type", string(payload.JobType)).Msg("Discarding message with no registered handler")
		return p.queue.Delete(ctx, *msg)
	}

	log.Info().Int64("job_id", payload.JobID).Str("job_type", string(payload.JobType)).Msg("Processing job")

	// Keep the message invisible while the job runs.
	keepAlive, stopKeepAlive := context.WithCancel(ctx)
	go p.extendLoop(keepAlive, *msg)

	err = handler(ctx, payload)
	stopKeepAlive()

	if err != nil {
		log.Error().Err(err).Int64("job_id", payload.JobID).Msg("Job handler failed")
	}

	// The handler owns job status; the message is done either way. A
	// failed job is marked FAILED in the store, not retried from the
	// queue.
	if delErr := p.queue.Delete(ctx, *msg); delErr != nil {
		log.Warn().Err(delErr).Int64("job_id", payload.JobID).Msg("Failed to delete queue message")
	}
	return err
}

// extendLoop renews the message visibility timeout until cancelled.
func (p *WorkerPool) extendLoop(ctx context.Context, msg goqite.Message) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.Extend(ctx, msg, 10*time.Minute); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to extend message visibility")
			}
		}
	}
}
