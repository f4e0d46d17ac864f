// -----------------------------------------------------------------------
// Queue - Persistent task queue and worker pool contracts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"maragu.dev/goqite"

	"github.com/ternarybob/mediaparser/internal/models"
)

// JobHandler processes one queue message. Returning an error leaves the
// message invisible until its visibility timeout lapses, after which the
// queue redelivers it.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// QueueManager manages the persistent message queue
type QueueManager interface {
	Start() error
	Stop() error
	Enqueue(ctx context.Context, msg *models.QueueMessage) error
	Receive(ctx context.Context) (*goqite.Message, error)
	Delete(ctx context.Context, msg goqite.Message) error
	Extend(ctx context.Context, msg goqite.Message, duration time.Duration) error
	Length(ctx context.Context) (int, error)
}

// WorkerPool consumes the queue and dispatches messages by job type
type WorkerPool interface {
	RegisterHandler(jobType models.JobType, handler JobHandler)
	Start() error
	Stop() error
}
