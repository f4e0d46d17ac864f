// -----------------------------------------------------------------------
// Queue Manager - Persistent task queue over goqite
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"maragu.dev/goqite"
	_ "modernc.org/sqlite"

	"github.com/ternarybob/mediaparser/internal/models"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Config holds queue tuning knobs.
type Config struct {
	Path              string
	Name              string
	VisibilityTimeout time.Duration
	MaxReceive        int
}

// DefaultConfig returns settings for a single-host deployment. The long
// visibility timeout covers multi-hour import jobs; the control loop
// extends it besides.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:              path,
		Name:              "mediaparser-jobs",
		VisibilityTimeout: 10 * time.Minute,
		MaxReceive:        3,
	}
}

// Manager is a thin wrapper around goqite.
// It provides ONLY queue operations, no business logic.
type Manager struct {
	config *Config
	db     *sql.DB
	q      *goqite.Queue
	logger arbor.ILogger
}

// NewManager creates a new queue manager. Start must be called before use.
func NewManager(config *Config, logger arbor.ILogger) *Manager {
	return &Manager{config: config, logger: logger}
}

// Start opens the queue database and creates the goqite tables.
func (m *Manager) Start() error {
	if err := os.MkdirAll(filepath.Dir(m.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", m.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open queue database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := goqite.Setup(ctx, db); err != nil {
		// Expected on subsequent startups
		if !strings.Contains(err.Error(), "already exists") {
			db.Close()
			return fmt.Errorf("failed to set up queue tables: %w", err)
		}
	}

	m.db = db
	m.q = goqite.New(goqite.NewOpts{
		DB:         db,
		Name:       m.config.Name,
		Timeout:    m.config.VisibilityTimeout,
		MaxReceive: m.config.MaxReceive,
	})

	m.logger.Info().Str("path", m.config.Path).Str("queue", m.config.Name).Msg("Queue started")
	return nil
}

// Stop closes the queue database.
func (m *Manager) Stop() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Enqueue adds a job message to the queue.
func (m *Manager) Enqueue(ctx context.Context, msg *models.QueueMessage) error {
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}
	if err := m.q.Send(ctx, goqite.Message{Body: data}); err != nil {
		return fmt.Errorf("failed to enqueue job %d: %w", msg.JobID, err)
	}

	m.logger.Info().Int64("job_id", msg.JobID).Str("job_type", string(msg.JobType)).Msg("Job enqueued")
	return nil
}

// Receive pulls the next message, or ErrNoMessage when the queue is empty.
func (m *Manager) Receive(ctx context.Context) (*goqite.Message, error) {
	msg, err := m.q.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNoMessage
	}
	return msg, nil
}

// Delete acknowledges a processed message.
func (m *Manager) Delete(ctx context.Context, msg goqite.Message) error {
	// Fresh timeout; the caller's context may be long gone after a
	// multi-hour job.
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.q.Delete(deleteCtx, msg.ID)
}

// Extend pushes out the visibility timeout of an in-flight message.
func (m *Manager) Extend(ctx context.Context, msg goqite.Message, duration time.Duration) error {
	return m.q.Extend(ctx, msg.ID, duration)
}

// Length returns the number of messages waiting or in flight.
func (m *Manager) Length(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goqite WHERE queue = ?`, m.config.Name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue messages: %w", err)
	}
	return count, nil
}
