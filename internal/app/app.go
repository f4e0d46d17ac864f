// -----------------------------------------------------------------------
// App - Dependency wiring for the HTTP frontend and the worker process
// -----------------------------------------------------------------------

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/common"
	"github.com/ternarybob/mediaparser/internal/confidence"
	"github.com/ternarybob/mediaparser/internal/duplicates"
	"github.com/ternarybob/mediaparser/internal/events"
	"github.com/ternarybob/mediaparser/internal/export"
	"github.com/ternarybob/mediaparser/internal/extract"
	"github.com/ternarybob/mediaparser/internal/handlers"
	"github.com/ternarybob/mediaparser/internal/hashing"
	"github.com/ternarybob/mediaparser/internal/ingest"
	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
	"github.com/ternarybob/mediaparser/internal/probe"
	"github.com/ternarybob/mediaparser/internal/queue"
	"github.com/ternarybob/mediaparser/internal/review"
	"github.com/ternarybob/mediaparser/internal/scheduler"
	"github.com/ternarybob/mediaparser/internal/storage/sqlite"
	"github.com/ternarybob/mediaparser/internal/thumbs"
	"github.com/ternarybob/mediaparser/internal/timestamp"
)

// heartbeatInterval is how often the worker refreshes its liveness
// setting. The frontend treats a beat older than ~3 intervals as down.
const heartbeatInterval = 30 * time.Second

// staleJobAge is how long a RUNNING job may go without progress before
// the sweeper declares its worker dead.
const staleJobAge = 15 * time.Minute

// App holds all application components and dependencies. The HTTP
// frontend and the worker wire different subsets; both share the store
// and the queue files.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	QueueManager   interfaces.QueueManager
	EventService   interfaces.EventService

	// Services
	ConfidenceEngine *confidence.Engine
	IngestService    *ingest.Service
	ReviewService    *review.Service

	// Worker-only components
	Probe      *probe.ExifToolProbe
	Scheduler  *scheduler.Scheduler
	WorkerPool interfaces.WorkerPool
	cron       *cron.Cron

	// HTTP handlers (frontend only)
	ImportHandler   *handlers.ImportHandler
	JobHandler      *handlers.JobHandler
	FileHandler     *handlers.FileHandler
	GroupHandler    *handlers.GroupHandler
	SettingsHandler *handlers.SettingsHandler
	WSHandler       *handlers.WebSocketHandler
}

// NewServer wires the HTTP frontend: store, queue producer, review and
// ingest services, and the handler set. No extraction pipeline runs in
// this process.
func NewServer(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if err := app.initShared(); err != nil {
		return nil, err
	}

	app.ConfidenceEngine = confidence.NewEngine(cfg.Processing.MinValidYear)
	app.ReviewService = review.NewService(app.StorageManager, nil, logger)
	app.IngestService = ingest.NewService(
		app.StorageManager,
		app.QueueManager,
		cfg.Storage.UploadsDir,
		cfg.Storage.ThumbnailsDir,
		logger,
	)

	app.ImportHandler = handlers.NewImportHandler(app.IngestService, logger)
	app.JobHandler = handlers.NewJobHandler(app.StorageManager, app.ReviewService, app.IngestService, app.QueueManager, logger)
	app.FileHandler = handlers.NewFileHandler(app.StorageManager, app.ReviewService, app.ConfidenceEngine, logger)
	app.GroupHandler = handlers.NewGroupHandler(app.ReviewService, logger)
	app.SettingsHandler = handlers.NewSettingsHandler(app.StorageManager, cfg, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)

	logger.Info().Msg("Frontend initialization complete")
	return app, nil
}

// NewWorker wires the background worker: store, queue consumer, the full
// extraction and export pipeline, the scheduler, and the maintenance
// cron.
func NewWorker(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if err := app.initShared(); err != nil {
		return nil, err
	}
	if err := app.initPipeline(); err != nil {
		app.Close()
		return nil, err
	}

	pool := queue.NewWorkerPool(app.QueueManager, 1, logger)
	pool.RegisterHandler(models.JobTypeImport, app.Scheduler.HandleImport)
	pool.RegisterHandler(models.JobTypeExport, app.Scheduler.HandleExport)
	app.WorkerPool = pool

	app.initMaintenance()

	logger.Info().Msg("Worker initialization complete")
	return app, nil
}

// initShared opens the store and the task queue, and creates the event
// bus. Both processes run this.
func (a *App) initShared() error {
	store, err := sqlite.NewManager(a.Logger, sqlite.DefaultConfig(a.Config.Storage.DatabasePath))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = store

	a.Logger.Debug().
		Str("storage", "sqlite").
		Str("path", a.Config.Storage.DatabasePath).
		Msg("Storage layer initialized")

	queueConfig := queue.DefaultConfig(a.Config.Storage.QueuePath)
	queueConfig.Name = a.Config.Queue.QueueName
	if a.Config.Queue.VisibilityTimeout > 0 {
		queueConfig.VisibilityTimeout = a.Config.Queue.VisibilityTimeout
	}
	if a.Config.Queue.MaxReceive > 0 {
		queueConfig.MaxReceive = a.Config.Queue.MaxReceive
	}

	queueManager := queue.NewManager(queueConfig, a.Logger)
	if err := queueManager.Start(); err != nil {
		a.StorageManager.Close()
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.QueueManager = queueManager

	a.EventService = events.NewService(a.Logger)
	return nil
}

// initPipeline builds the extraction and export machinery. Worker only.
func (a *App) initPipeline() error {
	zone, err := a.resolveTimezone()
	if err != nil {
		return err
	}

	parser := timestamp.NewParser(zone, a.Config.Processing.MinValidYear)
	a.ConfidenceEngine = confidence.NewEngine(a.Config.Processing.MinValidYear)

	exifProbe, err := probe.NewExifToolProbe(a.Config.Probe.MaxConcurrent, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata probe: %w", err)
	}
	a.Probe = exifProbe

	frames := hashing.NewFFmpegExtractor("")
	hasher := hashing.NewHasher(frames, a.Logger)

	thumbGen, err := thumbs.NewGenerator(a.Config.Storage.ThumbnailsDir, frames, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize thumbnail generator: %w", err)
	}

	extractor := extract.NewExtractor(parser, a.ConfidenceEngine, hasher, exifProbe, thumbGen, a.Logger)
	dupes := duplicates.NewEngine(a.Logger)
	exporter := export.NewExporter(
		a.resolveOutputDir(),
		a.Config.Export.UnknownFolder,
		exifProbe,
		a.StorageManager.Tags(),
		a.Logger,
	)

	a.Scheduler = scheduler.New(
		a.StorageManager,
		extractor,
		exporter,
		dupes,
		a.EventService,
		nil,
		scheduler.Config{
			WorkerCount:     a.Config.WorkerCount(),
			BatchCommitSize: a.Config.Processing.BatchCommitSize,
			ErrorThreshold:  a.Config.Processing.ErrorThreshold,
		},
		a.Logger,
	)
	a.ReviewService = review.NewService(a.StorageManager, a.Scheduler.Control(), a.Logger)
	return nil
}

// initMaintenance schedules the stale-job sweep and the worker heartbeat.
func (a *App) initMaintenance() {
	a.cron = cron.New()

	a.cron.Schedule(cron.Every(heartbeatInterval), cron.FuncJob(a.writeHeartbeat))

	if a.Config.Maintenance.Enabled {
		if _, err := a.cron.AddFunc(a.Config.Maintenance.Schedule, a.sweepStaleJobs); err != nil {
			a.Logger.Warn().
				Err(err).
				Str("schedule", a.Config.Maintenance.Schedule).
				Msg("Invalid maintenance schedule, stale-job sweep disabled")
		}
	}

	// Crash recovery: jobs left RUNNING by a dead worker are swept on
	// startup, not just on schedule.
	a.writeHeartbeat()
	a.sweepStaleJobs()
	a.cron.Start()
}

// writeHeartbeat records worker liveness for the frontend's health view.
func (a *App) writeHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := a.StorageManager.Settings().SetSetting(ctx, interfaces.SettingWorkerHeartbeat, now); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write worker heartbeat")
	}
}

// sweepStaleJobs fails RUNNING jobs whose progress stalled long enough to
// mean their worker died mid-run. FAILED is restartable, so committed
// extraction work survives and the user can retry.
func (a *App) sweepStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stale, err := a.StorageManager.Jobs().GetStaleRunningJobs(ctx, staleJobAge)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Stale-job sweep failed")
		return
	}

	for _, job := range stale {
		job.ErrorMessage = "job abandoned by a previous worker"
		job.Status = models.JobStatusFailed
		if err := a.StorageManager.Jobs().UpdateJob(ctx, job); err != nil {
			a.Logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Failed to fail stale job")
			continue
		}
		a.Logger.Warn().Int64("job_id", job.ID).Msg("Swept stale running job")
	}
}

// resolveTimezone loads the effective default zone: stored setting first,
// config second.
func (a *App) resolveTimezone() (*time.Location, error) {
	name := a.Config.Processing.Timezone

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if v, err := a.StorageManager.Settings().GetSetting(ctx, interfaces.SettingTimezone); err == nil && v != "" {
		name = v
	} else if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to read timezone setting: %w", err)
	}

	zone, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return zone, nil
}

// resolveOutputDir loads the effective export root: stored setting first,
// config second.
func (a *App) resolveOutputDir() string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if v, err := a.StorageManager.Settings().GetSetting(ctx, interfaces.SettingOutputDir); err == nil && v != "" {
		return v
	}
	return a.Config.Storage.OutputDir
}

// Start launches the worker pool. Frontend processes have nothing to
// start here.
func (a *App) Start() error {
	if a.WorkerPool != nil {
		if err := a.WorkerPool.Start(); err != nil {
			return fmt.Errorf("failed to start worker pool: %w", err)
		}
	}
	return nil
}

// Close releases everything in reverse dependency order.
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Worker pool stop failed")
		}
	}
	if a.Probe != nil {
		if err := a.Probe.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Probe close failed")
		}
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.QueueManager != nil {
		if err := a.QueueManager.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Queue stop failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
}
