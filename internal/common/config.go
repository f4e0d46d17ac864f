// -----------------------------------------------------------------------
// Configuration - defaults -> TOML file(s) -> environment -> CLI flags
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration shared by the HTTP
// frontend and the background worker.
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Queue       QueueConfig      `toml:"queue"`
	Processing  ProcessingConfig `toml:"processing"`
	Export      ExportConfig     `toml:"export"`
	Probe       ProbeConfig      `toml:"probe"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig names every on-disk location the system owns.
type StorageConfig struct {
	BaseDir       string `toml:"base_dir"`       // Root for instance/ and storage/
	DatabasePath  string `toml:"database_path"`  // Store (sqlite); default <base>/instance/mediaparser.db
	QueuePath     string `toml:"queue_path"`     // Persistent task queue; default <base>/instance/queue.db
	UploadsDir    string `toml:"uploads_dir"`    // Browser-uploaded working copies
	ThumbnailsDir string `toml:"thumbnails_dir"` // Generated thumbnails
	OutputDir     string `toml:"output_dir"`     // Export target root
}

type QueueConfig struct {
	PollInterval      time.Duration `toml:"poll_interval"`      // How often the worker polls for messages
	VisibilityTimeout time.Duration `toml:"visibility_timeout"` // Message redelivery timeout
	MaxReceive        int           `toml:"max_receive"`        // Receives before dead-letter
	QueueName         string        `toml:"queue_name"`
}

type ProcessingConfig struct {
	WorkerThreads   int     `toml:"worker_threads"`    // Extraction pool size; 0 = CPU count
	MinValidYear    int     `toml:"min_valid_year"`    // Candidates before this year are dropped
	BatchCommitSize int     `toml:"batch_commit_size"` // Results per store transaction
	ErrorThreshold  float64 `toml:"error_threshold"`   // Halt job above this error rate
	Timezone        string  `toml:"timezone"`          // IANA zone for offset-less dates
}

type ExportConfig struct {
	UnknownFolder string `toml:"unknown_folder"` // Subfolder for files without a timestamp
}

type ProbeConfig struct {
	MaxConcurrent int `toml:"max_concurrent"` // Bound on concurrent exiftool probes
}

type MaintenanceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule for the stale-job sweep
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns the built-in defaults. Paths are derived from
// base_dir unless set explicitly.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8180,
			Host: "localhost",
		},
		Storage: StorageConfig{
			BaseDir: ".",
		},
		Queue: QueueConfig{
			PollInterval:      time.Second,
			VisibilityTimeout: 5 * time.Minute,
			MaxReceive:        3,
			QueueName:         "mediaparser-jobs",
		},
		Processing: ProcessingConfig{
			WorkerThreads:   0, // resolved to runtime.NumCPU()
			MinValidYear:    2000,
			BatchCommitSize: 10,
			ErrorThreshold:  0.10,
			Timezone:        "UTC",
		},
		Export: ExportConfig{
			UnknownFolder: "unknown",
		},
		Probe: ProbeConfig{
			MaxConcurrent: 4,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "@every 10m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration in precedence order: defaults, then each
// TOML file (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFlagOverrides applies CLI flag values (highest priority).
func ApplyFlagOverrides(cfg *Config, port int, host string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	cfg.resolvePaths()
}

// applyEnvOverrides maps MEDIAPARSER_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDIAPARSER_OUTPUT_DIR"); v != "" {
		cfg.Storage.OutputDir = v
	}
	if v := os.Getenv("MEDIAPARSER_TIMEZONE"); v != "" {
		cfg.Processing.Timezone = v
	}
	if v := os.Getenv("MEDIAPARSER_WORKER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Processing.WorkerThreads = n
		}
	}
	if v := os.Getenv("MEDIAPARSER_MIN_VALID_YEAR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Processing.MinValidYear = n
		}
	}
	if v := os.Getenv("MEDIAPARSER_BATCH_COMMIT_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Processing.BatchCommitSize = n
		}
	}
	if v := os.Getenv("MEDIAPARSER_ERROR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Processing.ErrorThreshold = f
		}
	}
	if v := os.Getenv("MEDIAPARSER_MAX_CONCURRENT_PROBES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Probe.MaxConcurrent = n
		}
	}
	if v := os.Getenv("MEDIAPARSER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
}

// resolvePaths derives unset storage paths from base_dir.
func (c *Config) resolvePaths() {
	base := c.Storage.BaseDir
	if base == "" {
		base = "."
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(base, "instance", "mediaparser.db")
	}
	if c.Storage.QueuePath == "" {
		c.Storage.QueuePath = filepath.Join(base, "instance", "queue.db")
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = filepath.Join(base, "storage", "uploads")
	}
	if c.Storage.ThumbnailsDir == "" {
		c.Storage.ThumbnailsDir = filepath.Join(base, "storage", "thumbnails")
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = filepath.Join(base, "output")
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Processing.BatchCommitSize < 1 {
		return fmt.Errorf("batch_commit_size must be >= 1, got %d", c.Processing.BatchCommitSize)
	}
	if c.Processing.ErrorThreshold <= 0 || c.Processing.ErrorThreshold >= 1 {
		return fmt.Errorf("error_threshold must be in (0,1), got %f", c.Processing.ErrorThreshold)
	}
	if c.Probe.MaxConcurrent < 1 {
		return fmt.Errorf("probe max_concurrent must be >= 1, got %d", c.Probe.MaxConcurrent)
	}
	return nil
}

// WorkerCount resolves the configured worker thread count, defaulting to the
// number of CPUs.
func (c *Config) WorkerCount() int {
	if c.Processing.WorkerThreads > 0 {
		return c.Processing.WorkerThreads
	}
	return runtime.NumCPU()
}
