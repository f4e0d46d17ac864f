// -----------------------------------------------------------------------
// mediaparser-worker - Background job consumer: extraction, duplicate
// detection, and export
// -----------------------------------------------------------------------

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/app"
	"github.com/ternarybob/mediaparser/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("MediaParser worker version %s\n", common.GetVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("mediaparser.toml"); err == nil {
			configFiles = append(configFiles, "mediaparser.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler(filepath.Join(config.Storage.BaseDir, "logs"))
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("database", config.Storage.DatabasePath).
		Str("queue", config.Storage.QueuePath).
		Int("worker_threads", config.WorkerCount()).
		Msg("Worker configuration loaded")

	application, err := app.NewWorker(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize worker")
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start worker pool")
		os.Exit(1)
	}

	logger.Info().Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	// Close drains the worker pool before releasing the store.
}
