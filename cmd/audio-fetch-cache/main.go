package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/config"
	"github.com/vertextoedge/audio-fetch-cache/internal/logger"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "audio-fetch-cache",
	Short: "Content-addressed download cache for audio files",
	Long: `audio-fetch-cache downloads audio by URL into a local, size-bounded cache.

Downloads are queued by priority and gated on connectivity and battery.
When the cache is over budget, the least valuable files are evicted.

Use "audio-fetch-cache serve" to run the HTTP API, or one of the
other commands for one-shot operations against the cache directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: built-in defaults and environment)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(prefetchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(evictCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes the global logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, zapLogger, nil
}
