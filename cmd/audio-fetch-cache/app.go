package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/devicestate"
	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/httpfetch"
	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/snapshot"
	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/sqlite"
	"github.com/vertextoedge/audio-fetch-cache/internal/config"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/event"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/service"
	"github.com/vertextoedge/audio-fetch-cache/internal/metrics"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/cacher"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/device"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	fs      *filesystem.Manager
	db      *sqlite.Store // nil unless database.driver is sqlite
	meta    *metastore.Store
	monitor *device.Monitor
	metrics *metrics.Metrics
	cache   *cacher.Cacher
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	cacheCfg, err := cacherConfig(cfg)
	if err != nil {
		return nil, err
	}

	fsManager, err := filesystem.NewManager(cfg.Cache.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}
	a.fs = fsManager

	// Metadata persistence
	var repo port.EntryRepository
	var feedback port.FeedbackRepository
	switch cfg.Database.Driver {
	case "sqlite":
		dbPath := cfg.Database.Path
		if dbPath == "" {
			dbPath = filepath.Join(cfg.Cache.RootDir, "cache.db")
		}
		store, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
		}
		a.db = store
		repo = store
		feedback = store
	case "snapshot":
		path := cfg.Database.Path
		if path == "" {
			path = filepath.Join(cfg.Cache.RootDir, "cache.snapshot")
		}
		snap, err := snapshot.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
		}
		repo = snap
	}
	a.meta = metastore.New(repo, logger)

	// Device gating
	var provider port.DeviceStateProvider
	if cfg.Device.StateFile != "" {
		provider = devicestate.NewFileProvider(cfg.Device.StateFile, logger)
	} else {
		provider = devicestate.NewStaticProvider(domain.UnknownDeviceState())
	}
	a.monitor = device.New(device.Config{
		MinBatteryPercent: cfg.Device.MinBatteryPercent,
		RequireUnmetered:  cfg.Device.RequireUnmetered,
		PollInterval:      cfg.Device.GetPollInterval(),
	}, provider, logger)

	// Events
	dispatcher := event.NewInMemoryDispatcher(logger)
	dispatcher.Subscribe(event.NewLoggingHandler(logger))
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(nil)
		if cfg.Metrics.Runtime {
			a.metrics.RegisterRuntime()
		}
		dispatcher.Subscribe(a.metrics)
	}

	transport := httpfetch.NewClient(httpfetch.Config{
		UserAgent:             cfg.Download.UserAgent,
		SkipTLSVerify:         cfg.Download.SkipTLSVerify,
		ResponseHeaderTimeout: cfg.Download.GetResponseHeaderTimeout(),
	})

	deps := cacher.Deps{
		Transport:  transport,
		FS:         fsManager,
		Meta:       a.meta,
		Gate:       a.monitor,
		Dispatcher: dispatcher,
	}
	if feedback != nil {
		deps.Feedback = feedback
	}
	a.cache = cacher.New(cacheCfg, deps, logger)

	if a.metrics != nil {
		a.metrics.RegisterStats(a.cache)
	}
	return a, nil
}

func cacherConfig(cfg *config.Config) (*cacher.Config, error) {
	tieBreak, err := cacher.ParseTieBreak(cfg.Queue.TieBreak)
	if err != nil {
		return nil, fmt.Errorf("invalid queue configuration: %w", err)
	}

	return &cacher.Config{
		MaxSizeBytes:        cfg.Cache.GetMaxSizeBytes(),
		MaxDiskUsagePercent: cfg.Cache.MaxDiskUsagePercent,
		LowWaterRatio:       cfg.Eviction.LowWaterRatio,
		MaxAge:              cfg.Cache.GetMaxAge(),
		FetchTimeout:        cfg.Cache.GetFetchTimeout(),
		RejectTTL:           cfg.Download.GetRejectTTL(),
		Downloader: cacher.DownloaderConfig{
			MaxAttempts:            cfg.Download.MaxAttempts,
			RetryDelay:             cfg.Download.GetRetryDelay(),
			TransferTimeout:        cfg.Download.GetTransferTimeout(),
			HighPriorityChunkSize:  cfg.Download.GetHighPriorityChunkSize(),
			LowPriorityChunkSize:   cfg.Download.GetLowPriorityChunkSize(),
			LowPriorityBytesPerSec: cfg.Download.GetLowPriorityBandwidth(),
			MaxFileSize:            cfg.Download.GetMaxFileSize(),
			AllowedContentTypes:    cfg.Download.AllowedContentTypes,
		},
		Scheduler: cacher.SchedulerConfig{
			MaxConcurrent:     cfg.Queue.MaxConcurrent,
			HighPriorityBurst: cfg.Queue.HighPriorityBurst,
			QueueCapacity:     cfg.Queue.Capacity,
			TieBreak:          tieBreak,
		},
		Weights: service.ScoreWeights{
			Recency:            cfg.Eviction.RecencyWeight,
			Importance:         cfg.Eviction.ImportanceWeight,
			Feedback:           cfg.Eviction.FeedbackWeight,
			SmallFile:          cfg.Eviction.SmallFileWeight,
			RecencySaturation:  cfg.Eviction.GetRecencySaturation(),
			SmallFileReference: cfg.Eviction.GetSmallFileSize(),
		},
	}, nil
}

// start brings up the device monitor and the cache
func (a *app) start(ctx context.Context) error {
	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start device monitor: %w", err)
	}
	if err := a.cache.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cache: %w", err)
	}
	return nil
}

// close stops the cache and releases metadata storage
func (a *app) close() {
	a.cache.Stop()
	a.monitor.Stop()
	if err := a.meta.Close(); err != nil {
		a.logger.Error("failed to close metadata store", zap.Error(err))
	}
}
