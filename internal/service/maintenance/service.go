package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/port"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/cacher"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
)

// Cache is the part of the cache facade the maintenance loop drives
type Cache interface {
	Reconcile() (metastore.ReconcileReport, error)
	SweepExpired() cacher.EvictionReport
	EvictIfNeeded() cacher.EvictionReport
}

// Config contains maintenance service configuration
type Config struct {
	// ReconcileInterval is how often metadata is checked against the cache directory
	ReconcileInterval time.Duration

	// EvictionCheckInterval is how often the size limit is checked
	EvictionCheckInterval time.Duration

	// SweepInterval is how often entries past their maximum age are removed
	SweepInterval time.Duration

	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		ReconcileInterval:     15 * time.Minute,
		EvictionCheckInterval: time.Minute,
		SweepInterval:         time.Hour,
		CleanupInterval:       time.Hour,
		TempFileMaxAge:        24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config *Config
	cache  Cache
	fs     port.FileSystem
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, cache Cache, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.EvictionCheckInterval == 0 {
		cfg.EvictionCheckInterval = defaults.EvictionCheckInterval
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = defaults.TempFileMaxAge
	}

	return &Service{
		config: cfg,
		cache:  cache,
		fs:     fs,
		logger: logger,
	}
}

// Start runs the maintenance loop and blocks until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("reconcile_interval", s.config.ReconcileInterval),
		zap.Duration("eviction_check_interval", s.config.EvictionCheckInterval),
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs every maintenance task immediately
func (s *Service) RunOnce() {
	s.reconcile()
	s.sweepExpired()
	s.evictIfNeeded()
	s.cleanupTempFiles()
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	reconcileTicker := time.NewTicker(s.config.ReconcileInterval)
	defer reconcileTicker.Stop()

	evictTicker := time.NewTicker(s.config.EvictionCheckInterval)
	defer evictTicker.Stop()

	sweepTicker := time.NewTicker(s.config.SweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileTicker.C:
			s.reconcile()
		case <-evictTicker.C:
			s.evictIfNeeded()
		case <-sweepTicker.C:
			s.sweepExpired()
		case <-cleanupTicker.C:
			s.cleanupTempFiles()
		}
	}
}

// reconcile drops entries whose file vanished and adopts unknown files
func (s *Service) reconcile() {
	report, err := s.cache.Reconcile()
	if err != nil {
		s.logger.Error("failed to reconcile cache metadata", zap.Error(err))
		return
	}
	if len(report.Removed) > 0 || report.Adopted > 0 {
		s.logger.Info("reconciled cache metadata",
			zap.Int("removed", len(report.Removed)),
			zap.Int("adopted", report.Adopted),
			zap.Int("resized", report.Resized))
	}
}

func (s *Service) evictIfNeeded() {
	report := s.cache.EvictIfNeeded()
	if report.Evicted > 0 {
		s.logger.Info("evicted files over size limit",
			zap.Int("count", report.Evicted),
			zap.Int64("freed_bytes", report.FreedBytes))
	}
}

func (s *Service) sweepExpired() {
	report := s.cache.SweepExpired()
	if report.Evicted > 0 {
		s.logger.Info("removed expired files",
			zap.Int("count", report.Evicted),
			zap.Int64("freed_bytes", report.FreedBytes))
	}
}

// cleanupTempFiles removes abandoned partial downloads
func (s *Service) cleanupTempFiles() {
	fileCount, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from filesystem", zap.Int("count", fileCount))
	}

	if pruner, ok := s.fs.(dirPruner); ok {
		if err := pruner.CleanEmptyDirs(); err != nil {
			s.logger.Warn("failed to remove empty shard directories", zap.Error(err))
		}
	}
}

// dirPruner is implemented by filesystems that shard files into directories
type dirPruner interface {
	CleanEmptyDirs() error
}
