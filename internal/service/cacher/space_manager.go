package cacher

import (
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// sizeSource reports the bytes currently held by the cache
type sizeSource interface {
	TotalBytes() int64
}

// SpaceManager handles space availability checks for caching
type SpaceManager struct {
	fs              port.FileSystem
	cache           sizeSource
	maxCacheSize    int64
	maxDiskUsagePct float64
	logger          *zap.Logger
}

// NewSpaceManager creates a new SpaceManager.
// A maxDiskUsagePct of 0 disables the disk usage limit.
func NewSpaceManager(fs port.FileSystem, cache sizeSource, maxCacheSize int64, maxDiskUsagePct float64, logger *zap.Logger) *SpaceManager {
	return &SpaceManager{
		fs:              fs,
		cache:           cache,
		maxCacheSize:    maxCacheSize,
		maxDiskUsagePct: maxDiskUsagePct,
		logger:          logger,
	}
}

// CheckSpace checks if there's enough space for a file of the given size
func (sm *SpaceManager) CheckSpace(fileSize int64) (*port.SpaceCheckResult, error) {
	result := &port.SpaceCheckResult{
		MaxCacheSizeBytes: sm.maxCacheSize,
		MaxDiskUsagePct:   sm.maxDiskUsagePct,
	}

	// Check cache size limit
	cacheSize := sm.cache.TotalBytes()
	result.CacheSizeBytes = cacheSize
	result.AvailableBytes = max(sm.maxCacheSize-cacheSize, 0)

	if cacheSize+fileSize > sm.maxCacheSize {
		result.LimitedByCacheSize = true
		return result, nil
	}

	if sm.maxDiskUsagePct <= 0 {
		result.HasSpace = true
		return result, nil
	}

	// Check disk usage limit
	usage, err := sm.fs.GetDiskUsage()
	if err != nil {
		return nil, err
	}
	result.DiskUsedPct = usage.UsedPct

	diskBudget := sm.diskBudget(usage)
	if diskBudget < result.AvailableBytes {
		result.AvailableBytes = diskBudget
	}

	if usage.UsedPct >= sm.maxDiskUsagePct {
		result.LimitedByDiskUsage = true
		return result, nil
	}

	// Check if adding this file would exceed disk limit
	newUsedPct := float64(usage.Used+uint64(fileSize)) / float64(usage.Total) * 100
	if newUsedPct >= sm.maxDiskUsagePct {
		result.LimitedByDiskUsage = true
		return result, nil
	}

	result.HasSpace = true
	return result, nil
}

// HasSpace returns true if there's enough space for the given file size
func (sm *SpaceManager) HasSpace(fileSize int64) (bool, error) {
	result, err := sm.CheckSpace(fileSize)
	if err != nil {
		return false, err
	}
	return result.HasSpace, nil
}

// AvailableBudget returns the bytes that can still be written, bounded by
// both the cache limit and the disk usage limit
func (sm *SpaceManager) AvailableBudget() (int64, error) {
	budget := max(sm.maxCacheSize-sm.cache.TotalBytes(), 0)
	if sm.maxDiskUsagePct <= 0 {
		return budget, nil
	}

	usage, err := sm.fs.GetDiskUsage()
	if err != nil {
		return budget, err
	}
	return min(budget, sm.diskBudget(usage)), nil
}

// AvailableBudgetOrCacheLimit is AvailableBudget falling back to the cache
// limit alone when disk usage cannot be read
func (sm *SpaceManager) AvailableBudgetOrCacheLimit() int64 {
	budget, err := sm.AvailableBudget()
	if err != nil {
		sm.logger.Debug("disk usage unavailable, budget limited by cache size only", zap.Error(err))
	}
	return budget
}

func (sm *SpaceManager) diskBudget(usage *port.DiskUsage) int64 {
	if usage.Total == 0 {
		return 0
	}
	allowed := uint64(float64(usage.Total) * sm.maxDiskUsagePct / 100)
	if usage.Used >= allowed {
		return 0
	}
	return int64(allowed - usage.Used)
}

// Ensure SpaceManager implements port.SpaceManager
var _ port.SpaceManager = (*SpaceManager)(nil)
