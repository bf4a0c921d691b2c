package cacher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/event"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/service"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
	"github.com/vertextoedge/audio-fetch-cache/internal/util/ratelimiter"
	"github.com/vertextoedge/audio-fetch-cache/internal/util/soft"
)

// EvictionReport summarizes one eviction pass
type EvictionReport struct {
	Evicted    int   `json:"evicted"`
	FreedBytes int64 `json:"freed_bytes"`
	Skipped    int   `json:"skipped"`
	Remaining  int64 `json:"remaining_bytes"`
}

// Evictor removes cached files by score, age or administrative request.
// Callers serialize passes through the facade mutex.
type Evictor struct {
	meta       *metastore.Store
	fs         port.FileSystem
	policy     *service.CachePolicy
	scorer     *service.EvictionScorer
	feedback   port.FeedbackSource
	dispatcher event.EventDispatcher
	logger     *zap.Logger
	now        func() time.Time

	// throttles the "nothing left to evict" warning
	starved *ratelimiter.Limiter
}

// NewEvictor creates a new Evictor. feedback may be nil.
func NewEvictor(
	meta *metastore.Store,
	fs port.FileSystem,
	policy *service.CachePolicy,
	scorer *service.EvictionScorer,
	feedback port.FeedbackSource,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Evictor {
	if dispatcher == nil {
		dispatcher = event.NullDispatcher{}
	}
	return &Evictor{
		meta:       meta,
		fs:         fs,
		policy:     policy,
		scorer:     scorer,
		feedback:   feedback,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		starved:    ratelimiter.New(time.Minute),
	}
}

// EvictIfNeeded drains the cache to the low-water mark once it exceeds the
// high-water mark
func (e *Evictor) EvictIfNeeded(ctx context.Context, protected map[domain.CacheKey]bool) EvictionReport {
	total := e.meta.TotalBytes()
	if !e.policy.ShouldEvict(total) {
		return EvictionReport{Remaining: total}
	}

	e.logger.Info("cache above high-water mark, evicting",
		zap.Int64("total_bytes", total),
		zap.Int64("high_water_mark", e.policy.HighWaterMark()),
		zap.Int64("low_water_mark", e.policy.LowWaterMark()))
	return e.EvictToTarget(ctx, e.policy.LowWaterMark(), protected)
}

// EvictToTarget deletes the lowest-scoring entries until the total is at or
// below target, or only protected entries remain
func (e *Evictor) EvictToTarget(ctx context.Context, target int64, protected map[domain.CacheKey]bool) EvictionReport {
	report := EvictionReport{Remaining: e.meta.TotalBytes()}
	if report.Remaining <= target {
		return report
	}

	now := e.now()
	ranked := e.scorer.Rank(e.meta.All(), func(entry *domain.CacheEntry) bool {
		return e.isLiked(ctx, entry)
	}, now)

	for _, candidate := range ranked {
		if e.meta.TotalBytes() <= target {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if protected[candidate.Entry.Key] {
			report.Skipped++
			continue
		}
		if e.evictEntry(candidate.Entry, candidate.Score, event.ReasonSizePressure) {
			report.Evicted++
			report.FreedBytes += candidate.Entry.FileSizeBytes
		}
	}

	report.Remaining = e.meta.TotalBytes()
	if report.Remaining > target {
		if ok, _ := e.starved.Allow(); ok {
			e.logger.Warn("eviction could not reach target",
				zap.Int64("remaining_bytes", report.Remaining),
				zap.Int64("target_bytes", target),
				zap.Int("skipped_in_flight", report.Skipped))
		}
	}

	e.logger.Info("eviction completed",
		zap.Int("evicted_count", report.Evicted),
		zap.Int64("evicted_bytes", report.FreedBytes),
		zap.Int64("remaining_bytes", report.Remaining))
	return report
}

// SweepExpired deletes entries older than maxAge that are not liked
func (e *Evictor) SweepExpired(ctx context.Context, maxAge time.Duration, protected map[domain.CacheKey]bool) EvictionReport {
	var report EvictionReport
	if maxAge <= 0 {
		report.Remaining = e.meta.TotalBytes()
		return report
	}

	now := e.now()
	for _, entry := range e.meta.All() {
		if ctx.Err() != nil {
			break
		}
		if entry.Age(now) <= maxAge {
			continue
		}
		if protected[entry.Key] {
			report.Skipped++
			continue
		}
		if e.isLiked(ctx, entry) {
			continue
		}
		if e.evictEntry(entry, 0, event.ReasonExpired) {
			report.Evicted++
			report.FreedBytes += entry.FileSizeBytes
		}
	}

	report.Remaining = e.meta.TotalBytes()
	if report.Evicted > 0 {
		e.logger.Info("expired entries swept",
			zap.Int("evicted_count", report.Evicted),
			zap.Int64("evicted_bytes", report.FreedBytes),
			zap.Duration("max_age", maxAge))
	}
	return report
}

// EvictAll deletes every entry except protected ones and, when
// preserveHigh is set, entries of high importance
func (e *Evictor) EvictAll(ctx context.Context, preserveHigh bool, protected map[domain.CacheKey]bool) EvictionReport {
	var report EvictionReport
	for _, entry := range e.meta.All() {
		if ctx.Err() != nil {
			break
		}
		if protected[entry.Key] || (preserveHigh && entry.Importance.IsHigh()) {
			report.Skipped++
			continue
		}
		if e.evictEntry(entry, 0, event.ReasonEvictAll) {
			report.Evicted++
			report.FreedBytes += entry.FileSizeBytes
		}
	}
	report.Remaining = e.meta.TotalBytes()

	e.logger.Info("cache cleared",
		zap.Bool("preserve_high_priority", preserveHigh),
		zap.Int("evicted_count", report.Evicted),
		zap.Int("kept", report.Skipped),
		zap.Int64("remaining_bytes", report.Remaining))
	return report
}

// Remove deletes a single entry and its file
func (e *Evictor) Remove(entry *domain.CacheEntry) error {
	return e.removeEntry(entry, 0, event.ReasonDeleted)
}

func (e *Evictor) evictEntry(entry *domain.CacheEntry, score float64, reason string) bool {
	return e.removeEntry(entry, score, reason) == nil
}

// removeEntry deletes the file first; the entry stays if the file cannot be removed
func (e *Evictor) removeEntry(entry *domain.CacheEntry, score float64, reason string) error {
	path := e.fs.PathFor(entry.Key)
	if err := e.fs.Remove(path); err != nil {
		e.logger.Error("failed to delete cached file",
			zap.String("path", path),
			zap.String("reason", reason),
			zap.Error(err))
		return domain.NewFetchError(domain.KindStorage, entry.URL, err)
	}
	e.meta.Remove(entry.Key)

	e.logger.Debug("file evicted",
		zap.String("key", entry.Key.String()),
		zap.String("url", entry.URL),
		zap.Int64("size", entry.FileSizeBytes),
		zap.Int("importance", int(entry.Importance)),
		zap.Float64("score", score),
		zap.String("reason", reason))
	e.dispatcher.Dispatch(event.NewFileEvicted(entry, score, reason))
	return nil
}

// isLiked combines the stored flag with the external feedback source.
// A failing source counts as "not liked".
func (e *Evictor) isLiked(ctx context.Context, entry *domain.CacheEntry) bool {
	if entry.Liked {
		return true
	}
	if e.feedback == nil || entry.URL == "" {
		return false
	}
	return soft.Try(func() (bool, error) {
		return e.feedback.IsLiked(ctx, entry.URL)
	}).Log(e.logger, "feedback lookup").Or(false)
}
