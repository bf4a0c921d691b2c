package cacher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/event"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/service"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
	"github.com/vertextoedge/audio-fetch-cache/internal/util/soft"
)

// Config contains cacher configuration
type Config struct {
	MaxSizeBytes        int64
	MaxDiskUsagePercent float64
	LowWaterRatio       float64
	MaxAge              time.Duration
	FetchTimeout        time.Duration
	RejectTTL           time.Duration
	Downloader          DownloaderConfig
	Scheduler           SchedulerConfig
	Weights             service.ScoreWeights
}

// DefaultConfig returns default cacher configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSizeBytes:        500 * 1024 * 1024, // 500MB
		MaxDiskUsagePercent: 90,
		LowWaterRatio:       service.DefaultLowWaterRatio,
		MaxAge:              30 * 24 * time.Hour,
		FetchTimeout:        30 * time.Second,
		RejectTTL:           10 * time.Minute,
		Downloader:          DefaultDownloaderConfig(),
		Scheduler:           DefaultSchedulerConfig(),
		Weights:             service.DefaultScoreWeights(),
	}
}

// Deps are the collaborators of the cache
type Deps struct {
	Transport  port.Transport
	FS         port.FileSystem
	Meta       *metastore.Store
	Gate       port.DeviceGate
	Feedback   port.FeedbackRepository // optional
	Dispatcher event.EventDispatcher   // optional
}

// Result is the outcome of GetOrFetch
type Result struct {
	URL       string          `json:"url"`
	Key       domain.CacheKey `json:"cache_key"`
	Path      string          `json:"path,omitempty"`
	Size      int64           `json:"size"`
	FromCache bool            `json:"from_cache"`

	// Degraded results carry no local file; play from URL instead
	Degraded bool  `json:"degraded"`
	Reason   error `json:"-"`
}

// Location returns the local path, or the source URL for a degraded result
func (r *Result) Location() string {
	if r.Degraded || r.Path == "" {
		return r.URL
	}
	return r.Path
}

// Cacher is the entry point of the audio cache.
// One mutex serializes the pending map, eviction passes and admin operations.
type Cacher struct {
	config     *Config
	fs         port.FileSystem
	meta       *metastore.Store
	gate       port.DeviceGate
	feedback   port.FeedbackRepository
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	downloader *Downloader
	evictor    *Evictor
	scheduler  *Scheduler
	space      *SpaceManager
	progress   *broadcaster
	rejected   *gocache.Cache

	mu      sync.Mutex
	pending map[domain.CacheKey]*pendingRequest
	baseCtx context.Context
	stopAll context.CancelFunc

	runMu   sync.Mutex
	running bool
}

// New creates a new Cacher
func New(cfg *Config, deps Deps, logger *zap.Logger) *Cacher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = event.NullDispatcher{}
	}
	if cfg.Weights == (service.ScoreWeights{}) {
		cfg.Weights = service.DefaultScoreWeights()
	}

	// A single file may never exceed the whole cache
	dlCfg := cfg.Downloader
	if dlCfg.MaxFileSize <= 0 || dlCfg.MaxFileSize > cfg.MaxSizeBytes {
		dlCfg.MaxFileSize = cfg.MaxSizeBytes
	}

	c := &Cacher{
		config:     cfg,
		fs:         deps.FS,
		meta:       deps.Meta,
		gate:       deps.Gate,
		feedback:   deps.Feedback,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		progress:   newBroadcaster(),
		pending:    make(map[domain.CacheKey]*pendingRequest),
	}
	c.baseCtx, c.stopAll = context.WithCancel(context.Background())

	if cfg.RejectTTL > 0 {
		c.rejected = gocache.New(cfg.RejectTTL, 2*cfg.RejectTTL)
	}

	policy := service.NewCachePolicy(cfg.MaxSizeBytes, cfg.LowWaterRatio)
	var feedback port.FeedbackSource
	if deps.Feedback != nil {
		feedback = deps.Feedback
	}

	c.downloader = NewDownloader(dlCfg, deps.Transport, deps.FS, deps.Meta, deps.Gate, logger)
	c.evictor = NewEvictor(deps.Meta, deps.FS, policy, service.NewEvictionScorer(cfg.Weights), feedback, deps.Dispatcher, logger)
	c.space = NewSpaceManager(deps.FS, deps.Meta, cfg.MaxSizeBytes, cfg.MaxDiskUsagePercent, logger)
	c.downloader.SetSpaceGuard(c.space, c.makeRoom)
	c.scheduler = NewScheduler(cfg.Scheduler, deps.Gate, c.runRequest, c.complete, logger)

	return c
}

// Start loads metadata, reconciles it with the cache directory and starts
// the scheduler
func (c *Cacher) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("cacher already running")
	}
	c.running = true

	loaded := c.meta.Load()

	// No transfer is running yet, so every temp file is stale
	if removed, err := c.fs.CleanOldTempFiles(0); err != nil {
		c.logger.Warn("failed to clean temp files", zap.Error(err))
	} else if removed > 0 {
		c.logger.Info("removed stale temp files", zap.Int("count", removed))
	}

	if _, err := c.Reconcile(); err != nil {
		c.logger.Warn("startup reconcile failed", zap.Error(err))
	}

	if err := c.scheduler.Start(ctx); err != nil {
		return err
	}

	c.logger.Info("cacher started",
		zap.Int("entries_loaded", loaded),
		zap.Int64("cache_bytes", c.meta.TotalBytes()),
		zap.Int64("max_cache_bytes", c.config.MaxSizeBytes))
	return nil
}

// Stop cancels every transfer and resolves all waiting callers
func (c *Cacher) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return
	}
	c.running = false

	c.stopAll()
	c.scheduler.Stop()
	c.progress.close()
	c.logger.Info("cacher stopped")
}

// GetOrFetch returns a local file for rawURL, downloading it if needed.
// Callers for a key that is already being fetched share that transfer.
// A normal-priority call the device does not allow returns a deferred error
// and leaves the request queued. Timeouts and queue drops yield a degraded
// result pointing at the source URL.
func (c *Cacher) GetOrFetch(ctx context.Context, rawURL string, highPriority, forceRefresh bool) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	key := domain.KeyFor(rawURL)
	importance := domain.DefaultImportance
	if highPriority {
		importance = domain.HighImportance
	}

	c.mu.Lock()
	if !forceRefresh {
		if res := c.lookupLocked(key, rawURL, highPriority); res != nil {
			c.mu.Unlock()
			c.dispatcher.Dispatch(event.NewCacheHit(key, rawURL))
			return res, nil
		}
		if c.isRejected(key) {
			c.mu.Unlock()
			return nil, domain.NewFetchError(domain.KindInvalidContent, rawURL,
				fmt.Errorf("%w: rejected recently", domain.ErrInvalidContent))
		}
	}

	req, attached := c.pending[key]
	if attached {
		req.waiters++
		if highPriority && !req.high {
			c.scheduler.Promote(key, importance)
		}
		c.logger.Debug("attached to pending request",
			zap.String("url", rawURL),
			zap.String("id", req.id),
			zap.Int("waiters", req.waiters))
	} else {
		if forceRefresh {
			c.forgetRejected(key)
		}
		req = newPendingRequest(c.baseCtx, rawURL, key, highPriority, importance)
		req.waiters = 1
		if err := c.enqueueLocked(req); err != nil {
			c.mu.Unlock()
			res, err := c.resultFor(rawURL, key, nil, err)
			if forceRefresh {
				return c.refreshFallback(key, rawURL, highPriority, res, err)
			}
			return res, err
		}
	}
	deferred := !req.high && !c.gate.CanTransfer(false)
	c.mu.Unlock()

	var res *Result
	var err error
	if deferred {
		c.detach(req)
		c.dispatcher.Dispatch(event.NewDownloadDeferred(key, rawURL))
		err = domain.NewFetchError(domain.KindDeferred, rawURL, domain.ErrDeferred)
	} else {
		res, err = c.wait(ctx, req)
	}

	if forceRefresh {
		return c.refreshFallback(key, rawURL, highPriority, res, err)
	}
	return res, err
}

// refreshFallback serves the file still cached for key when a forced
// refresh produced no new file. Caller cancellation is returned as is.
func (c *Cacher) refreshFallback(key domain.CacheKey, rawURL string, highPriority bool, res *Result, err error) (*Result, error) {
	reason := err
	switch {
	case err != nil && domain.IsKind(err, domain.KindCancelled):
		return res, err
	case err == nil && (res == nil || !res.Degraded):
		return res, err
	case err == nil:
		reason = res.Reason
	}

	c.mu.Lock()
	cached := c.lookupLocked(key, rawURL, highPriority)
	c.mu.Unlock()
	if cached == nil {
		return res, err
	}

	c.logger.Info("refresh failed, serving cached file",
		zap.String("url", rawURL),
		zap.Error(reason))
	return cached, nil
}

// Prefetch queues a best-effort download and returns its progress stream.
// Returns nil when the URL is cached, already pending, recently rejected,
// not allowed by the device, or refused by the full queue.
func (c *Cacher) Prefetch(rawURL string, importance domain.Importance) *ProgressStream {
	rawURL = strings.TrimSpace(rawURL)
	if validateURL(rawURL) != nil {
		return nil
	}
	key := domain.KeyFor(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.meta.Contains(key) && c.fs.Exists(c.fs.PathFor(key)) {
		return nil
	}
	if _, ok := c.pending[key]; ok {
		return nil
	}
	if c.isRejected(key) || !c.gate.CanTransfer(false) {
		return nil
	}

	req := newPendingRequest(c.baseCtx, rawURL, key, false, importance)
	req.background = true
	stream := req.progress.subscribe()
	if err := c.enqueueLocked(req); err != nil {
		stream.Close()
		return nil
	}
	return stream
}

// Cancel aborts the pending request for rawURL.
// A queued request is resolved at once; a running one stops at its next chunk.
func (c *Cacher) Cancel(rawURL string) bool {
	key := domain.KeyFor(rawURL)

	c.mu.Lock()
	req, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if queued := c.scheduler.Remove(key); queued != nil {
		delete(c.pending, key)
		c.mu.Unlock()
		req.resolve(nil, domain.NewFetchError(domain.KindCancelled, req.url, domain.ErrCancelled))
		c.logger.Info("queued request cancelled", zap.String("url", req.url))
		return true
	}
	c.mu.Unlock()

	req.cancel()
	c.logger.Info("transfer cancelled", zap.String("url", req.url))
	return true
}

// Delete removes the cached file for rawURL and cancels a pending transfer.
// Returns ErrNotCached when there was nothing to remove.
func (c *Cacher) Delete(rawURL string) error {
	key := domain.KeyFor(strings.TrimSpace(rawURL))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.forgetRejected(key)

	req, pending := c.pending[key]
	if pending {
		req.discard = true
		if queued := c.scheduler.Remove(key); queued != nil {
			delete(c.pending, key)
			req.resolve(nil, domain.NewFetchError(domain.KindCancelled, req.url, domain.ErrCancelled))
		} else {
			req.cancel()
		}
	}

	entry := c.meta.Get(key)
	if entry == nil {
		if pending {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrNotCached, rawURL)
	}
	return c.evictor.Remove(entry)
}

// EvictAll removes every cached file not attached to a pending request.
// With preserveHighPriority, high-importance entries are kept.
func (c *Cacher) EvictAll(preserveHighPriority bool) EvictionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictor.EvictAll(c.baseCtx, preserveHighPriority, c.protectedLocked())
}

// EvictIfNeeded runs a size-pressure pass when above the high-water mark
func (c *Cacher) EvictIfNeeded() EvictionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictor.EvictIfNeeded(c.baseCtx, c.protectedLocked())
}

// EvictToLowWater drains the cache to the low-water mark regardless of the
// high-water trigger
func (c *Cacher) EvictToLowWater() EvictionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictor.EvictToTarget(c.baseCtx, c.evictor.policy.LowWaterMark(), c.protectedLocked())
}

// SweepExpired deletes entries older than the configured maximum age
func (c *Cacher) SweepExpired() EvictionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictor.SweepExpired(c.baseCtx, c.config.MaxAge, c.protectedLocked())
}

// Reconcile aligns metadata with the files in the cache directory
func (c *Cacher) Reconcile() (metastore.ReconcileReport, error) {
	listedAt := time.Now()
	files, err := c.fs.ListCached()
	if err != nil {
		return metastore.ReconcileReport{}, fmt.Errorf("list cache directory: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	report := c.meta.Reconcile(files, listedAt)
	if len(report.Removed) > 0 || report.Adopted > 0 || report.Resized > 0 {
		c.logger.Info("metadata reconciled",
			zap.Int("removed", len(report.Removed)),
			zap.Int("adopted", report.Adopted),
			zap.Int("resized", report.Resized))
	}
	c.evictor.EvictIfNeeded(c.baseCtx, c.protectedLocked())
	return report, nil
}

// RecordFeedback stores an external feedback signal for rawURL.
// The feedback store is a soft dependency; its failure is logged only.
func (c *Cacher) RecordFeedback(ctx context.Context, rawURL string, liked bool, importance *domain.Importance) error {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return err
	}
	key := domain.KeyFor(rawURL)

	if c.feedback != nil {
		soft.Do(c.logger, "record feedback", func() error {
			return c.feedback.SetLiked(ctx, rawURL, liked)
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.meta.SetLiked(key, liked) == nil {
		return nil
	}
	if importance != nil {
		c.meta.Touch(key, &domain.FeedbackSignal{Liked: liked, Importance: importance})
	}
	return nil
}

// CacheSizeBytes returns the bytes held by cached files
func (c *Cacher) CacheSizeBytes() int64 {
	return c.meta.TotalBytes()
}

// AvailableBudgetBytes returns the bytes that can still be cached
func (c *Cacher) AvailableBudgetBytes() int64 {
	return c.space.AvailableBudgetOrCacheLimit()
}

// SubscribeProgress returns a stream of progress events for all transfers
func (c *Cacher) SubscribeProgress() *ProgressStream {
	return c.progress.subscribe()
}

// Stats returns cache statistics
func (c *Cacher) Stats() domain.CacheStats {
	entries := c.meta.All()
	stats := domain.CacheStats{
		EntryCount:      len(entries),
		CachedSizeBytes: c.meta.TotalBytes(),
		MaxCacheBytes:   c.config.MaxSizeBytes,
		AvailableBytes:  c.AvailableBudgetBytes(),
		Queue:           c.scheduler.Stats(),
	}
	for _, e := range entries {
		if e.Liked {
			stats.LikedCount++
		}
		if e.Importance.IsHigh() {
			stats.HighImportance++
		}
	}

	c.mu.Lock()
	stats.InFlight = len(c.pending)
	c.mu.Unlock()
	return stats
}

// QueuedURLs returns queued URLs in the order they will start
func (c *Cacher) QueuedURLs() []string {
	return c.scheduler.Queued()
}

// Entries returns copies of every cached entry
func (c *Cacher) Entries() []*domain.CacheEntry {
	return c.meta.All()
}

// lookupLocked serves a cache hit. An entry whose file vanished is dropped.
func (c *Cacher) lookupLocked(key domain.CacheKey, rawURL string, highPriority bool) *Result {
	entry := c.meta.Get(key)
	if entry == nil {
		return nil
	}
	path := c.fs.PathFor(key)
	if !c.fs.Exists(path) {
		c.logger.Warn("cached file missing, dropping entry",
			zap.String("url", rawURL),
			zap.String("path", path))
		c.meta.Remove(key)
		return nil
	}

	var signal *domain.FeedbackSignal
	if highPriority {
		high := domain.HighImportance
		signal = &domain.FeedbackSignal{Importance: &high}
	}
	c.meta.Touch(key, signal)

	return &Result{
		URL:       rawURL,
		Key:       key,
		Path:      path,
		Size:      entry.FileSizeBytes,
		FromCache: true,
	}
}

// enqueueLocked registers req and hands it to the scheduler
func (c *Cacher) enqueueLocked(req *pendingRequest) error {
	displaced, err := c.scheduler.Enqueue(req)
	if err != nil {
		req.cancel()
		if errors.Is(err, domain.ErrQueueFull) {
			c.logger.Debug("request dropped, queue full",
				zap.String("url", req.url),
				zap.Int("importance", int(req.importance)))
			c.dispatcher.Dispatch(event.NewRequestDropped(req.key, req.url, req.importance))
			return domain.NewFetchError(domain.KindQueueFull, req.url, err)
		}
		return err
	}
	c.pending[req.key] = req

	if displaced != nil {
		delete(c.pending, displaced.key)
		displaced.resolve(nil, domain.NewFetchError(domain.KindQueueFull, displaced.url, domain.ErrQueueFull))
		c.dispatcher.Dispatch(event.NewRequestDropped(displaced.key, displaced.url, displaced.importance))
	}
	return nil
}

func (c *Cacher) wait(ctx context.Context, req *pendingRequest) (*Result, error) {
	var timeout <-chan time.Time
	if c.config.FetchTimeout > 0 {
		timer := time.NewTimer(c.config.FetchTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-req.done:
		return c.resultFor(req.url, req.key, req.result, req.err)
	case <-ctx.Done():
		c.release(req)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return c.degraded(req.url, req.key, domain.NewFetchError(domain.KindTimeout, req.url, ctx.Err())), nil
		}
		return nil, domain.NewFetchError(domain.KindCancelled, req.url, ctx.Err())
	case <-timeout:
		c.release(req)
		return c.degraded(req.url, req.key, domain.NewFetchError(domain.KindTimeout, req.url,
			fmt.Errorf("no file after %s", c.config.FetchTimeout))), nil
	}
}

// release detaches a caller that gives up waiting. The transfer keeps
// running while another caller or a progress subscriber still wants it.
func (c *Cacher) release(req *pendingRequest) {
	c.mu.Lock()
	if req.waiters > 0 {
		req.waiters--
	}
	if req.background || req.waiters > 0 || req.progress.subscribers() > 0 || c.pending[req.key] != req {
		c.mu.Unlock()
		return
	}
	queued := c.scheduler.Remove(req.key) != nil
	if queued {
		delete(c.pending, req.key)
	}
	c.mu.Unlock()

	c.logger.Debug("no caller left, cancelling transfer",
		zap.String("url", req.url),
		zap.String("id", req.id),
		zap.Bool("queued", queued))
	if queued {
		req.resolve(nil, domain.NewFetchError(domain.KindCancelled, req.url, domain.ErrCancelled))
		return
	}
	req.cancel()
}

func (c *Cacher) detach(req *pendingRequest) {
	c.mu.Lock()
	if req.waiters > 0 {
		req.waiters--
	}
	c.mu.Unlock()
}

// resultFor maps a transfer outcome to the caller contract:
// timeouts and queue drops degrade, other failures are returned
func (c *Cacher) resultFor(rawURL string, key domain.CacheKey, result *domain.DownloadResult, err error) (*Result, error) {
	if err == nil {
		return &Result{
			URL:  rawURL,
			Key:  key,
			Path: result.CachePath,
			Size: result.BytesWritten,
		}, nil
	}
	if domain.IsKind(err, domain.KindTimeout) || domain.IsKind(err, domain.KindQueueFull) {
		return c.degraded(rawURL, key, err), nil
	}
	return nil, err
}

func (c *Cacher) degraded(rawURL string, key domain.CacheKey, reason error) *Result {
	c.logger.Info("serving source URL instead of cached file",
		zap.String("url", rawURL),
		zap.Error(reason))
	c.dispatcher.Dispatch(event.NewDegradedResult(key, rawURL, reason))
	return &Result{URL: rawURL, Key: key, Degraded: true, Reason: reason}
}

// runRequest is the scheduler's executor hook
func (c *Cacher) runRequest(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error) {
	job := Job{
		URL:          req.url,
		Key:          req.key,
		HighPriority: req.high,
		Importance:   req.importance,
		Progress: func(ev domain.ProgressEvent) {
			req.progress.publish(ev)
			c.progress.publish(ev)
		},
	}

	result, err := c.downloader.Download(ctx, job)
	if domain.IsKind(err, domain.KindDeferred) {
		c.dispatcher.Dispatch(event.NewDownloadDeferred(req.key, req.url))
	}
	return result, err
}

// complete is called by the scheduler once per request that leaves it
func (c *Cacher) complete(req *pendingRequest, result *domain.DownloadResult, err error) {
	var events []event.DomainEvent

	c.mu.Lock()
	if c.pending[req.key] == req {
		delete(c.pending, req.key)
	}

	if err == nil && req.discard {
		if entry := c.meta.Get(req.key); entry != nil {
			_ = c.evictor.Remove(entry)
		}
		result, err = nil, domain.NewFetchError(domain.KindCancelled, req.url, domain.ErrCancelled)
	}

	switch {
	case err == nil:
		events = append(events, event.NewFileDownloaded(req.key, req.url, result, req.high, req.transfer.Duration()))
		c.evictor.EvictIfNeeded(c.baseCtx, c.protectedLocked(req.key))
	case domain.IsKind(err, domain.KindCancelled), errors.Is(err, domain.ErrQueueClosed):
	case domain.IsKind(err, domain.KindQueueFull):
		events = append(events, event.NewRequestDropped(req.key, req.url, req.importance))
	default:
		if domain.IsKind(err, domain.KindInvalidContent) && !c.meta.Contains(req.key) {
			c.markRejected(req.key)
		}
		events = append(events, event.NewDownloadFailed(req.key, req.url, err, attemptsOf(err)))
	}
	c.mu.Unlock()

	req.resolve(result, err)
	for _, ev := range events {
		c.dispatcher.Dispatch(ev)
	}
}

// makeRoom evicts until bytes are freed, sparing keep and pending keys
func (c *Cacher) makeRoom(ctx context.Context, keep domain.CacheKey, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := c.evictor.EvictToTarget(ctx, c.meta.TotalBytes()-bytes, c.protectedLocked(keep))
	c.logger.Debug("made room for download",
		zap.String("key", keep.String()),
		zap.Int("evicted", report.Evicted),
		zap.Int64("freed_bytes", report.FreedBytes))
}

// protectedLocked returns the keys eviction must not touch
func (c *Cacher) protectedLocked(extra ...domain.CacheKey) map[domain.CacheKey]bool {
	protected := make(map[domain.CacheKey]bool, len(c.pending)+len(extra))
	for key := range c.pending {
		protected[key] = true
	}
	for _, key := range extra {
		protected[key] = true
	}
	return protected
}

func (c *Cacher) isRejected(key domain.CacheKey) bool {
	if c.rejected == nil {
		return false
	}
	_, ok := c.rejected.Get(string(key))
	return ok
}

func (c *Cacher) markRejected(key domain.CacheKey) {
	if c.rejected != nil {
		c.rejected.SetDefault(string(key), struct{}{})
	}
}

func (c *Cacher) forgetRejected(key domain.CacheKey) {
	if c.rejected != nil {
		c.rejected.Delete(string(key))
	}
}

func attemptsOf(err error) int {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return fe.Attempts
	}
	return 0
}

// validateURL accepts absolute URLs with a scheme and a host
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: url %q", domain.ErrInvalidInput, rawURL)
	}
	return nil
}
