package cacher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
	"github.com/vertextoedge/audio-fetch-cache/internal/util/ratelimiter"
)

// DownloaderConfig contains download executor configuration
type DownloaderConfig struct {
	MaxAttempts            int
	RetryDelay             time.Duration
	TransferTimeout        time.Duration
	HighPriorityChunkSize  int
	LowPriorityChunkSize   int
	LowPriorityBytesPerSec int64
	MaxFileSize            int64
	AllowedContentTypes    []string
}

// DefaultDownloaderConfig returns default download executor configuration
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		MaxAttempts:           3,
		RetryDelay:            2 * time.Second,
		TransferTimeout:       120 * time.Second,
		HighPriorityChunkSize: 256 * 1024,
		LowPriorityChunkSize:  32 * 1024,
		MaxFileSize:           200 * 1024 * 1024,
		AllowedContentTypes:   DefaultAllowedContentTypes(),
	}
}

// Job is one transfer handed to the executor
type Job struct {
	URL          string
	Key          domain.CacheKey
	HighPriority bool
	Importance   domain.Importance
	Progress     func(domain.ProgressEvent)
}

// RoomMaker frees at least bytes of cache space without touching keep
type RoomMaker func(ctx context.Context, keep domain.CacheKey, bytes int64)

// Downloader streams a remote file into the cache directory
type Downloader struct {
	cfg       DownloaderConfig
	transport port.Transport
	fs        port.FileSystem
	meta      *metastore.Store
	gate      port.DeviceGate
	validator *Validator
	throttle  *ratelimiter.ByteThrottle
	logger    *zap.Logger

	space    port.SpaceManager
	makeRoom RoomMaker
}

// NewDownloader creates a new Downloader
func NewDownloader(
	cfg DownloaderConfig,
	transport port.Transport,
	fs port.FileSystem,
	meta *metastore.Store,
	gate port.DeviceGate,
	logger *zap.Logger,
) *Downloader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.HighPriorityChunkSize <= 0 {
		cfg.HighPriorityChunkSize = 256 * 1024
	}
	if cfg.LowPriorityChunkSize <= 0 {
		cfg.LowPriorityChunkSize = 32 * 1024
	}

	return &Downloader{
		cfg:       cfg,
		transport: transport,
		fs:        fs,
		meta:      meta,
		gate:      gate,
		validator: NewValidator(cfg.MaxFileSize, cfg.AllowedContentTypes),
		throttle:  ratelimiter.NewByteThrottle(cfg.LowPriorityBytesPerSec),
		logger:    logger,
	}
}

// SetSpaceGuard makes transfers with a declared length check the space
// budget first, calling makeRoom once when it is short
func (d *Downloader) SetSpaceGuard(space port.SpaceManager, makeRoom RoomMaker) {
	d.space = space
	d.makeRoom = makeRoom
}

// Download fetches job.URL, validates it and commits it under job.Key.
// A normal-priority job that the device gate refuses fails fast with a
// deferred error. Every failure is a *domain.FetchError.
func (d *Downloader) Download(ctx context.Context, job Job) (*domain.DownloadResult, error) {
	if !job.HighPriority && !d.gate.CanTransfer(false) {
		return nil, d.deferred(job, 0)
	}

	parent := ctx
	if d.cfg.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TransferTimeout)
		defer cancel()
	}

	d.logger.Debug("downloading file",
		zap.String("url", job.URL),
		zap.String("key", job.Key.String()),
		zap.Bool("high_priority", job.HighPriority))

	var lastErr error
	attempts := 0
	for attempts < d.cfg.MaxAttempts {
		if attempts > 0 {
			delay := d.cfg.RetryDelay
			if after, ok := domain.GetRetryAfter(lastErr); ok && after > delay {
				delay = after
			}
			d.logger.Info("retrying download",
				zap.String("url", job.URL),
				zap.Int("attempt", attempts+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			if !sleepCtx(ctx, delay) {
				break
			}
			if !d.gate.CanTransfer(job.HighPriority) {
				if !job.HighPriority {
					return nil, d.deferred(job, attempts)
				}
				break
			}
		}

		attempts++
		result, err := d.attempt(ctx, job)
		if err == nil {
			result.Attempts = attempts
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil || !domain.IsRetryable(err) {
			break
		}
	}

	err := d.finalError(parent, ctx, job.URL, lastErr, attempts)
	d.logger.Warn("download failed",
		zap.String("url", job.URL),
		zap.Int("attempts", attempts),
		zap.Error(err))
	return nil, err
}

func (d *Downloader) attempt(ctx context.Context, job Job) (*domain.DownloadResult, error) {
	resp, err := d.transport.Get(ctx, job.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := d.validator.CheckDeclared(resp.ContentType, resp.ContentLength); err != nil {
		return nil, domain.NewFetchError(domain.KindInvalidContent, job.URL, err)
	}
	if err := d.ensureSpace(ctx, job, resp.ContentLength); err != nil {
		return nil, err
	}

	tmp, err := d.fs.CreateTemp(job.Key)
	if err != nil {
		return nil, domain.NewFetchError(domain.KindStorage, job.URL, fmt.Errorf("create temp file: %w", err))
	}
	tempPath := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		tmp.Close()
		if err := d.fs.Remove(tempPath); err != nil {
			d.logger.Warn("failed to remove temp file",
				zap.String("path", tempPath),
				zap.Error(err))
		}
	}()

	chunkSize := d.cfg.LowPriorityChunkSize
	if job.HighPriority {
		chunkSize = d.cfg.HighPriorityChunkSize
	}
	buf := make([]byte, chunkSize)
	head := make([]byte, 0, sniffLen)
	total := resp.ContentLength
	var written int64

	for {
		// Chunk boundary is the cancellation checkpoint
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if len(head) < sniffLen {
				head = append(head, buf[:min(n, sniffLen-len(head))]...)
			}
			if err := d.validator.CheckSize(written + int64(n)); err != nil {
				return nil, domain.NewFetchError(domain.KindInvalidContent, job.URL, err)
			}
			if !job.HighPriority {
				if err := d.throttle.WaitN(ctx, n); err != nil {
					return nil, err
				}
			}
			if _, err := tmp.Write(buf[:n]); err != nil {
				return nil, domain.NewFetchError(domain.KindStorage, job.URL, fmt.Errorf("write temp file: %w", err))
			}
			written += int64(n)
			if job.Progress != nil {
				job.Progress(domain.NewProgressEvent(job.URL, job.Key, written, total, job.HighPriority))
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domain.NewFetchError(domain.KindNetwork, job.URL, fmt.Errorf("read body: %w", readErr))
		}
	}

	if total > 0 && written < total {
		return nil, domain.NewFetchError(domain.KindNetwork, job.URL,
			fmt.Errorf("short body: got %d of %d bytes", written, total))
	}
	if written == 0 {
		return nil, domain.NewFetchError(domain.KindInvalidContent, job.URL, domain.ErrEmptyFile)
	}

	signature, err := d.validator.CheckSignature(head)
	if err != nil {
		return nil, domain.NewFetchError(domain.KindInvalidContent, job.URL, err)
	}

	if err := tmp.Close(); err != nil {
		return nil, domain.NewFetchError(domain.KindStorage, job.URL, fmt.Errorf("close temp file: %w", err))
	}
	finalPath, err := d.fs.Commit(tempPath, job.Key)
	if err != nil {
		return nil, domain.NewFetchError(domain.KindStorage, job.URL, fmt.Errorf("commit: %w", err))
	}
	committed = true

	contentType := resp.ContentType
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	entry := domain.NewCacheEntry(job.URL, job.Key, written, contentType, job.Importance)
	if old := d.meta.Get(job.Key); old != nil {
		// A refresh keeps the feedback recorded for the file it replaces
		entry.Liked = old.Liked
		entry.Importance = max(entry.Importance, old.Importance)
	}
	d.meta.Put(entry)

	d.logger.Info("file cached",
		zap.String("url", job.URL),
		zap.String("path", finalPath),
		zap.Int64("size", written),
		zap.String("signature", signature))

	return &domain.DownloadResult{
		CachePath:    finalPath,
		BytesWritten: written,
		ContentType:  contentType,
		Signature:    signature,
	}, nil
}

// ensureSpace checks the budget for a declared length, evicting once if
// it is short. The file being replaced by a refresh does not count.
// Unknown disk usage is not a failure.
func (d *Downloader) ensureSpace(ctx context.Context, job Job, size int64) error {
	if d.space == nil || size <= 0 {
		return nil
	}
	need := size
	if old := d.meta.Get(job.Key); old != nil {
		need -= old.FileSizeBytes
	}
	if need <= 0 {
		return nil
	}

	check, err := d.space.CheckSpace(need)
	if err != nil {
		d.logger.Debug("space check skipped", zap.String("url", job.URL), zap.Error(err))
		return nil
	}
	if check.HasSpace {
		return nil
	}

	if d.makeRoom != nil {
		d.logger.Info("making room for download",
			zap.String("url", job.URL),
			zap.Int64("size", need),
			zap.Int64("available", check.AvailableBytes),
			zap.Bool("limited_by_cache_size", check.LimitedByCacheSize),
			zap.Bool("limited_by_disk_usage", check.LimitedByDiskUsage))
		d.makeRoom(ctx, job.Key, need-check.AvailableBytes)

		ok, err := d.space.HasSpace(need)
		if err != nil || ok {
			return nil
		}
	}

	return domain.NewFetchError(domain.KindStorage, job.URL,
		fmt.Errorf("%w: need %d bytes, %d available", domain.ErrInsufficientSpace, need, check.AvailableBytes))
}

func (d *Downloader) deferred(job Job, attempts int) error {
	d.logger.Debug("download deferred by device state",
		zap.String("url", job.URL),
		zap.Int("attempts", attempts))
	fe := domain.NewFetchError(domain.KindDeferred, job.URL, domain.ErrDeferred)
	fe.Attempts = attempts
	return fe
}

// finalError classifies the outcome of the retry loop.
// Parent cancellation wins over the transfer deadline.
func (d *Downloader) finalError(parent, ctx context.Context, rawURL string, err error, attempts int) error {
	var fe *domain.FetchError
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		fe = domain.NewFetchError(domain.KindCancelled, rawURL, domain.ErrCancelled)
	case ctx.Err() != nil:
		fe = domain.NewFetchError(domain.KindTimeout, rawURL,
			fmt.Errorf("transfer did not finish in time: %w", context.DeadlineExceeded))
	case errors.As(err, &fe):
	case err == nil:
		fe = domain.NewFetchError(domain.KindNetwork, rawURL, errors.New("no attempt made"))
	default:
		fe = domain.NewFetchError(domain.KindStorage, rawURL, err)
	}
	fe.Attempts = attempts
	return fe
}

// sleepCtx waits for d or until ctx is done; returns false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
