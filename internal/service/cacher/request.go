package cacher

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// pendingRequest is the single in-flight or queued request for one key.
// Callers asking for the same key attach to it instead of starting another.
type pendingRequest struct {
	id         string
	url        string
	key        domain.CacheKey
	high       bool
	importance domain.Importance
	enqueuedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	progress *broadcaster
	transfer *domain.Transfer

	// guarded by the facade mutex
	waiters    int
	discard    bool // deleted while running; drop the file on success
	background bool // prefetched; runs without waiters

	done   chan struct{}
	result *domain.DownloadResult
	err    error
}

func newPendingRequest(parent context.Context, rawURL string, key domain.CacheKey, high bool, importance domain.Importance) *pendingRequest {
	ctx, cancel := context.WithCancel(parent)
	return &pendingRequest{
		id:         xid.New().String(),
		url:        rawURL,
		key:        key,
		high:       high,
		importance: importance.Clamp(),
		enqueuedAt: time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		progress:   newBroadcaster(),
		transfer:   domain.NewTransfer(rawURL, key, high),
		done:       make(chan struct{}),
	}
}

// resolve publishes the outcome to every waiter; it must be called exactly once
func (r *pendingRequest) resolve(result *domain.DownloadResult, err error) {
	r.result = result
	r.err = err
	r.cancel()
	r.progress.close()
	close(r.done)
}
