package cacher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// schedulerHarness records the order requests run and finish in
type schedulerHarness struct {
	mu       sync.Mutex
	started  []string
	finished map[string]error
	done     chan string
	run      func(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error)
}

func newSchedulerHarness() *schedulerHarness {
	return &schedulerHarness{
		finished: make(map[string]error),
		done:     make(chan string, 100),
	}
}

func (h *schedulerHarness) runFunc(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error) {
	h.mu.Lock()
	h.started = append(h.started, req.url)
	run := h.run
	h.mu.Unlock()

	if run != nil {
		return run(ctx, req)
	}
	return &domain.DownloadResult{CachePath: "/cache/" + req.key.String()}, nil
}

func (h *schedulerHarness) doneFunc(req *pendingRequest, result *domain.DownloadResult, err error) {
	h.mu.Lock()
	h.finished[req.url] = err
	h.mu.Unlock()
	h.done <- req.url
}

func (h *schedulerHarness) startedURLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.started...)
}

func (h *schedulerHarness) waitDone(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d requests finished", i, n)
		}
	}
}

func newTestScheduler(cfg SchedulerConfig, gate *fakeGate, h *schedulerHarness) *Scheduler {
	return NewScheduler(cfg, gate, h.runFunc, h.doneFunc, zap.NewNop())
}

func TestScheduler_StartsByImportance(t *testing.T) {
	h := newSchedulerHarness()
	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 1, QueueCapacity: 10}, newFakeGate(true), h)

	for _, imp := range []domain.Importance{3, 9, 5} {
		_, err := s.Enqueue(testRequest(fmt.Sprintf("https://x/%d.mp3", imp), false, imp))
		require.NoError(t, err)
	}

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	h.waitDone(t, 3)

	assert.Equal(t, []string{"https://x/9.mp3", "https://x/5.mp3", "https://x/3.mp3"}, h.startedURLs())
}

func TestScheduler_RespectsConcurrencyCeiling(t *testing.T) {
	h := newSchedulerHarness()
	release := make(chan struct{})

	var mu sync.Mutex
	running, peak := 0, 0
	h.run = func(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return &domain.DownloadResult{}, nil
	}

	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 2, QueueCapacity: 10}, newFakeGate(true), h)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	for i := 0; i < 5; i++ {
		_, err := s.Enqueue(testRequest(fmt.Sprintf("https://x/%d.mp3", i), false, 5))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return s.Stats().ActiveCount == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, s.Stats().QueuedCount)

	close(release)
	h.waitDone(t, 5)
	assert.Equal(t, 2, peak)
}

func TestScheduler_HighPriorityUsesBurstSlot(t *testing.T) {
	h := newSchedulerHarness()
	release := make(chan struct{})
	h.run = func(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error) {
		<-release
		return &domain.DownloadResult{}, nil
	}

	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 1, HighPriorityBurst: 1, QueueCapacity: 10}, newFakeGate(true), h)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.Enqueue(testRequest("https://x/normal.mp3", false, 5))
	require.NoError(t, err)
	_, err = s.Enqueue(testRequest("https://x/normal2.mp3", false, 5))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Stats().ActiveCount == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = s.Enqueue(testRequest("https://x/now.mp3", true, domain.HighImportance))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.IsActive(domain.KeyFor("https://x/now.mp3")) }, 2*time.Second, 5*time.Millisecond)

	stats := s.Stats()
	assert.Equal(t, 2, stats.ActiveCount)
	assert.Equal(t, 1, stats.QueuedCount, "normal work still waits for a regular slot")

	close(release)
	h.waitDone(t, 3)
}

func TestScheduler_DeviceGateResumesWithoutEnqueue(t *testing.T) {
	h := newSchedulerHarness()
	gate := newFakeGate(false)
	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 2, QueueCapacity: 10}, gate, h)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.Enqueue(testRequest("https://x/a.mp3", false, 5))
	require.NoError(t, err)
	_, err = s.Enqueue(testRequest("https://x/b.mp3", false, 5))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.startedURLs(), "nothing starts while the device disallows transfers")

	gate.Set(true, true)
	h.waitDone(t, 2)
	assert.Len(t, h.startedURLs(), 2)
}

func TestScheduler_HighPrioritySkipsBatteryGate(t *testing.T) {
	h := newSchedulerHarness()
	gate := newFakeGate(true)
	gate.Set(false, true) // low battery: only high priority allowed
	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 1, QueueCapacity: 10}, gate, h)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.Enqueue(testRequest("https://x/normal.mp3", false, 9))
	require.NoError(t, err)
	_, err = s.Enqueue(testRequest("https://x/high.mp3", true, 1))
	require.NoError(t, err)

	h.waitDone(t, 1)
	assert.Equal(t, []string{"https://x/high.mp3"}, h.startedURLs())
	assert.Equal(t, 1, s.Stats().QueuedCount)
}

func TestScheduler_DeferredIsRequeued(t *testing.T) {
	h := newSchedulerHarness()
	var calls int
	var mu sync.Mutex
	h.run = func(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, domain.NewFetchError(domain.KindDeferred, req.url, domain.ErrDeferred)
		}
		return &domain.DownloadResult{CachePath: "/cache/a"}, nil
	}

	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 1, QueueCapacity: 10}, newFakeGate(true), h)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	req := testRequest("https://x/a.mp3", false, 5)
	_, err := s.Enqueue(req)
	require.NoError(t, err)

	h.waitDone(t, 1)
	assert.Len(t, h.startedURLs(), 2)
	assert.NoError(t, h.finished["https://x/a.mp3"])
	assert.Equal(t, int64(1), s.Stats().Deferred)
	assert.Equal(t, domain.TransferSucceeded, req.transfer.State)
}

func TestScheduler_QueueFullAccounting(t *testing.T) {
	h := newSchedulerHarness()
	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 1, QueueCapacity: 1}, newFakeGate(true), h)

	_, err := s.Enqueue(testRequest("https://x/a.mp3", false, 5))
	require.NoError(t, err)

	_, err = s.Enqueue(testRequest("https://x/b.mp3", false, 3))
	assert.True(t, errors.Is(err, domain.ErrQueueFull))

	displaced, err := s.Enqueue(testRequest("https://x/c.mp3", false, 7))
	require.NoError(t, err)
	require.NotNil(t, displaced)
	assert.Equal(t, "https://x/a.mp3", displaced.url)
	assert.Equal(t, domain.TransferCancelled, displaced.transfer.State)

	assert.Equal(t, int64(2), s.Stats().Dropped)
	assert.Equal(t, []string{"https://x/c.mp3"}, s.Queued())
}

func TestScheduler_StopResolvesQueued(t *testing.T) {
	h := newSchedulerHarness()
	gate := newFakeGate(false)
	s := newTestScheduler(SchedulerConfig{MaxConcurrent: 1, QueueCapacity: 10}, gate, h)
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Enqueue(testRequest("https://x/a.mp3", false, 5))
	require.NoError(t, err)

	s.Stop()
	h.waitDone(t, 1)
	assert.True(t, errors.Is(h.finished["https://x/a.mp3"], domain.ErrQueueClosed))

	_, err = s.Enqueue(testRequest("https://x/b.mp3", false, 5))
	assert.True(t, errors.Is(err, domain.ErrQueueClosed))
}
