package cacher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// SchedulerConfig contains queue and admission configuration
type SchedulerConfig struct {
	MaxConcurrent     int
	HighPriorityBurst int
	QueueCapacity     int
	TieBreak          TieBreak
}

// DefaultSchedulerConfig returns default queue and admission configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:     3,
		HighPriorityBurst: 1,
		QueueCapacity:     50,
		TieBreak:          TieBreakNewest,
	}
}

// runFunc executes one admitted request
type runFunc func(ctx context.Context, req *pendingRequest) (*domain.DownloadResult, error)

// doneFunc receives every request that leaves the scheduler for good.
// It is never called with the scheduler lock held.
type doneFunc func(req *pendingRequest, result *domain.DownloadResult, err error)

type finished struct {
	req    *pendingRequest
	result *domain.DownloadResult
	err    error
}

// Scheduler owns the request queue and the pool of running transfers.
// A single admission loop starts queued work while concurrency and the
// device gate allow it.
type Scheduler struct {
	cfg    SchedulerConfig
	gate   port.DeviceGate
	run    runFunc
	onDone doneFunc
	logger *zap.Logger

	mu       sync.Mutex
	queue    *requestQueue
	active   map[domain.CacheKey]*pendingRequest
	dropped  int64
	deferred int64
	closed   bool

	kick chan struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopWg  sync.WaitGroup
	workWg  sync.WaitGroup
}

// NewScheduler creates a new Scheduler
func NewScheduler(cfg SchedulerConfig, gate port.DeviceGate, run runFunc, onDone doneFunc, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.HighPriorityBurst < 0 {
		cfg.HighPriorityBurst = 0
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = TieBreakNewest
	}
	return &Scheduler{
		cfg:    cfg,
		gate:   gate,
		run:    run,
		onDone: onDone,
		logger: logger,
		queue:  newRequestQueue(cfg.QueueCapacity, cfg.TieBreak),
		active: make(map[domain.CacheKey]*pendingRequest),
		kick:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request and wakes the admission loop.
// A displaced lower-importance request is returned so the caller can
// resolve it; the caller owns resolving it.
func (s *Scheduler) Enqueue(req *pendingRequest) (*pendingRequest, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrQueueClosed
	}
	displaced, err := s.queue.push(req)
	if errors.Is(err, domain.ErrQueueFull) || displaced != nil {
		s.dropped++
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if displaced != nil {
		s.logger.Info("queued request displaced by a more important one",
			zap.String("dropped_url", displaced.url),
			zap.Int("dropped_importance", int(displaced.importance)),
			zap.String("url", req.url),
			zap.Int("importance", int(req.importance)))
		_ = displaced.transfer.Transition(domain.TransferCancelled)
	}

	s.signal()
	return displaced, nil
}

// Remove drops a queued request that has not started yet
func (s *Scheduler) Remove(key domain.CacheKey) *pendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.queue.remove(key)
	if req != nil {
		_ = req.transfer.Transition(domain.TransferCancelled)
	}
	return req
}

// Promote moves a queued request to the high-priority tier
func (s *Scheduler) Promote(key domain.CacheKey, importance domain.Importance) bool {
	s.mu.Lock()
	ok := s.queue.promote(key, importance)
	s.mu.Unlock()

	if ok {
		s.signal()
	}
	return ok
}

// IsActive reports whether a transfer for key is running
func (s *Scheduler) IsActive(key domain.CacheKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

// Queued returns the queued requests' URLs in admission order
func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.queue.ordered()
	urls := make([]string, len(ordered))
	for i, req := range ordered {
		urls[i] = req.url
	}
	return urls
}

// Stats returns queue statistics
func (s *Scheduler) Stats() domain.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.QueueStats{
		QueuedCount:       s.queue.len(),
		HighPriorityCount: s.queue.highLen(),
		ActiveCount:       len(s.active),
		MaxConcurrent:     s.cfg.MaxConcurrent,
		Dropped:           s.dropped,
		Deferred:          s.deferred,
	}
}

// Start starts the admission loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)

	s.loopWg.Add(1)
	go s.loop(ctx)

	s.logger.Info("scheduler started",
		zap.Int("max_concurrent", s.cfg.MaxConcurrent),
		zap.Int("high_priority_burst", s.cfg.HighPriorityBurst),
		zap.Int("queue_capacity", s.cfg.QueueCapacity),
		zap.String("tie_break", string(s.cfg.TieBreak)))
	return nil
}

// Stop closes the queue, resolves queued requests with ErrQueueClosed and
// waits for running transfers, which the caller must have cancelled.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	if s.running {
		s.cancel()
		s.running = false
	}
	s.runMu.Unlock()
	s.loopWg.Wait()

	s.mu.Lock()
	s.closed = true
	var drained []finished
	for s.queue.len() > 0 {
		req := s.queue.pop()
		_ = req.transfer.Transition(domain.TransferCancelled)
		drained = append(drained, finished{req: req, err: domain.ErrQueueClosed})
	}
	s.mu.Unlock()

	for _, f := range drained {
		s.onDone(f.req, nil, f.err)
	}
	s.workWg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWg.Done()

	resume, unsubscribe := s.gate.Subscribe()
	defer unsubscribe()

	for {
		s.admit()

		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		case <-resume:
			s.logger.Debug("device allows transfers again, resuming queue")
		}
	}
}

// admit starts queued requests while limits allow.
// High-priority requests may use the burst slots and skip battery gating.
func (s *Scheduler) admit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.queue.len() > 0 && !s.closed {
		next := s.queue.peek()
		if next.high {
			if len(s.active) >= s.cfg.MaxConcurrent+s.cfg.HighPriorityBurst || !s.gate.CanTransfer(true) {
				return
			}
		} else if len(s.active) >= s.cfg.MaxConcurrent || !s.gate.CanTransfer(false) {
			return
		}

		s.queue.pop()
		s.active[next.key] = next
		_ = next.transfer.Transition(domain.TransferInFlight)

		s.logger.Debug("transfer admitted",
			zap.String("id", next.id),
			zap.String("url", next.url),
			zap.Bool("high_priority", next.high),
			zap.Int("importance", int(next.importance)),
			zap.Int("active", len(s.active)))

		s.workWg.Add(1)
		go s.execute(next)
	}
}

func (s *Scheduler) execute(req *pendingRequest) {
	defer s.workWg.Done()

	result, err := s.run(req.ctx, req)

	var done []finished
	s.mu.Lock()
	delete(s.active, req.key)
	switch {
	case err == nil:
		_ = req.transfer.Transition(domain.TransferSucceeded)
		done = append(done, finished{req: req, result: result})
	case domain.IsKind(err, domain.KindDeferred) && req.ctx.Err() == nil && !s.closed:
		s.deferred++
		req.transfer.Fail(err)
		displaced, qerr := s.queue.push(req)
		if qerr != nil {
			s.dropped++
			_ = req.transfer.Transition(domain.TransferCancelled)
			done = append(done, finished{req: req, err: domain.NewFetchError(domain.KindQueueFull, req.url, domain.ErrQueueFull)})
		}
		if displaced != nil {
			s.dropped++
			_ = displaced.transfer.Transition(domain.TransferCancelled)
			done = append(done, finished{req: displaced, err: domain.NewFetchError(domain.KindQueueFull, displaced.url, domain.ErrQueueFull)})
		}
	default:
		req.transfer.Fail(err)
		done = append(done, finished{req: req, err: err})
	}
	s.mu.Unlock()

	for _, f := range done {
		s.onDone(f.req, f.result, f.err)
	}
	s.signal()
}
