package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// Config holds device gating configuration
type Config struct {
	MinBatteryPercent int
	RequireUnmetered  bool
	PollInterval      time.Duration
}

// DefaultConfig returns default device gating configuration
func DefaultConfig() Config {
	return Config{
		MinBatteryPercent: 15,
		PollInterval:      30 * time.Second,
	}
}

// Monitor tracks device state and decides whether transfers may run.
// When the provider fails, transfers are allowed.
type Monitor struct {
	cfg      Config
	provider port.DeviceStateProvider
	logger   *zap.Logger

	mu           sync.RWMutex
	state        domain.DeviceState
	providerDown bool
	subs         map[int]chan struct{}
	nextSub      int

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Monitor
func New(cfg Config, provider port.DeviceStateProvider, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		state:    domain.UnknownDeviceState(),
		subs:     make(map[int]chan struct{}),
	}
}

// CanTransfer reports whether a transfer of the given priority may run now
func (m *Monitor) CanTransfer(highPriority bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allowedLocked(highPriority)
}

func (m *Monitor) allowedLocked(highPriority bool) bool {
	if m.providerDown {
		return true
	}
	s := m.state
	if !s.Connectivity.IsOnline() {
		return false
	}
	if highPriority {
		return true
	}
	if !s.IsCharging && s.BatteryPercent < m.cfg.MinBatteryPercent {
		return false
	}
	if m.cfg.RequireUnmetered && s.Connectivity.IsMetered() {
		return false
	}
	return true
}

// State returns the last known device state
func (m *Monitor) State() domain.DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel signalled each time transfers of either
// priority become allowed again, and a func to unsubscribe
func (m *Monitor) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Refresh reads the provider once and applies the result
func (m *Monitor) Refresh(ctx context.Context) {
	state, err := m.provider.Current(ctx)
	if err != nil {
		m.markDown(err)
		return
	}
	m.Update(state)
}

// Update applies a new reading
func (m *Monitor) Update(state domain.DeviceState) {
	m.mu.Lock()
	before, beforeHigh := m.allowedLocked(false), m.allowedLocked(true)
	wasDown := m.providerDown
	m.state = state
	m.providerDown = false
	after, afterHigh := m.allowedLocked(false), m.allowedLocked(true)
	subs := m.snapshotSubsLocked((!before && after) || (!beforeHigh && afterHigh))
	m.mu.Unlock()

	if wasDown {
		m.logger.Info("device state provider recovered")
	}
	if before != after {
		m.logger.Info("device transfer gate changed",
			zap.Bool("allowed", after),
			zap.String("connectivity", string(state.Connectivity)),
			zap.Int("battery_percent", state.BatteryPercent),
			zap.Bool("charging", state.IsCharging))
	}
	notify(subs)
}

func (m *Monitor) markDown(err error) {
	m.mu.Lock()
	if m.providerDown {
		m.mu.Unlock()
		return
	}
	before, beforeHigh := m.allowedLocked(false), m.allowedLocked(true)
	m.providerDown = true
	subs := m.snapshotSubsLocked(!before || !beforeHigh)
	m.mu.Unlock()

	// Logged once per outage
	m.logger.Warn("device state unavailable, allowing transfers", zap.Error(err))
	notify(subs)
}

func (m *Monitor) snapshotSubsLocked(fire bool) []chan struct{} {
	if !fire {
		return nil
	}
	subs := make([]chan struct{}, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	return subs
}

func notify(subs []chan struct{}) {
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Start reads the initial state and follows provider updates
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.runMu.Unlock()

	m.Refresh(ctx)

	updates, err := m.provider.Watch(ctx)
	if err != nil {
		m.logger.Warn("device state watch unavailable, polling only", zap.Error(err))
		updates = nil
	}

	m.wg.Add(1)
	go m.loop(ctx, updates)

	m.logger.Info("device monitor started",
		zap.Int("min_battery_percent", m.cfg.MinBatteryPercent),
		zap.Bool("require_unmetered", m.cfg.RequireUnmetered),
		zap.Duration("poll_interval", m.cfg.PollInterval))
	return nil
}

func (m *Monitor) loop(ctx context.Context, updates <-chan domain.DeviceState) {
	defer m.wg.Done()

	var tick <-chan time.Time
	if m.cfg.PollInterval > 0 {
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			m.Update(state)
		case <-tick:
			m.Refresh(ctx)
		}
	}
}

// Stop stops following provider updates
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.runMu.Unlock()

	m.wg.Wait()
	m.logger.Info("device monitor stopped")
}
