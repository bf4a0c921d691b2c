package devicestate

import (
	"context"
	"sync"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// StaticProvider holds a state set in-process.
// Used when no platform signal exists and by the admin API.
type StaticProvider struct {
	mu       sync.Mutex
	state    domain.DeviceState
	err      error
	watchers []chan domain.DeviceState
}

// Ensure StaticProvider implements port.DeviceStateProvider
var _ port.DeviceStateProvider = (*StaticProvider)(nil)

// NewStaticProvider creates a provider reporting state
func NewStaticProvider(state domain.DeviceState) *StaticProvider {
	return &StaticProvider{state: state}
}

// Current returns the last state set
func (p *StaticProvider) Current(ctx context.Context) (domain.DeviceState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return domain.DeviceState{}, p.err
	}
	return p.state, nil
}

// Set replaces the state and notifies watchers
func (p *StaticProvider) Set(state domain.DeviceState) {
	p.mu.Lock()
	p.state = state
	p.err = nil
	watchers := append([]chan domain.DeviceState(nil), p.watchers...)
	p.mu.Unlock()

	for _, w := range watchers {
		// Keep only the newest reading
		select {
		case <-w:
		default:
		}
		select {
		case w <- state:
		default:
		}
	}
}

// Fail makes Current return err until the next Set
func (p *StaticProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Watch streams states passed to Set until ctx is done
func (p *StaticProvider) Watch(ctx context.Context) (<-chan domain.DeviceState, error) {
	ch := make(chan domain.DeviceState, 1)

	p.mu.Lock()
	p.watchers = append(p.watchers, ch)
	p.mu.Unlock()

	out := make(chan domain.DeviceState, 1)
	go func() {
		defer close(out)
		defer p.unwatch(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-ch:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *StaticProvider) unwatch(ch chan domain.DeviceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.watchers {
		if w == ch {
			p.watchers = append(p.watchers[:i], p.watchers[i+1:]...)
			return
		}
	}
}
