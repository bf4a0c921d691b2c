package port

import (
	"context"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// DeviceStateProvider supplies connectivity and power readings
type DeviceStateProvider interface {
	// Current returns the latest reading
	Current(ctx context.Context) (domain.DeviceState, error)

	// Watch streams readings until ctx is done
	// Providers without change notification may return a nil channel
	Watch(ctx context.Context) (<-chan domain.DeviceState, error)
}

// DeviceGate is the admission predicate consumed by the scheduler and executor
type DeviceGate interface {
	// CanTransfer reports whether a transfer of the given priority may run now
	CanTransfer(highPriority bool) bool

	// Subscribe returns a channel signalled when normal-priority transfers
	// become allowed again, and a func to unsubscribe
	Subscribe() (<-chan struct{}, func())
}
