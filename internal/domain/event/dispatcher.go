package event

import (
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
}

// InMemoryDispatcher delivers events synchronously to registered handlers.
// Handler errors are logged and never propagate to the publisher.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	wildcard := d.handlers["*"]
	combined := make([]EventHandler, 0, len(named)+len(wildcard))
	combined = append(combined, named...)
	combined = append(combined, wildcard...)
	d.mu.RUnlock()

	for _, handler := range combined {
		if err := handler.Handle(event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event", event.EventName()),
				zap.Error(err))
		}
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// Dispatch does nothing
func (NullDispatcher) Dispatch(event DomainEvent) {}

// Subscribe does nothing
func (NullDispatcher) Subscribe(handler EventHandler) {}
