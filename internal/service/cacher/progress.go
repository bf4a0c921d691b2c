package cacher

import (
	"sync"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// progressBuffer is the per-subscriber channel capacity.
// Events for a full subscriber are dropped, never blocking the transfer.
const progressBuffer = 64

// ProgressStream is one subscription to progress events.
// It is not restartable and ends when the source closes or Close is called.
type ProgressStream struct {
	ch     chan domain.ProgressEvent
	b      *broadcaster
	id     uint64
	closed bool
}

// Events returns the channel of progress events; it is closed when the stream ends
func (s *ProgressStream) Events() <-chan domain.ProgressEvent {
	return s.ch
}

// Close detaches the stream; it is safe to call more than once
func (s *ProgressStream) Close() {
	if s == nil {
		return
	}
	s.b.unsubscribe(s)
}

// broadcaster fans progress events out to any number of streams
type broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*ProgressStream
	nextID uint64
	done   bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]*ProgressStream)}
}

// subscribe attaches a new stream; on a closed broadcaster the stream is already ended
func (b *broadcaster) subscribe() *ProgressStream {
	s := &ProgressStream{ch: make(chan domain.ProgressEvent, progressBuffer), b: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		s.closed = true
		close(s.ch)
		return s
	}
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	return s
}

func (b *broadcaster) unsubscribe(s *ProgressStream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s.id)
	close(s.ch)
}

func (b *broadcaster) publish(ev domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// close ends every stream; later subscribers get an ended stream
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.done = true
	for id, s := range b.subs {
		s.closed = true
		close(s.ch)
		delete(b.subs, id)
	}
}

func (b *broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
