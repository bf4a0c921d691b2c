package cacher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

func drain(s *ProgressStream) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := newBroadcaster()
	s1 := b.subscribe()
	s2 := b.subscribe()
	require.Equal(t, 2, b.subscribers())

	key := domain.KeyFor("https://x/a.mp3")
	b.publish(domain.NewProgressEvent("https://x/a.mp3", key, 50, 100, false))
	b.publish(domain.NewProgressEvent("https://x/a.mp3", key, 100, 100, false))
	b.close()

	for _, s := range []*ProgressStream{s1, s2} {
		events := drain(s)
		require.Len(t, events, 2)
		assert.Equal(t, 0.5, events[0].Fraction)
		assert.Equal(t, 1.0, events[1].Fraction)
	}
}

func TestBroadcaster_CloseStream(t *testing.T) {
	b := newBroadcaster()
	s := b.subscribe()
	s.Close()
	s.Close()
	assert.Equal(t, 0, b.subscribers())
	assert.Empty(t, drain(s))

	// Publishing after a subscriber left is harmless
	b.publish(domain.ProgressEvent{})
	b.close()
	b.close()
}

func TestBroadcaster_LateSubscriberIsEnded(t *testing.T) {
	b := newBroadcaster()
	b.close()

	s := b.subscribe()
	_, open := <-s.Events()
	assert.False(t, open)
	s.Close()
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := newBroadcaster()
	s := b.subscribe()

	for i := 0; i < progressBuffer*2; i++ {
		b.publish(domain.ProgressEvent{BytesReceived: int64(i)})
	}
	b.close()

	events := drain(s)
	assert.Len(t, events, progressBuffer)
	assert.Equal(t, int64(0), events[0].BytesReceived)
}

func TestProgressStream_NilClose(t *testing.T) {
	var s *ProgressStream
	s.Close()
}
