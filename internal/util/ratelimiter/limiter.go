package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows one action per interval and is safe for concurrent use.
// A denied call does not consume the next slot.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	lim      *rate.Limiter
}

// New creates a new rate limiter with the specified interval.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		lim:      rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Allow reports whether an action may run now.
// When denied it also returns how long until the next slot opens.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	r := l.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, l.interval
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// ByteThrottle caps a byte stream to a steady rate.
// A nil *ByteThrottle never waits.
type ByteThrottle struct {
	lim *rate.Limiter
}

// NewByteThrottle creates a throttle for bytesPerSecond.
// Returns nil when bytesPerSecond is not positive.
func NewByteThrottle(bytesPerSecond int64) *ByteThrottle {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if burst < 64*1024 {
		burst = 64 * 1024
	}
	return &ByteThrottle{lim: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// WaitN blocks until n bytes may pass or ctx is done
func (t *ByteThrottle) WaitN(ctx context.Context, n int) error {
	if t == nil {
		return nil
	}
	burst := t.lim.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := t.lim.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
