package interceptor

import (
	"context"
	"fmt"
	"time"
)

// WindowCounter is an atomic, expiring counter shared across processes.
// internal/cache.Manager implements it on Redis.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// SharedWindowLimiter is a fixed window limiter whose counts live in a
// WindowCounter. Windows are aligned to the epoch so every process agrees on
// their boundaries.
type SharedWindowLimiter struct {
	counter     WindowCounter
	name        string
	maxRequests int
	window      time.Duration
	clock       Clock
}

// NewSharedWindowLimiter creates a limiter counting under the given name.
func NewSharedWindowLimiter(counter WindowCounter, name string, maxRequests int, window time.Duration, clock Clock) *SharedWindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &SharedWindowLimiter{
		counter:     counter,
		name:        name,
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
	}
}

// Allow implements Limiter.
func (l *SharedWindowLimiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := l.clock()
	slot := now.UnixMilli() / l.window.Milliseconds()
	windowEnd := time.UnixMilli((slot + 1) * l.window.Milliseconds())

	n, err := l.counter.IncrWindow(ctx, fmt.Sprintf("ratelimit:%s:%d", l.name, slot), l.window)
	if err != nil {
		return false, 0, err
	}
	if n > int64(l.maxRequests) {
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}
