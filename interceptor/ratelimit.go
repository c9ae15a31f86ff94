package interceptor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/toolbridge/types"
)

// DefaultRateWindow is the window max_requests_per_minute is counted over.
const DefaultRateWindow = time.Minute

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Limiter decides whether one more request may be dispatched now. When it
// refuses, retryAfter is how long until capacity frees up.
type Limiter interface {
	Allow(ctx context.Context) (allowed bool, retryAfter time.Duration, err error)
}

// RemainingReporter is implemented by in-memory limiters that can report
// how many requests the current window still admits.
type RemainingReporter interface {
	Remaining() int
}

// NewLimiter builds the in-memory limiter for the configured strategy.
func NewLimiter(cfg *types.RateLimitConfig, clock Clock) (Limiter, error) {
	if cfg == nil || cfg.MaxRequestsPerMinute <= 0 {
		return nil, nil
	}
	if clock == nil {
		clock = time.Now
	}
	switch cfg.Strategy {
	case "", types.RateLimitStrategyFixedWindow:
		return NewFixedWindowLimiter(cfg.MaxRequestsPerMinute, DefaultRateWindow, clock), nil
	case types.RateLimitStrategySlidingWindow:
		return NewSlidingWindowLimiter(cfg.MaxRequestsPerMinute, DefaultRateWindow, clock), nil
	case types.RateLimitStrategyTokenBucket:
		return NewTokenBucketLimiter(cfg.MaxRequestsPerMinute, DefaultRateWindow, clock), nil
	}
	return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
}

// RateLimitMiddleware gates dispatch on the limiter. With RateLimitActionWait
// it blocks until the window frees up; otherwise it fails fast with
// RATE_LIMITED.
func RateLimitMiddleware(limiter Limiter, action types.RateLimitAction, sleep Sleeper, logger *zap.Logger) Middleware {
	if sleep == nil {
		sleep = sleepContext
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		if limiter == nil {
			return next
		}
		return func(ctx context.Context, req *Request) (*Response, error) {
			for {
				allowed, retryAfter, err := limiter.Allow(ctx)
				if err != nil {
					return nil, fmt.Errorf("rate limiter: %w", err)
				}
				if allowed {
					return next(ctx, req)
				}
				if action != types.RateLimitActionWait {
					logger.Debug("rate limit exceeded, rejecting", callFields(ctx,
						zap.String("method", req.Method),
						zap.Duration("retry_after", retryAfter),
					)...)
					return nil, types.NewRateLimitError(retryAfter)
				}
				logger.Debug("rate limit exceeded, waiting for window reset", callFields(ctx,
					zap.Duration("wait", retryAfter),
				)...)
				if err := sleep(ctx, retryAfter); err != nil {
					return nil, err
				}
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ====== Fixed Window Limiter ======

// FixedWindowLimiter implements fixed window rate limiting. The window opens
// on the first request after the previous one expired.
type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration
	count       int
	windowStart time.Time
	clock       Clock
	mu          sync.Mutex
}

// NewFixedWindowLimiter creates a new fixed window limiter.
func NewFixedWindowLimiter(maxRequests int, window time.Duration, clock Clock) *FixedWindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
	}
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(context.Context) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.maxRequests {
		return false, l.windowStart.Add(l.window).Sub(now), nil
	}
	l.count++
	return true, 0, nil
}

// Remaining returns the number of remaining requests.
func (l *FixedWindowLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || l.clock().Sub(l.windowStart) >= l.window {
		return l.maxRequests
	}
	return max(l.maxRequests-l.count, 0)
}

// ====== Sliding Window Limiter ======

// SlidingWindowLimiter implements sliding window rate limiting.
type SlidingWindowLimiter struct {
	maxRequests int
	window      time.Duration
	requests    []time.Time
	clock       Clock
	mu          sync.Mutex
}

// NewSlidingWindowLimiter creates a new sliding window limiter.
func NewSlidingWindowLimiter(maxRequests int, window time.Duration, clock Clock) *SlidingWindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make([]time.Time, 0, maxRequests),
		clock:       clock,
	}
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(context.Context) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.evict(now)

	if len(l.requests) >= l.maxRequests {
		// 最早的请求滑出窗口后才有空位
		return false, l.requests[0].Add(l.window).Sub(now), nil
	}
	l.requests = append(l.requests, now)
	return true, 0, nil
}

func (l *SlidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	l.requests = l.requests[i:]
}

// Remaining returns the number of remaining requests.
func (l *SlidingWindowLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.clock())
	return max(l.maxRequests-len(l.requests), 0)
}

// ====== Token Bucket Limiter ======

// TokenBucketLimiter allows bursts up to maxRequests and refills at
// maxRequests per window.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
	clock   Clock
	mu      sync.Mutex
}

// NewTokenBucketLimiter creates a new token bucket limiter.
func NewTokenBucketLimiter(maxRequests int, window time.Duration, clock Clock) *TokenBucketLimiter {
	if clock == nil {
		clock = time.Now
	}
	every := window / time.Duration(maxRequests)
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Every(every), maxRequests),
		clock:   clock,
	}
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(context.Context) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if l.limiter.AllowN(now, 1) {
		return true, 0, nil
	}
	r := l.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay, nil
}

// Remaining returns the number of whole tokens currently available.
func (l *TokenBucketLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(int(l.limiter.TokensAt(l.clock())), 0)
}
