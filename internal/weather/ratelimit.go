package weather

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between outbound provider calls.
// One instance is shared by all providers of a process so third-party quotas
// are respected across loggers.
type RateLimiter struct {
	mu       sync.Mutex
	spacing  time.Duration
	lastCall time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter. A spacing <= 0 disables throttling.
func NewRateLimiter(spacing time.Duration) *RateLimiter {
	return &RateLimiter{
		spacing: spacing,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Wait blocks until the next call is allowed and records it as issued.
// Callers are serialized; the lock is held while sleeping.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.spacing > 0 && !r.lastCall.IsZero() {
		if wait := r.spacing - r.now().Sub(r.lastCall); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	r.lastCall = r.now()
	return nil
}

// LastCall returns when the most recent call was let through.
func (r *RateLimiter) LastCall() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCall
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
