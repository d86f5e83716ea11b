package fetch

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between outbound requests.
// WaitIfNeeded blocks until delay has elapsed since the previous call
// returned. Concurrent callers are serialized by a mutex but not queued
// fairly; the crawler issues one request at a time.
type RateLimiter struct {
	delay time.Duration

	mu   sync.Mutex
	last time.Time

	// now and sleep are replaced in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter. A non-positive delay never blocks.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{
		delay: delay,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Delay returns the configured spacing.
func (r *RateLimiter) Delay() time.Duration {
	return r.delay
}

// WaitIfNeeded sleeps for whatever is left of delay since the previous call
// and stamps the call's completion time. It returns ctx.Err() if the context
// ends while waiting; the timestamp is left unchanged in that case.
func (r *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.delay > 0 && !r.last.IsZero() {
		if wait := r.delay - r.now().Sub(r.last); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	r.last = r.now()
	return nil
}

// sleepContext waits for d or until ctx is done.
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
