package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestRateLimiter_RealClock tests spacing between two immediate calls.
func TestRateLimiter_RealClock(t *testing.T) {
	t.Parallel()

	const delay = 200 * time.Millisecond
	rl := NewRateLimiter(delay)
	ctx := context.Background()

	if err := rl.WaitIfNeeded(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := time.Now()
	if err := rl.WaitIfNeeded(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gap := time.Since(first); gap < delay {
		t.Errorf("expected at least %v between calls, got %v", delay, gap)
	}
}

// TestRateLimiter_FakeClock tests the computed wait with an injected clock.
func TestRateLimiter_FakeClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		delay    time.Duration
		advance  time.Duration
		wantWait time.Duration
	}{
		{name: "immediate second call waits the full delay", delay: time.Second, advance: 0, wantWait: time.Second},
		{name: "partial elapsed waits the rest", delay: time.Second, advance: 300 * time.Millisecond, wantWait: 700 * time.Millisecond},
		{name: "delay already elapsed does not wait", delay: time.Second, advance: 2 * time.Second, wantWait: 0},
		{name: "zero delay never waits", delay: 0, advance: 0, wantWait: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			var slept time.Duration
			rl := NewRateLimiter(tt.delay)
			rl.now = func() time.Time { return now }
			rl.sleep = func(_ context.Context, d time.Duration) error {
				slept += d
				now = now.Add(d)
				return nil
			}

			ctx := context.Background()
			if err := rl.WaitIfNeeded(ctx); err != nil {
				t.Fatal(err)
			}
			if slept != 0 {
				t.Fatalf("first call must not wait, slept %v", slept)
			}

			now = now.Add(tt.advance)
			if err := rl.WaitIfNeeded(ctx); err != nil {
				t.Fatal(err)
			}
			if slept != tt.wantWait {
				t.Errorf("expected wait %v, got %v", tt.wantWait, slept)
			}
		})
	}
}

// TestRateLimiter_Canceled tests that a canceled context aborts the wait.
func TestRateLimiter_Canceled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(time.Hour)
	if err := rl.WaitIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rl.WaitIfNeeded(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
