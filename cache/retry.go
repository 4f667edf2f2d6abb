package cache

import (
	"context"
	"time"
)

const maxRetryDelay = 30 * time.Second

// backoff doubles the base delay per attempt up to maxRetryDelay.
type backoff struct {
	base time.Duration
}

func newBackoff(base time.Duration) backoff {
	if base < 0 {
		base = 0
	}
	return backoff{base: base}
}

// forAttempt returns the delay before retry number attempt+1 (0-indexed).
func (b backoff) forAttempt(attempt int) time.Duration {
	if b.base == 0 {
		return 0
	}
	if attempt > 16 {
		return maxRetryDelay
	}
	delay := b.base << uint(attempt)
	if delay <= 0 || delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
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
