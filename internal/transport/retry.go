package transport

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/user/feynwatch/pkg/adk"
)

// RetryPolicy controls backoff for poll failures and stream reconnects.
// MaxAttempts of zero means unlimited.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 5 attempts, 3s fixed delay. These are the
// push-stream reconnect defaults.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 3 * time.Second,
		Multiplier:   1.0,
		MaxDelay:     3 * time.Second,
	}
}

// ShouldRetry returns true if the error is retryable and attempt has not
// exceeded MaxAttempts.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return false
	}
	return isRetryable(err)
}

// isRetryable treats an expired session and caller cancellation as
// permanent. Everything else (refused connections, timeouts, 5xx) is worth
// another try.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, adk.ErrSessionNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrQueueClosed) {
		return false
	}
	return true
}

// NextDelay returns the delay before the given attempt (1-indexed):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
