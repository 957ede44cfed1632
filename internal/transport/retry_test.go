package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/user/feynwatch/pkg/adk"
)

func TestRetryPolicy(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}

	if !policy.ShouldRetry(errors.New("connection refused"), 1) {
		t.Error("expected connection error to be retryable")
	}
	if policy.ShouldRetry(errors.New("error"), 4) {
		t.Error("should not retry after max attempts")
	}

	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := policy.NextDelay(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestRetryPolicyPermanentErrors(t *testing.T) {
	policy := DefaultRetryPolicy()

	expired := fmt.Errorf("get session s1: %w", adk.ErrSessionNotFound)
	if policy.ShouldRetry(expired, 1) {
		t.Error("expected expired session to be permanent")
	}
	if policy.ShouldRetry(context.Canceled, 1) {
		t.Error("expected cancellation to be permanent")
	}
	if policy.ShouldRetry(nil, 1) {
		t.Error("nil error should not be retryable")
	}
}

func TestRetryPolicyUnlimited(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: time.Second}
	if !policy.ShouldRetry(errors.New("timeout"), 1000) {
		t.Error("expected unlimited attempts when MaxAttempts is zero")
	}
}

func TestRetryPolicyMaxDelayCap(t *testing.T) {
	policy := &RetryPolicy{
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	}
	if got := policy.NextDelay(5); got != 10*time.Second {
		t.Errorf("expected delay capped at 10s, got %v", got)
	}
}

func TestRetryPolicyFixedDelay(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.NextDelay(1) != policy.NextDelay(4) {
		t.Error("expected fixed reconnect delay")
	}
}
