package crawler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 0)
	failure := errors.New("boom")
	if !p.ShouldRetry(failure, 1) || !p.ShouldRetry(failure, 2) {
		t.Fatal("expected retries before the limit")
	}
	if p.ShouldRetry(failure, 3) {
		t.Fatal("expected no retry at the limit")
	}
	if p.ShouldRetry(nil, 1) {
		t.Fatal("expected no retry without an error")
	}
	if p.ShouldRetry(context.Canceled, 1) {
		t.Fatal("expected no retry after cancellation")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	if d := NewExponentialRetryPolicy(3, 0).Backoff(1); d != 0 {
		t.Fatalf("Backoff() = %v, want 0", d)
	}
	p := NewExponentialRetryPolicy(5, 100*time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Backoff(attempt)
		if d < 0 || d > 5*time.Second {
			t.Fatalf("Backoff(%d) = %v out of range", attempt, d)
		}
	}
	if NewExponentialRetryPolicy(0, 0).MaxAttempts() != 1 {
		t.Fatal("expected attempt floor of 1")
	}
}
