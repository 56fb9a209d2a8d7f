package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// ExponentialRetryPolicy bounds static fetch attempts and spaces them with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts tries. A zero baseDelay
// retries immediately.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    5 * time.Second,
	}
}

// MaxAttempts returns the attempt limit.
func (p *ExponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows attempt. Every failure class is retried
// until the limit; only cancellation of the caller's context stops early.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Backoff returns the wait duration before the attempt following attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if p.baseDelay <= 0 {
		return 0
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
