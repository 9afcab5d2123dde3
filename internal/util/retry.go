// ABOUTME: Retry loop with capped exponential backoff and jitter
// ABOUTME: Used by the OpenAI client for embedding and chat requests
package util

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MaxBackoff caps a single backoff delay
const MaxBackoff = 30 * time.Second

// Policy controls Do. A nil Retryable retries every error.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
	Retryable  func(error) bool
	OnRetry    func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, fails with a non-retryable error, ctx ends,
// or MaxRetries retries are spent. A positive Timeout bounds each attempt.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(p.BaseDelay, attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, delay, lastErr)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		attempts++
		err := runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || (p.Retryable != nil && !p.Retryable(err)) {
			break
		}
	}

	return fmt.Errorf("failed after %d attempt(s): %w", attempts, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// CalculateBackoff returns 2^attempt * baseDelay, capped at MaxBackoff,
// with up to 25% jitter either way. attempt <= 0 means no delay.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > MaxBackoff || backoff < 0 {
		backoff = MaxBackoff
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}
