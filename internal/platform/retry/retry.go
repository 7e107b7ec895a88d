// Package retry runs provider calls under a bounded exponential-backoff policy.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	DefaultMaxAttempts = 4
	DefaultBackoffBase = 2.0
)

// Policy describes how often and how patiently an operation is retried.
//
// The delay before attempt n+1 is BackoffBase**n seconds, so the defaults wait
// 2s, 4s and 8s before attempts 2, 3 and 4.
type Policy struct {
	MaxAttempts int
	BackoffBase float64

	// Sleep blocks for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Retryable decides whether err deserves another attempt. Nil retries everything.
	Retryable func(err error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BackoffBase: DefaultBackoffBase}
}

// Delay returns the wait that follows the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	secs := math.Pow(base, float64(attempt))
	return time.Duration(secs * float64(time.Second))
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Do calls op until it succeeds, the attempt budget is spent, the error is not
// retryable, or ctx is done. The last error is returned as-is.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxAttempts := p.attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == maxAttempts || errors.Is(err, context.Canceled) {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
