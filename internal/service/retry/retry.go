// Package retry runs an operation under a per-attempt timeout with
// bounded, classified retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTimeout is returned when an attempt outlives its time limit. It
// wraps context.DeadlineExceeded.
var ErrTimeout = fmt.Errorf("attempt timed out: %w", context.DeadlineExceeded)

// Backoff returns the wait after the given failed attempt (1-based).
type Backoff func(attempt int, err error) time.Duration

// Policy controls Do.
type Policy struct {
	// MaxAttempts is the total number of attempts. Values below 1 mean 1.
	MaxAttempts int
	Backoff     Backoff
	// Timeout bounds each attempt. Zero disables it.
	Timeout time.Duration
	// IsRetryable decides whether a failed attempt is repeated. Nil
	// retries every error.
	IsRetryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// attemptBackOff feeds the failed attempt and its error to a Backoff.
type attemptBackOff struct {
	fn      Backoff
	attempt int
	err     error
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	if b.fn == nil {
		return 0
	}
	return b.fn(b.attempt, b.err)
}

func (b *attemptBackOff) Reset() {}

// Do runs op until it succeeds, fails with a non-retryable error, or
// runs out of attempts. It returns the number of attempts made. The
// error is the last attempt's error, or ctx.Err() when ctx ends first.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := &attemptBackOff{fn: p.Backoff}
	attempts := 0
	operation := func() (T, error) {
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		attempts++
		v, err := runAttempt(ctx, p.Timeout, attempts, op)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, backoff.Permanent(ctxErr)
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		b.attempt, b.err = attempts, err
		return zero, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			p.OnRetry(b.attempt, err, wait)
		}))
	}

	v, err := backoff.Retry(ctx, operation, opts...)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err != nil {
		return zero, attempts, err
	}
	return v, attempts, nil
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, attempt int, op func(context.Context, int) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx, attempt)
	}
	return WithTimeout(ctx, timeout, func(ctx context.Context) (T, error) {
		return op(ctx, attempt)
	})
}

// WithTimeout races fn against a timer. fn gets a context that expires
// with the timer, but WithTimeout returns ErrTimeout on expiry even if fn
// never looks at it. A cancelled parent returns the parent's error.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return r.v, fmt.Errorf("%w: %v", ErrTimeout, r.err)
		}
		return r.v, r.err
	case <-attemptCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrTimeout
	}
}

// Exponential doubles base after every attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int, _ error) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Constant waits d between attempts.
func Constant(d time.Duration) Backoff {
	return func(int, error) time.Duration { return d }
}
