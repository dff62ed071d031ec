package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func TestDo_SucceedsAfterTwoTimeouts(t *testing.T) {
	var calls int32
	p := Policy{
		MaxAttempts: 3,
		Timeout:     20 * time.Millisecond,
		Backoff:     Constant(time.Millisecond),
	}

	v, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		atomic.AddInt32(&calls, 1)
		if attempt < 3 {
			// Ignore the context entirely; the race must still time out.
			time.Sleep(200 * time.Millisecond)
			return "late", nil
		}
		return "third", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "third" {
		t.Errorf("expected third attempt's result, got %q", v)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	_, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		if attempt == 3 {
			return 0, errPermanent
		}
		return 0, errTransient
	})
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, errPermanent) {
		t.Errorf("expected last error, got %v", err)
	}
}

func TestDo_NonRetryableStopsAfterOneAttempt(t *testing.T) {
	p := Policy{
		MaxAttempts: 3,
		IsRetryable: func(err error) bool { return !errors.Is(err, errPermanent) },
	}

	var calls int
	_, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errPermanent
	})
	if attempts != 1 || calls != 1 {
		t.Errorf("expected exactly 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
	if !errors.Is(err, errPermanent) {
		t.Errorf("expected errPermanent, got %v", err)
	}
}

func TestDo_BackoffAndOnRetry(t *testing.T) {
	var waits []time.Duration
	var retried []int
	p := Policy{
		MaxAttempts: 4,
		Backoff:     Exponential(time.Millisecond, 30*time.Millisecond),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			retried = append(retried, attempt)
			waits = append(waits, wait)
		},
	}

	_, attempts, _ := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		return 0, errTransient
	})

	if attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", attempts)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("expected %d waits, got %d", len(want), len(waits))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], waits[i])
		}
	}
	if len(retried) != 3 || retried[0] != 1 || retried[2] != 3 {
		t.Errorf("unexpected OnRetry attempts: %v", retried)
	}
}

func TestDo_NonRetryableOnLastAttemptKeepsError(t *testing.T) {
	p := Policy{
		MaxAttempts: 2,
		Backoff:     Constant(time.Millisecond),
		IsRetryable: func(err error) bool { return !errors.Is(err, errPermanent) },
	}

	_, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		if attempt == 2 {
			return 0, errPermanent
		}
		return 0, errTransient
	})
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if err != errPermanent {
		t.Errorf("expected bare errPermanent, got %v", err)
	}
}

func TestDo_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Constant(time.Hour),
		OnRetry:     func(int, error, time.Duration) { cancel() },
	}

	start := time.Now()
	_, attempts, err := Do(ctx, p, func(ctx context.Context, attempt int) (int, error) {
		return 0, errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected the wait to end on cancel, took %v", elapsed)
	}
}

func TestDo_ParentCancellationAbortsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Timeout: time.Second}

	var calls int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, attempts, err := Do(ctx, p, func(ctx context.Context, attempt int) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithTimeout_ReportsTimeoutWhenOperationIgnoresContext(t *testing.T) {
	start := time.Now()
	_, err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(500 * time.Millisecond)
		return 1, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected ErrTimeout to wrap DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("expected WithTimeout to return promptly, took %v", elapsed)
	}
}

func TestWithTimeout_PassesResultThrough(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Errorf("expected ok, got %q, %v", v, err)
	}
}

func TestExponential(t *testing.T) {
	b := Exponential(time.Second, 30*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{60, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := b(tt.attempt, nil); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}
