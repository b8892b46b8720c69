// Package retry provides a bounded retry combinator with a fixed delay
// between attempts.
//
// Every failure is retried the same way; there is no retryable/permanent
// classification. After the last attempt the final error is returned as is.
package retry

import (
	"context"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 100 * time.Millisecond
)

// Policy configures Do.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// Delay is the fixed wait between two attempts.
	Delay time.Duration
}

// DefaultPolicy returns three attempts spaced 100ms apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

// OnRetryFunc is called before each retry. attempt is the 1-indexed number of
// the attempt that just failed.
type OnRetryFunc func(attempt int, err error)

// Do calls fn until it succeeds or MaxAttempts calls have failed, waiting
// Delay between calls. A MaxAttempts below 1 is treated as 1.
//
// If ctx is done while waiting, the last failure is returned.
func Do[T any](ctx context.Context, p Policy, onRetry OnRetryFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= attempts {
			return result, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if !wait(ctx, p.Delay) {
			return result, err
		}
	}
}

// DoVoid is Do for functions without a result.
func DoVoid(ctx context.Context, p Policy, onRetry OnRetryFunc, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
