package resilience

import (
	"context"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. When the deadline fires first the result is an
// ErrTimeout-classified error naming the operation; cancellation of the
// parent context is returned unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is WithTimeout for operations that produce a value. The value only
// travels through the return, so fn must not write caller state: after a
// timeout fn may still be running when Call returns.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	type result struct {
		val T
		err error
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan result, 1)
	go func() {
		val, err := fn(timeoutCtx)
		done <- result{val: val, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && timeoutCtx.Err() == context.DeadlineExceeded {
			return zero, apperrors.Newf(name, apperrors.ErrTimeout, "limit %v: %v", timeout, res.err)
		}
		if res.err != nil {
			return zero, res.err
		}
		return res.val, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, apperrors.Newf(name, apperrors.ErrTimeout, "limit %v", timeout)
	}
}
