package resilience

import (
	"context"
	"fmt"
	"time"
)

type outcome[T any] struct {
	val T
	err error
}

// Within runs fn under a deadline of d and returns as soon as either fn
// finishes or the deadline passes. fn keeps running on its cancelled
// context after an early return, so it must honour ctx. A non-positive d
// calls fn directly.
//
// An elapsed deadline is reported as a wrapped context.DeadlineExceeded;
// cancellation of ctx itself is returned unchanged.
func Within[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(dctx)
		done <- outcome[T]{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		if o.err != nil && dctx.Err() != nil && ctx.Err() == nil {
			return zero, fmt.Errorf("%w after %v", context.DeadlineExceeded, d)
		}
		return o.val, o.err
	case <-dctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %v", context.DeadlineExceeded, d)
	}
}
