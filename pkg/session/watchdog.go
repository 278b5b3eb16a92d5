package session

import (
	"context"
	"time"
)

// withDeadline runs fn under its own deadline. fn runs in a goroutine so a
// dependency that ignores ctx still cannot hold the attempt past d; its late
// result is discarded.
func withDeadline[T any](parent context.Context, stage string, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	timedOut := func() bool {
		return parent.Err() == nil && ctx.Err() == context.DeadlineExceeded
	}

	select {
	case r := <-done:
		if r.err != nil && timedOut() {
			return r.v, &TimeoutError{Stage: stage, After: d}
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if timedOut() {
			return zero, &TimeoutError{Stage: stage, After: d}
		}
		return zero, parent.Err()
	}
}
