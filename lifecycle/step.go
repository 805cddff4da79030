package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// runStep runs fn under its own timeout. A step that ignores its context
// is abandoned when the deadline passes. Panics are returned as errors.
func runStep[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return runStepDrained(ctx, timeout, fn, nil)
}

// runStepDrained is runStep, except that when the step is abandoned the
// value fn eventually returns is handed to drain.
func runStepDrained[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), drain func(T)) (T, error) {
	var (
		stepCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		stepCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrStepPanicked, r)}
			}
		}()
		v, err := fn(stepCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-stepCtx.Done():
		if drain != nil {
			go func() {
				r := <-done
				drain(r.value)
			}()
		}
		var zero T
		return zero, stepCtx.Err()
	}
}

func runStepErr(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := runStep(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// timedOut reports whether err is a step deadline rather than the caller
// giving up.
func timedOut(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

// classify picks the error kind for a failed step.
func classify(parent context.Context, kind ErrorKind, err error) ErrorKind {
	if timedOut(parent, err) {
		return KindTimedOut
	}
	return kind
}
