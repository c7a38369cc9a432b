package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout.
var ErrTimeout = errors.New("operation timed out")

// panicValue carries a panic raised inside the watched goroutine back to the caller.
type panicValue struct {
	value any
}

// WithTimeout runs fn with a deadline. A non-positive timeout disables the
// watchdog and fn runs inline on the caller's goroutine.
//
// When the deadline passes first, WithTimeout returns an error wrapping
// ErrTimeout without waiting for fn; fn keeps its cancelled context and is
// expected to return on its own. A panic inside fn is re-raised on the
// caller's goroutine with the original value.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		err      error
		panicked *panicValue
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{panicked: &panicValue{value: r}}
			}
		}()
		done <- result{err: fn(timeoutCtx)}
	}()

	select {
	case res := <-done:
		if res.panicked != nil {
			panic(res.panicked.value)
		}
		return res.err
	case <-timeoutCtx.Done():
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return timeoutCtx.Err()
	}
}
