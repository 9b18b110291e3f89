package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after timeout and
// returns as soon as either fn finishes or the deadline passes. A deadline
// error wraps context.DeadlineExceeded and names the operation. A zero
// timeout runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	deadline := fmt.Errorf("%s: %w (limit %v)", name, context.DeadlineExceeded, timeout)
	timeoutCtx, cancel := context.WithTimeoutCause(ctx, timeout, deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && context.Cause(timeoutCtx) == deadline {
			return deadline
		}
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return context.Cause(timeoutCtx)
	}
}
