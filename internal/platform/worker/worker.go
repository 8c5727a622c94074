// Package worker provides the loop helpers shared by the feed pollers, the
// history maintenance task and the resolution goroutines: ticker loops,
// context-aware waits, per-call timeouts and panic recovery.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
// The function receives a context that will be canceled after timeout.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logPanic(logger, operation, r)
	}
}

// RecoverPanicAnd recovers from panics, logs them and then runs cleanup.
// cleanup is not called when the function returns normally.
// Use as: defer worker.RecoverPanicAnd(logger, "operation name", release)
func RecoverPanicAnd(logger *zerolog.Logger, operation string, cleanup func()) {
	if r := recover(); r != nil {
		logPanic(logger, operation, r)

		if cleanup != nil {
			cleanup()
		}
	}
}

func logPanic(logger *zerolog.Logger, operation string, r any) {
	getLogger(logger).Error().
		Interface("panic", r).
		Str("operation", operation).
		Bytes("stack", debug.Stack()).
		Msg("recovered from panic")
}
