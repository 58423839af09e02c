package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/logging"
)

// withRetry runs a read-path operation, retrying network failures with a
// linear backoff. Other failures are returned at once.
func withRetry[T any](ctx context.Context, e *Engine, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := e.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = fn(ctx)
		if err == nil || !errors.IsRetryable(err) || attempt >= attempts {
			break
		}

		delay := time.Duration(attempt) * e.retry.Backoff
		e.logger.Warn("retrying after network failure",
			logging.Op(op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", delay),
			logging.Err(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil && errors.IsRetryable(err) && attempts > 1 {
		e.logger.Error("giving up after retries", logging.Op(op), slog.Int("attempts", attempts), logging.Err(err))
	}
	return result, err
}

// retryErr is withRetry for operations without a result.
func retryErr(ctx context.Context, e *Engine, op string, fn func(context.Context) error) error {
	_, err := withRetry(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
