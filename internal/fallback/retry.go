// internal/fallback/retry.go
package fallback

import (
	"context"
	"time"

	"github.com/valpere/ResilientFetch/internal/utils"
)

// RetryStrategy wraps an arbitrary operation with bounded attempts and capped
// exponential backoff. It is not part of the fallback chain itself: callers
// who want the primary retried wrap it explicitly before handing it to the
// manager.
type RetryStrategy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      utils.Logger
}

// NewRetryStrategy builds the wrapper from manager configuration.
func NewRetryStrategy(cfg *Config, logger utils.Logger) *RetryStrategy {
	return &RetryStrategy{
		maxAttempts: cfg.MaxRetryAttempts,
		baseDelay:   cfg.BaseRetryDelay,
		maxDelay:    cfg.MaxRetryDelay,
		logger:      logger.WithField("component", "retry"),
	}
}

// ExecuteWithRetry runs op up to maxAttempts times, sleeping
// baseDelay * 2^(attempt-1) between failures, capped at the configured
// maximum delay. The sleep is interruptible: cancellation aborts the wait,
// not just the counting. After the budget is spent the last error is returned
// as RETRY_BUDGET_EXCEEDED.
func (r *RetryStrategy) ExecuteWithRetry(ctx context.Context, op PrimaryOp) ([]byte, error) {
	var lastErr error

	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, err := op(ctx)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		r.logger.Debugf("attempt %d/%d failed: %v", attempt, r.maxAttempts, err)

		if attempt == r.maxAttempts {
			break
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if r.maxDelay > 0 && delay > r.maxDelay {
			delay = r.maxDelay
		}
	}

	return nil, wrapError(lastErr, ErrCodeRetryBudgetExceeded,
		"all %d attempts failed", r.maxAttempts)
}

// Wrap returns a PrimaryOp that applies the retry policy around op, so the
// manager sees a single cancellable operation.
func (r *RetryStrategy) Wrap(op PrimaryOp) PrimaryOp {
	return func(ctx context.Context) ([]byte, error) {
		return r.ExecuteWithRetry(ctx, op)
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
