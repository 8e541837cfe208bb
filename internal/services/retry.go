package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/train-reservation/pkg/logger"
)

// RetryPolicy bounds how often a transaction that failed for a transient
// reason is attempted again.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Millisecond,
	}
}

// run executes op until it succeeds or fails permanently. Delays grow as
// BaseDelay, 2*BaseDelay, 4*BaseDelay. When the retries are spent the last
// error is wrapped in ErrUnavailable.
func (p RetryPolicy) run(ctx context.Context, name string, onRetry func(), op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if isPermanent(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err

		if attempt < p.MaxRetries {
			if onRetry != nil {
				onRetry()
			}
			delay := p.BaseDelay * time.Duration(1<<attempt)
			logger.Debug("transient failure, retrying", "op", name, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	logger.Warn("retries exhausted", "op", name, "attempts", p.MaxRetries+1, "error", lastErr)
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnavailable, name, p.MaxRetries+1, lastErr)
}
