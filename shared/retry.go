package shared

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy is the single retry/backoff policy used across the pipeline:
// the worker's queue reconnect loop, the dispatcher's publish path and the
// price store's batch writes all share one instance instead of carrying
// per-call-site retry loops.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// NewDefaultRetryPolicy returns production-ready retry configuration
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// Backoff returns the delay before the given attempt (1-based), with
// exponential growth and jitter to prevent thundering herds.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// Do executes fn until it succeeds, the error is non-retryable, the context
// is cancelled, or attempts are exhausted.
func (p *RetryPolicy) Do(ctx context.Context, operation string, fn func() error) error {
	logger := logrus.WithFields(logrus.Fields{
		"component": "RetryPolicy",
		"operation": operation,
	})

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := p.Backoff(attempt - 1)
			logger.WithFields(logrus.Fields{
				"attempt":          attempt,
				"backoff_duration": backoff,
			}).Debug("Retrying after backoff")

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s aborted: %w", operation, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			logger.WithError(lastErr).Debug("Error is not retryable, giving up")
			return lastErr
		}

		logger.WithError(lastErr).WithField("attempt", attempt).Debug("Attempt failed")
	}

	logger.WithFields(logrus.Fields{
		"total_attempts": p.MaxAttempts,
		"final_error":    lastErr,
	}).Error("Operation failed after all retry attempts")

	return fmt.Errorf("%s failed after %d attempts: %w", operation, p.MaxAttempts, lastErr)
}
