package common

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines a bounded retry loop with a fixed delay between
// attempts. Both the page-fetch loop and the guard's automated recovery
// loop consume the same policy.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs fn up to MaxAttempts times, sleeping Delay between attempts.
// It returns nil on the first success, the last error once attempts are
// exhausted, or the context error if ctx ends while waiting.
func (p RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt < p.MaxAttempts {
			logger.Debug().
				Int("attempt", attempt).
				Int("max_attempts", p.MaxAttempts).
				Err(lastErr).
				Msg("Attempt failed, retrying after delay")

			if p.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.Delay):
				}
			}
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}
