package generator

import (
	"context"

	"github.com/caseforge/engine/pkg/logger"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the content-generation retry loop.
const DefaultMaxAttempts = 3

// RetryPolicy retries a fallible operation immediately, with no delay between
// attempts. Intermediate failures are logged; only the last one is returned.
type RetryPolicy struct {
	MaxAttempts int
}

// NewRetryPolicy returns a policy with the default attempt bound.
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

// Do runs fn up to MaxAttempts times, stopping on the first success or on
// context cancellation.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn()
		if last == nil {
			return nil
		}
		if i < attempts {
			logger.L().Warn("operation failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", i),
				zap.Int("max_attempts", attempts),
				zap.Error(last),
			)
		}
	}
	return last
}
