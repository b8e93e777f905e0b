package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retry runs op until it succeeds or attempts run out, doubling the delay each time.
func Retry(ctx context.Context, name string, attempts int, initialDelay time.Duration, log *zap.Logger, op func(context.Context) error) error {
	var err error
	delay := initialDelay

	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		log.Warn(fmt.Sprintf("%s failed, retrying...", name),
			zap.Error(err),
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", attempts),
			zap.Duration("nextRetryIn", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
