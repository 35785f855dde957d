package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retry calls dial until it succeeds, sleeping delay between attempts. There
// is no attempt limit: the worker may start long before the broker does.
// Cancelling ctx is the only way out without a connection.
func Retry[T any](ctx context.Context, delay time.Duration, logger *zap.Logger, dial func() (T, error)) (T, error) {
	for attempt := 1; ; attempt++ {
		v, err := dial()
		if err == nil {
			if attempt > 1 {
				logger.Info("connected", zap.Int("attempt", attempt))
			}
			return v, nil
		}

		logger.Warn("rabbitmq unavailable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
