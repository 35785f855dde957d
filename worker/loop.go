package worker

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrBrokerClosed means the broker went away while the loop was consuming.
// The process is expected to exit non-zero and be restarted by its
// supervisor.
var ErrBrokerClosed = errors.New("broker connection closed")

type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) Outcome
}

// Loop feeds deliveries to a Handler one at a time and stops after maxJobs
// of them so the supervisor can start a fresh process.
type Loop struct {
	handler Handler
	maxJobs int
	logger  *zap.Logger
}

// NewLoop builds a loop. maxJobs <= 0 disables the recycle limit.
func NewLoop(h Handler, maxJobs int, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{handler: h, maxJobs: maxJobs, logger: logger.Named("loop")}
}

// Run consumes until the job limit is reached, ctx is cancelled or the broker
// goes away. It returns the number of jobs handled. A job that has started is
// always finished and acknowledged, even when ctx is cancelled meanwhile.
// closed may be nil.
func (l *Loop) Run(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) (int, error) {
	jobCtx := context.WithoutCancel(ctx)
	handled := 0
	failed := 0

	for l.maxJobs <= 0 || handled < l.maxJobs {
		select {
		case <-ctx.Done():
			l.logger.Info("shutdown requested", zap.Int("handled", handled))
			return handled, nil

		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return handled, ErrBrokerClosed
			}
			return handled, fmt.Errorf("%w: %s", ErrBrokerClosed, amqpErr.Error())

		case d, ok := <-deliveries:
			if !ok {
				return handled, ErrBrokerClosed
			}
			out := l.handler.Handle(jobCtx, d)
			handled++
			if out.Failed() {
				failed++
			}
		}
	}

	l.logger.Info("job limit reached, recycling",
		zap.Int("handled", handled),
		zap.Int("failed", failed),
	)
	return handled, nil
}
