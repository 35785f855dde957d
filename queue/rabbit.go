// Package queue wraps the RabbitMQ connection the worker consumes from and
// the intake endpoint publishes to.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"documentgenerator/config"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Client owns one connection and one channel.
type Client struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	ttl    time.Duration
	tag    string
	logger *zap.Logger

	consuming bool
}

// Connect dials the broker, waiting as long as it takes for it to come up.
// It only fails when ctx is cancelled or the channel cannot be opened.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("queue")
	logger.Info("waiting for rabbitmq", zap.String("addr", cfg.BrokerAddr()))

	url := cfg.AMQPURL()
	conn, err := Retry(ctx, cfg.RabbitRetryDelay, logger, func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}

	return &Client{
		conn:   conn,
		ch:     ch,
		queue:  cfg.Queue,
		ttl:    cfg.QueueTTL,
		tag:    cfg.ConsumerTag,
		logger: logger,
	}, nil
}

// DeclareQueue declares the durable job queue with its message TTL. Safe to
// call on every start as long as the arguments do not change.
func (c *Client) DeclareQueue() error {
	_, err := c.ch.QueueDeclare(c.queue, true, false, false, false, QueueArgs(c.ttl))
	if err != nil {
		return fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}
	return nil
}

// QueueArgs are the x-arguments the queue is declared with. The TTL is an
// int32 so the declaration matches queues created by older producers.
func QueueArgs(ttl time.Duration) amqp.Table {
	return amqp.Table{"x-message-ttl": int32(ttl.Milliseconds())}
}

// Publish sends body to the job queue through the default exchange as a
// persistent message.
func (c *Client) Publish(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	err := c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return id, nil
}

// Consume starts a manual-ack consumer limited to prefetch unacknowledged
// deliveries.
func (c *Client) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("rabbitmq qos setup failed: %w", err)
	}
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume setup failed: %w", err)
	}
	c.consuming = true
	c.logger.Info("consuming", zap.String("queue", c.queue), zap.Int("prefetch", prefetch))
	return deliveries, nil
}

// NotifyClose fires when the connection goes away.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close cancels the consumer and closes the channel and the connection.
func (c *Client) Close() error {
	if c.consuming {
		_ = c.ch.Cancel(c.tag, false)
	}
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		c.logger.Warn("rabbit channel close failed", zap.Error(err))
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("rabbit connection close failed: %w", err)
	}
	return nil
}
