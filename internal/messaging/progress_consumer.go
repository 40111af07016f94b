package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ProgressConsumer subscribes to the progress fanout exchange through a
// temporary exclusive queue and hands each event to a callback. The API
// server runs one of these to feed websocket subscribers.
type ProgressConsumer struct {
	conn    *amqp.Connection
	handle  func(ProgressEventPayload)
	logger  *zap.Logger
	done    chan struct{}
	channel *amqp.Channel
}

func NewProgressConsumer(conn *amqp.Connection, handle func(ProgressEventPayload), logger *zap.Logger) *ProgressConsumer {
	return &ProgressConsumer{
		conn:   conn,
		handle: handle,
		logger: logger.Named("ProgressConsumer"),
		done:   make(chan struct{}),
	}
}

// Start binds an auto-generated exclusive queue to the progress exchange and
// begins consuming. Events are auto-acked, losing one is not critical.
func (c *ProgressConsumer) Start(ctx context.Context) error {
	var err error
	c.channel, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for progress consumer: %w", err)
	}

	if err := c.channel.ExchangeDeclare(
		ProgressExchangeName,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to declare progress exchange: %w", err)
	}

	q, err := c.channel.QueueDeclare(
		"",    // name (auto-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to declare exclusive queue for progress events: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, "", ProgressExchangeName, false, nil); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to bind queue to progress exchange: %w", err)
	}

	msgs, err := c.channel.Consume(
		q.Name,
		"",    // consumer tag (auto-generated)
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to register progress consumer: %w", err)
	}

	c.logger.Info("Progress consumer started", zap.String("queue", q.Name))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Panic recovered in progress consumer goroutine", zap.Any("panic", r))
			}
			close(c.done)
			if c.channel != nil {
				_ = c.channel.Close()
			}
		}()

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Info("Progress consumer channel closed, exiting goroutine.")
					return
				}
				c.handleMessage(msg)
			case <-ctx.Done():
				c.logger.Info("Context cancelled, stopping progress consumer goroutine.")
				return
			}
		}
	}()

	return nil
}

func (c *ProgressConsumer) handleMessage(msg amqp.Delivery) {
	var event ProgressEventPayload
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error("Failed to unmarshal progress event",
			zap.Error(err),
			zap.String("messageBody", string(msg.Body)))
		return
	}
	c.handle(event)
}

// Stop cancels the subscription and waits briefly for the goroutine to exit.
func (c *ProgressConsumer) Stop() error {
	c.logger.Info("Stopping progress consumer...")
	if c.channel != nil {
		if err := c.channel.Cancel("", false); err != nil {
			c.logger.Error("Error cancelling progress consumer subscription", zap.Error(err))
		}
	}

	select {
	case <-c.done:
		c.logger.Info("Progress consumer goroutine finished.")
	case <-time.After(5 * time.Second):
		c.logger.Warn("Timeout waiting for progress consumer goroutine to stop.")
	}
	return nil
}
