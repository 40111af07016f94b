package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"epic-engine/internal/models"
)

// TaskHandler processes one generation task end to end. The consumer decides
// ack or nack from the returned error.
type TaskHandler interface {
	Handle(ctx context.Context, payload GenerationTaskPayload) error
}

// TaskConsumer pulls generation tasks off the durable queue one at a time.
// Chapters of a single story must commit in order, so prefetch stays at 1 and
// each delivery is handled before the next is fetched.
type TaskConsumer struct {
	conn    *amqp.Connection
	handler TaskHandler
	logger  *zap.Logger
	channel *amqp.Channel
	done    chan struct{}
}

func NewTaskConsumer(conn *amqp.Connection, handler TaskHandler, logger *zap.Logger) *TaskConsumer {
	return &TaskConsumer{
		conn:    conn,
		handler: handler,
		logger:  logger.Named("TaskConsumer"),
		done:    make(chan struct{}),
	}
}

// Start declares the task topology and begins consuming. It returns after the
// consume loop goroutine is running.
func (c *TaskConsumer) Start(ctx context.Context) error {
	var err error
	c.channel, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for task consumer: %w", err)
	}

	if err := declareTaskTopology(c.channel); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to declare task topology: %w", err)
	}

	if err := c.channel.Qos(1, 0, false); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		TaskQueueName,
		"epic-worker", // consumer tag
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,
	)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to register task consumer: %w", err)
	}

	c.logger.Info("Task consumer started, waiting for generation tasks...",
		zap.String("queue", TaskQueueName))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Panic recovered in task consumer goroutine", zap.Any("panic", r))
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
					c.logger.Info("Task consumer channel closed, exiting goroutine.")
					return
				}
				c.handleDelivery(ctx, msg)
			case <-ctx.Done():
				c.logger.Info("Context cancelled, stopping task consumer goroutine.")
				return
			}
		}
	}()

	return nil
}

// handleDelivery runs a single task and settles the message. Permanent errors
// and poison messages go straight to the dead-letter queue; transient errors
// get exactly one requeue before following them.
func (c *TaskConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var payload GenerationTaskPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.logger.Error("Failed to unmarshal task message, rejecting to DLQ",
			zap.Error(err),
			zap.String("messageBody", string(msg.Body)))
		_ = msg.Nack(false, false)
		return
	}

	log := c.logger.With(
		zap.String("taskID", payload.TaskID),
		zap.String("storyID", payload.StoryID))

	log.Info("Processing generation task",
		zap.Int("arcIndex", payload.ArcIndex),
		zap.Int("count", payload.Count),
		zap.Bool("redelivered", msg.Redelivered))

	err := c.handler.Handle(ctx, payload)
	if err == nil {
		log.Info("Generation task completed, acknowledging message")
		_ = msg.Ack(false)
		return
	}

	if isPermanentTaskError(err) {
		log.Error("Generation task failed permanently, rejecting to DLQ", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if !msg.Redelivered {
		log.Warn("Generation task failed, requeueing once", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}

	log.Error("Generation task failed after redelivery, rejecting to DLQ", zap.Error(err))
	_ = msg.Nack(false, false)
}

// Stop cancels the subscription and waits for the in-flight task to settle.
func (c *TaskConsumer) Stop() error {
	c.logger.Info("Stopping task consumer...")
	if c.channel != nil {
		if err := c.channel.Cancel("epic-worker", false); err != nil {
			c.logger.Error("Error cancelling task consumer subscription", zap.Error(err))
		}
	}

	select {
	case <-c.done:
		c.logger.Info("Task consumer goroutine finished.")
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for task consumer goroutine to stop.")
	}
	return nil
}

// isPermanentTaskError reports whether retrying the task could ever succeed.
// Validation and ordering failures are deterministic, so redelivery would only
// loop them through the queue again.
func isPermanentTaskError(err error) bool {
	return errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrInvalidPremise) ||
		errors.Is(err, models.ErrArcBoundary) ||
		errors.Is(err, models.ErrOutOfOrder) ||
		errors.Is(err, models.ErrStoryNotFound)
}
