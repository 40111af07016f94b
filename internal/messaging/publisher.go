package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishTimeout     = 10 * time.Second
	publishMaxAttempts = 3
	publisherAppID     = "epic-engine"
)

// TaskPublisher enqueues generation tasks for the worker.
type TaskPublisher interface {
	PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error
}

//go:generate mockery --name TaskPublisher --output ../mocks --outpkg mocks --case=underscore

type rabbitMQTaskPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQTaskPublisher opens a dedicated channel and declares the task
// queue so publishes cannot race the worker's topology setup.
func NewRabbitMQTaskPublisher(conn *amqp.Connection, logger *zap.Logger) (TaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for task publisher: %w", err)
	}

	if _, err := declareTaskQueue(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare task queue '%s': %w", TaskQueueName, err)
	}

	return &rabbitMQTaskPublisher{
		channel:   ch,
		queueName: TaskQueueName,
		logger:    logger.Named("TaskPublisher"),
	}, nil
}

func (p *rabbitMQTaskPublisher) PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal generation task payload: %w", err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		return err
	}

	p.logger.Info("Generation task published",
		zap.String("taskID", payload.TaskID),
		zap.String("storyID", payload.StoryID),
		zap.Int("arcIndex", payload.ArcIndex),
		zap.Int("count", payload.Count))
	return nil
}

// publishMessage sends a persistent message to the task queue, retrying a few
// times on transient channel errors.
func (p *rabbitMQTaskPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("task publisher channel is not initialized")
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishMaxAttempts; attempt++ {
		err = p.channel.PublishWithContext(pubCtx,
			"",          // exchange (default)
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        publisherAppID,
			})
		if err == nil {
			return nil
		}
		p.logger.Warn("Failed to publish task message, retrying...",
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("failed to publish message to queue '%s' after %d attempts: %w", p.queueName, publishMaxAttempts, err)
}
