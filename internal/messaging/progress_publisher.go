package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ProgressPublisher broadcasts generation progress to whoever is listening.
// Events are fire-and-forget: subscribers that miss one can re-read the story
// cursor over HTTP.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event ProgressEventPayload) error
}

//go:generate mockery --name ProgressPublisher --output ../mocks --outpkg mocks --case=underscore

type rabbitMQProgressPublisher struct {
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewRabbitMQProgressPublisher opens a channel and declares the fanout
// exchange for progress events.
func NewRabbitMQProgressPublisher(conn *amqp.Connection, logger *zap.Logger) (ProgressPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for progress publisher: %w", err)
	}

	if err := ch.ExchangeDeclare(
		ProgressExchangeName,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare progress exchange '%s': %w", ProgressExchangeName, err)
	}

	return &rabbitMQProgressPublisher{
		channel: ch,
		logger:  logger.Named("ProgressPublisher"),
	}, nil
}

func (p *rabbitMQProgressPublisher) PublishProgress(ctx context.Context, event ProgressEventPayload) error {
	if p.channel == nil {
		return fmt.Errorf("progress publisher channel is not initialized")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for attempt := 1; attempt <= publishMaxAttempts; attempt++ {
		err = p.channel.PublishWithContext(pubCtx,
			ProgressExchangeName,
			"",    // routing key (ignored by fanout)
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
				Timestamp:   time.Now(),
				AppId:       publisherAppID,
			})
		if err == nil {
			p.logger.Debug("Progress event published",
				zap.String("eventType", string(event.EventType)),
				zap.String("storyID", event.StoryID),
				zap.Int("cursor", event.Cursor))
			return nil
		}
		p.logger.Warn("Failed to publish progress event, retrying...",
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("failed to publish progress event after %d attempts: %w", publishMaxAttempts, err)
}
