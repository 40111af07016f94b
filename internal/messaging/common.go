package messaging

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange and queue names.
const (
	TaskQueueName        = "epic_generation_tasks"
	TaskDLXName          = "epic_generation_tasks_dlx"
	TaskDLQName          = "epic_generation_tasks_dlq"
	DLQRoutingKey        = "dlq"
	ProgressExchangeName = "story_progress_events"
)

const (
	connectMaxAttempts = 50
	connectRetryDelay  = 3 * time.Second
)

// ConnectRabbitMQ dials the broker with retries so services can start before
// RabbitMQ finishes booting.
func ConnectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for attempt := 1; attempt <= connectMaxAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", connectMaxAttempts),
			zap.Error(err))
		time.Sleep(connectRetryDelay)
	}
	return nil, err
}

// declareTaskQueue declares the durable task queue with its dead-letter
// routing. Publisher and consumer both declare it with identical arguments,
// whichever side starts first wins.
func declareTaskQueue(ch *amqp.Channel) (amqp.Queue, error) {
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    TaskDLXName,
		"x-dead-letter-routing-key": DLQRoutingKey,
	}
	return ch.QueueDeclare(
		TaskQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
}

// declareTaskTopology sets up the dead-letter exchange and queue and then the
// task queue itself. The worker calls this before consuming so rejected
// messages have somewhere to land.
func declareTaskTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		TaskDLXName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		TaskDLQName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if err := ch.QueueBind(TaskDLQName, DLQRoutingKey, TaskDLXName, false, nil); err != nil {
		return err
	}

	_, err := declareTaskQueue(ch)
	return err
}
