package messaging_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"epic-engine/internal/messaging"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// recordingHandler captures every payload the consumer hands over and returns
// a configured error so the ack path can be steered per test.
type recordingHandler struct {
	got  chan messaging.GenerationTaskPayload
	fail error
}

func (h *recordingHandler) Handle(_ context.Context, payload messaging.GenerationTaskPayload) error {
	h.got <- payload
	return h.fail
}

// MessagingIntegrationTestSuite runs publishers and consumers against a
// disposable RabbitMQ container with the real topology declared.
type MessagingIntegrationTestSuite struct {
	suite.Suite
	rmqContainer *rabbitmq.RabbitMQContainer
	conn         *amqp.Connection
}

func (s *MessagingIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	rmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete"),
		),
	)
	s.Require().NoError(err)
	s.rmqContainer = rmqContainer

	url, err := rmqContainer.AmqpURL(ctx)
	s.Require().NoError(err)

	conn, err := messaging.ConnectRabbitMQ(url, zap.NewNop())
	s.Require().NoError(err)
	s.conn = conn
}

func (s *MessagingIntegrationTestSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.rmqContainer != nil {
		s.Require().NoError(s.rmqContainer.Terminate(context.Background()))
	}
}

func (s *MessagingIntegrationTestSuite) TestTaskQueueRoundTrip() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &recordingHandler{got: make(chan messaging.GenerationTaskPayload, 4)}
	consumer := messaging.NewTaskConsumer(s.conn, handler, zap.NewNop())
	s.Require().NoError(consumer.Start(ctx))
	defer func() { _ = consumer.Stop() }()

	publisher, err := messaging.NewRabbitMQTaskPublisher(s.conn, zap.NewNop())
	s.Require().NoError(err)

	payload := messaging.GenerationTaskPayload{
		TaskID:     uuid.NewString(),
		StoryID:    uuid.NewString(),
		ArcIndex:   2,
		Count:      5,
		EnqueuedAt: time.Now().UTC(),
	}
	s.Require().NoError(publisher.PublishGenerationTask(ctx, payload))

	select {
	case received := <-handler.got:
		s.Equal(payload.TaskID, received.TaskID)
		s.Equal(payload.StoryID, received.StoryID)
		s.Equal(2, received.ArcIndex)
		s.Equal(5, received.Count)
		s.WithinDuration(payload.EnqueuedAt, received.EnqueuedAt, time.Second)
	case <-time.After(10 * time.Second):
		s.Fail("timed out waiting for the task to reach the consumer")
	}
}

func (s *MessagingIntegrationTestSuite) TestPermanentFailureLandsInDLQ() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &recordingHandler{
		got:  make(chan messaging.GenerationTaskPayload, 4),
		fail: fmt.Errorf("advancing story: %w", models.ErrArcBoundary),
	}
	consumer := messaging.NewTaskConsumer(s.conn, handler, zap.NewNop())
	s.Require().NoError(consumer.Start(ctx))
	defer func() { _ = consumer.Stop() }()

	publisher, err := messaging.NewRabbitMQTaskPublisher(s.conn, zap.NewNop())
	s.Require().NoError(err)

	payload := messaging.GenerationTaskPayload{
		TaskID:     uuid.NewString(),
		StoryID:    uuid.NewString(),
		ArcIndex:   1,
		Count:      1,
		EnqueuedAt: time.Now().UTC(),
	}
	s.Require().NoError(publisher.PublishGenerationTask(ctx, payload))

	select {
	case <-handler.got:
	case <-time.After(10 * time.Second):
		s.Fail("timed out waiting for the task to reach the consumer")
	}

	ch, err := s.conn.Channel()
	s.Require().NoError(err)
	defer func() { _ = ch.Close() }()

	var body []byte
	s.Require().Eventually(func() bool {
		msg, ok, getErr := ch.Get(messaging.TaskDLQName, true)
		if getErr != nil || !ok {
			return false
		}
		body = msg.Body
		return true
	}, 10*time.Second, 200*time.Millisecond, "rejected task never reached the dead letter queue")

	var dead messaging.GenerationTaskPayload
	s.Require().NoError(json.Unmarshal(body, &dead))
	s.Equal(payload.TaskID, dead.TaskID)
	s.Equal(payload.StoryID, dead.StoryID)
}

func (s *MessagingIntegrationTestSuite) TestProgressFanout() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan messaging.ProgressEventPayload, 4)
	consumer := messaging.NewProgressConsumer(s.conn, func(e messaging.ProgressEventPayload) {
		events <- e
	}, zap.NewNop())
	s.Require().NoError(consumer.Start(ctx))
	defer func() { _ = consumer.Stop() }()

	publisher, err := messaging.NewRabbitMQProgressPublisher(s.conn, zap.NewNop())
	s.Require().NoError(err)

	event := messaging.ProgressEventPayload{
		EventType:    messaging.ProgressEventChapter,
		TaskID:       uuid.NewString(),
		StoryID:      uuid.NewString(),
		ArcIndex:     1,
		Chapter:      42,
		ChapterTitle: "Chapter 42: The Long Night",
		Cursor:       42,
		OccurredAt:   time.Now().UTC(),
	}
	s.Require().NoError(publisher.PublishProgress(ctx, event))

	select {
	case received := <-events:
		s.Equal(messaging.ProgressEventChapter, received.EventType)
		s.Equal(event.StoryID, received.StoryID)
		s.Equal(42, received.Chapter)
		s.Equal(42, received.Cursor)
		s.Equal("Chapter 42: The Long Night", received.ChapterTitle)
	case <-time.After(10 * time.Second):
		s.Fail("timed out waiting for the progress event")
	}
}

func TestMessagingIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping messaging integration tests in short mode")
	}
	suite.Run(t, new(MessagingIntegrationTestSuite))
}
