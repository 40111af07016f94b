package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"epic-engine/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTaskHandler struct {
	err   error
	calls int
	last  GenerationTaskPayload
}

func (s *stubTaskHandler) Handle(_ context.Context, payload GenerationTaskPayload) error {
	s.calls++
	s.last = payload
	return s.err
}

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acked = true; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func taskDelivery(t *testing.T, ack *fakeAcknowledger, payload GenerationTaskPayload, redelivered bool) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

func TestHandleDelivery(t *testing.T) {
	ctx := context.Background()
	payload := GenerationTaskPayload{
		TaskID:   "task-1",
		StoryID:  "0c9adf27-5c8e-4c47-9c2f-3c1f1f9a6f11",
		ArcIndex: 2,
		Count:    5,
	}

	t.Run("Successful handling acks", func(t *testing.T) {
		handler := &stubTaskHandler{}
		consumer := &TaskConsumer{handler: handler, logger: zap.NewNop()}
		ack := &fakeAcknowledger{}

		consumer.handleDelivery(ctx, taskDelivery(t, ack, payload, false))

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
		assert.Equal(t, 1, handler.calls)
		assert.Equal(t, payload.TaskID, handler.last.TaskID)
		assert.Equal(t, 5, handler.last.Count)
	})

	t.Run("Malformed payload goes straight to the dead letter queue", func(t *testing.T) {
		handler := &stubTaskHandler{}
		consumer := &TaskConsumer{handler: handler, logger: zap.NewNop()}
		ack := &fakeAcknowledger{}

		consumer.handleDelivery(ctx, amqp.Delivery{
			Acknowledger: ack,
			Body:         []byte("{not json"),
		})

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
		assert.Zero(t, handler.calls)
	})

	t.Run("Permanent failure is not requeued", func(t *testing.T) {
		handler := &stubTaskHandler{err: fmt.Errorf("advance: %w", models.ErrArcBoundary)}
		consumer := &TaskConsumer{handler: handler, logger: zap.NewNop()}
		ack := &fakeAcknowledger{}

		consumer.handleDelivery(ctx, taskDelivery(t, ack, payload, false))

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
	})

	t.Run("Transient failure is requeued once", func(t *testing.T) {
		handler := &stubTaskHandler{err: errors.New("backend timeout")}
		consumer := &TaskConsumer{handler: handler, logger: zap.NewNop()}
		ack := &fakeAcknowledger{}

		consumer.handleDelivery(ctx, taskDelivery(t, ack, payload, false))

		assert.True(t, ack.nacked)
		assert.True(t, ack.requeued)
	})

	t.Run("Redelivered transient failure follows to the dead letter queue", func(t *testing.T) {
		handler := &stubTaskHandler{err: errors.New("backend timeout")}
		consumer := &TaskConsumer{handler: handler, logger: zap.NewNop()}
		ack := &fakeAcknowledger{}

		consumer.handleDelivery(ctx, taskDelivery(t, ack, payload, true))

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
	})
}

func TestIsPermanentTaskError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"invalid input", models.ErrInvalidInput, true},
		{"invalid premise wrapped", fmt.Errorf("create: %w", models.ErrInvalidPremise), true},
		{"arc boundary", models.ErrArcBoundary, true},
		{"out of order", models.ErrOutOfOrder, true},
		{"story not found", models.ErrStoryNotFound, true},
		{"story busy", models.ErrStoryBusy, false},
		{"generation failed", models.ErrGenerationFailed, false},
		{"continuity fold", models.ErrContinuityFold, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.permanent, isPermanentTaskError(tc.err))
		})
	}
}
