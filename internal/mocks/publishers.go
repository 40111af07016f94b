package mocks

import (
	"context"

	"epic-engine/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishGenerationTask(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

var _ messaging.TaskPublisher = (*TaskPublisher)(nil)

// Mock ProgressPublisher
type ProgressPublisher struct {
	mock.Mock
}

func (m *ProgressPublisher) PublishProgress(ctx context.Context, event messaging.ProgressEventPayload) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var _ messaging.ProgressPublisher = (*ProgressPublisher)(nil)
