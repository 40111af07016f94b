package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock StoryRepository
type StoryRepository struct {
	mock.Mock
}

func (m *StoryRepository) Create(ctx context.Context, querier interfaces.DBTX, story *models.Story) error {
	args := m.Called(ctx, querier, story)
	return args.Error(0)
}

func (m *StoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, id)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

func (m *StoryRepository) List(ctx context.Context, limit, offset int) ([]models.Story, error) {
	args := m.Called(ctx, limit, offset)
	stories, _ := args.Get(0).([]models.Story)
	return stories, args.Error(1)
}

func (m *StoryRepository) AdvanceCursor(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, expected int) error {
	args := m.Called(ctx, querier, storyID, expected)
	return args.Error(0)
}

func (m *StoryRepository) SetStatus(ctx context.Context, storyID uuid.UUID, status models.StoryStatus) error {
	args := m.Called(ctx, storyID, status)
	return args.Error(0)
}

var _ interfaces.StoryRepository = (*StoryRepository)(nil)
