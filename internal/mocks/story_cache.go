package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock StoryCache
type StoryCache struct {
	mock.Mock
}

func (m *StoryCache) GetChapter(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error) {
	args := m.Called(ctx, storyID, number)
	chapter, _ := args.Get(0).(*models.Chapter)
	return chapter, args.Error(1)
}

func (m *StoryCache) SetChapter(ctx context.Context, chapter *models.Chapter) {
	m.Called(ctx, chapter)
}

func (m *StoryCache) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, storyID)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

func (m *StoryCache) SetStory(ctx context.Context, story *models.Story) {
	m.Called(ctx, story)
}

func (m *StoryCache) InvalidateStory(ctx context.Context, storyID uuid.UUID) {
	m.Called(ctx, storyID)
}

var _ interfaces.StoryCache = (*StoryCache)(nil)
