package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock Engine
type Engine struct {
	mock.Mock
}

func (m *Engine) CreateEpic(ctx context.Context, premise models.Premise) (*models.Story, error) {
	args := m.Called(ctx, premise)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

func (m *Engine) Advance(ctx context.Context, storyID uuid.UUID, arcIndex, count int) (*models.AdvanceReport, error) {
	args := m.Called(ctx, storyID, arcIndex, count)
	report, _ := args.Get(0).(*models.AdvanceReport)
	return report, args.Error(1)
}

func (m *Engine) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, storyID)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

func (m *Engine) GetChapter(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error) {
	args := m.Called(ctx, storyID, number)
	chapter, _ := args.Get(0).(*models.Chapter)
	return chapter, args.Error(1)
}

func (m *Engine) ListChapters(ctx context.Context, storyID uuid.UUID, limit, offset int) ([]models.ChapterSummary, error) {
	args := m.Called(ctx, storyID, limit, offset)
	summaries, _ := args.Get(0).([]models.ChapterSummary)
	return summaries, args.Error(1)
}

func (m *Engine) ListStories(ctx context.Context, limit, offset int) ([]models.Story, error) {
	args := m.Called(ctx, limit, offset)
	stories, _ := args.Get(0).([]models.Story)
	return stories, args.Error(1)
}

var _ interfaces.Engine = (*Engine)(nil)
