package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock ChapterRepository
type ChapterRepository struct {
	mock.Mock
}

func (m *ChapterRepository) Insert(ctx context.Context, querier interfaces.DBTX, chapter *models.Chapter) error {
	args := m.Called(ctx, querier, chapter)
	return args.Error(0)
}

func (m *ChapterRepository) Get(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error) {
	args := m.Called(ctx, storyID, number)
	chapter, _ := args.Get(0).(*models.Chapter)
	return chapter, args.Error(1)
}

func (m *ChapterRepository) ListSummaries(ctx context.Context, storyID uuid.UUID, limit, offset int) ([]models.ChapterSummary, error) {
	args := m.Called(ctx, storyID, limit, offset)
	summaries, _ := args.Get(0).([]models.ChapterSummary)
	return summaries, args.Error(1)
}

func (m *ChapterRepository) CountCommitted(ctx context.Context, storyID uuid.UUID) (int, error) {
	args := m.Called(ctx, storyID)
	return args.Int(0), args.Error(1)
}

var _ interfaces.ChapterRepository = (*ChapterRepository)(nil)
