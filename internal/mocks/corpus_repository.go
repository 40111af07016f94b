package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock CorpusRepository
type CorpusRepository struct {
	mock.Mock
}

func (m *CorpusRepository) Add(ctx context.Context, sample *models.CorpusSample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *CorpusRepository) RandomExcerpt(ctx context.Context, universeID uuid.UUID, maxChars int) (string, error) {
	args := m.Called(ctx, universeID, maxChars)
	return args.String(0), args.Error(1)
}

func (m *CorpusRepository) Stats(ctx context.Context, universeID uuid.UUID) (*models.CorpusStats, error) {
	args := m.Called(ctx, universeID)
	stats, _ := args.Get(0).(*models.CorpusStats)
	return stats, args.Error(1)
}

var _ interfaces.CorpusRepository = (*CorpusRepository)(nil)
