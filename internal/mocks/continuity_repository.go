package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock ContinuityRepository
type ContinuityRepository struct {
	mock.Mock
}

func (m *ContinuityRepository) Get(ctx context.Context, storyID uuid.UUID) (*models.ContinuityState, error) {
	args := m.Called(ctx, storyID)
	state, _ := args.Get(0).(*models.ContinuityState)
	return state, args.Error(1)
}

func (m *ContinuityRepository) Init(ctx context.Context, querier interfaces.DBTX, state *models.ContinuityState) error {
	args := m.Called(ctx, querier, state)
	return args.Error(0)
}

func (m *ContinuityRepository) Save(ctx context.Context, querier interfaces.DBTX, state *models.ContinuityState, expectedVersion int) error {
	args := m.Called(ctx, querier, state, expectedVersion)
	return args.Error(0)
}

var _ interfaces.ContinuityRepository = (*ContinuityRepository)(nil)
