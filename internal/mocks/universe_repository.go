package mocks

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock UniverseRepository
type UniverseRepository struct {
	mock.Mock
}

func (m *UniverseRepository) Create(ctx context.Context, universe *models.Universe) error {
	args := m.Called(ctx, universe)
	return args.Error(0)
}

func (m *UniverseRepository) GetByName(ctx context.Context, name string) (*models.Universe, error) {
	args := m.Called(ctx, name)
	universe, _ := args.Get(0).(*models.Universe)
	return universe, args.Error(1)
}

func (m *UniverseRepository) List(ctx context.Context) ([]models.Universe, error) {
	args := m.Called(ctx)
	universes, _ := args.Get(0).([]models.Universe)
	return universes, args.Error(1)
}

var _ interfaces.UniverseRepository = (*UniverseRepository)(nil)
