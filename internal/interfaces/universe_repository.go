package interfaces

import (
	"context"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

//go:generate mockery --name UniverseRepository --output ../mocks --outpkg mocks --case=underscore
type UniverseRepository interface {
	Create(ctx context.Context, universe *models.Universe) error
	GetByName(ctx context.Context, name string) (*models.Universe, error)
	List(ctx context.Context) ([]models.Universe, error)
}

//go:generate mockery --name CorpusRepository --output ../mocks --outpkg mocks --case=underscore
type CorpusRepository interface {
	// Add stores one corpus sample for a universe.
	Add(ctx context.Context, sample *models.CorpusSample) error

	// RandomExcerpt returns up to maxChars characters sampled from a random
	// corpus entry, or models.ErrNotFound when the universe has no corpus.
	RandomExcerpt(ctx context.Context, universeID uuid.UUID, maxChars int) (string, error)

	// Stats returns sample count and total word count for a universe.
	Stats(ctx context.Context, universeID uuid.UUID) (*models.CorpusStats, error)
}
