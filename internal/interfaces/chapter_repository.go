package interfaces

import (
	"context"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

//go:generate mockery --name ChapterRepository --output ../mocks --outpkg mocks --case=underscore
type ChapterRepository interface {
	// Insert persists one chapter row. Chapters are append-only; a
	// regeneration inserts the next version rather than updating.
	Insert(ctx context.Context, querier DBTX, chapter *models.Chapter) error

	// Get returns the latest version of a chapter.
	Get(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error)

	// ListSummaries returns content-free chapter rows for a story in
	// chapter order.
	ListSummaries(ctx context.Context, storyID uuid.UUID, limit, offset int) ([]models.ChapterSummary, error)

	// CountCommitted returns how many distinct chapter numbers exist for
	// the story.
	CountCommitted(ctx context.Context, storyID uuid.UUID) (int, error)
}
