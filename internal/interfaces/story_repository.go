package interfaces

import (
	"context"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

//go:generate mockery --name StoryRepository --output ../mocks --outpkg mocks --case=underscore
type StoryRepository interface {
	// Create persists a planned story together with its five arcs.
	Create(ctx context.Context, querier DBTX, story *models.Story) error

	// GetByID returns the story with its arcs loaded.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)

	// List returns stories ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]models.Story, error)

	// AdvanceCursor moves the cursor from expected to expected+1 with a
	// compare-and-set; returns models.ErrCursorConflict when the stored
	// cursor is not the expected value.
	AdvanceCursor(ctx context.Context, querier DBTX, storyID uuid.UUID, expected int) error

	// SetStatus updates the lifecycle status.
	SetStatus(ctx context.Context, storyID uuid.UUID, status models.StoryStatus) error
}
