package interfaces

import (
	"context"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

// Engine is the orchestration surface of the core. Everything the outside
// world may do to a story goes through here.
//
//go:generate mockery --name Engine --output ../mocks --outpkg mocks --case=underscore
type Engine interface {
	// CreateEpic plans and persists a new story from a premise.
	CreateEpic(ctx context.Context, premise models.Premise) (*models.Story, error)

	// Advance generates the next count chapters of the story inside the
	// given arc. The start chapter always comes from the persisted cursor.
	// At most one advance runs per story; concurrent calls fail fast with
	// models.ErrStoryBusy. On partial failure the report is returned
	// alongside the error and says how many chapters were committed.
	Advance(ctx context.Context, storyID uuid.UUID, arcIndex, count int) (*models.AdvanceReport, error)

	// GetStory returns the story with arcs and the committed cursor.
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)

	// GetChapter returns the latest version of one committed chapter.
	GetChapter(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error)

	// ListChapters returns summaries of committed chapters in order.
	ListChapters(ctx context.Context, storyID uuid.UUID, limit, offset int) ([]models.ChapterSummary, error)

	// ListStories returns stories, newest first.
	ListStories(ctx context.Context, limit, offset int) ([]models.Story, error)
}
