package interfaces

import (
	"context"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

// StoryCache is a read-through cache in front of the story/chapter
// repositories. Misses return models.ErrNotFound; infrastructure failures
// are swallowed by implementations so a cache outage never fails a read.
//
//go:generate mockery --name StoryCache --output ../mocks --outpkg mocks --case=underscore
type StoryCache interface {
	GetChapter(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error)
	SetChapter(ctx context.Context, chapter *models.Chapter)
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)
	SetStory(ctx context.Context, story *models.Story)
	InvalidateStory(ctx context.Context, storyID uuid.UUID)
}
