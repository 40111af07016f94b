package database

import (
	"context"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
)

// noopStoryCache misses on every read and drops every write. The CLI runs
// the engine in-process without Redis.
type noopStoryCache struct{}

var _ interfaces.StoryCache = noopStoryCache{}

func NewNoopStoryCache() interfaces.StoryCache {
	return noopStoryCache{}
}

func (noopStoryCache) GetChapter(context.Context, uuid.UUID, int) (*models.Chapter, error) {
	return nil, models.ErrNotFound
}

func (noopStoryCache) SetChapter(context.Context, *models.Chapter) {}

func (noopStoryCache) GetStory(context.Context, uuid.UUID) (*models.Story, error) {
	return nil, models.ErrNotFound
}

func (noopStoryCache) SetStory(context.Context, *models.Story) {}

func (noopStoryCache) InvalidateStory(context.Context, uuid.UUID) {}
