package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	storyKeyPrefix   = "epic:story:"
	chapterKeyPrefix = "epic:chapter:"
)

// redisStoryCache is a best-effort read-through cache. Chapters are
// immutable once committed, so a cached chapter never goes stale; the
// story view changes with every advance and is invalidated explicitly.
// Every Redis failure degrades to a miss, never to a request error.
type redisStoryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ interfaces.StoryCache = (*redisStoryCache)(nil)

func NewRedisStoryCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *redisStoryCache {
	return &redisStoryCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("StoryCache"),
	}
}

func storyKey(id uuid.UUID) string {
	return storyKeyPrefix + id.String()
}

func chapterKey(storyID uuid.UUID, number int) string {
	return fmt.Sprintf("%s%s:%d", chapterKeyPrefix, storyID, number)
}

func (c *redisStoryCache) GetChapter(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error) {
	data, err := c.client.Get(ctx, chapterKey(storyID, number)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Chapter cache read failed", zap.Error(err))
		}
		return nil, models.ErrNotFound
	}

	var chapter models.Chapter
	if err := json.Unmarshal(data, &chapter); err != nil {
		c.logger.Warn("Corrupt chapter cache entry, dropping",
			zap.String("story_id", storyID.String()),
			zap.Int("chapter", number),
			zap.Error(err),
		)
		c.client.Del(ctx, chapterKey(storyID, number))
		return nil, models.ErrNotFound
	}
	return &chapter, nil
}

func (c *redisStoryCache) SetChapter(ctx context.Context, chapter *models.Chapter) {
	data, err := json.Marshal(chapter)
	if err != nil {
		c.logger.Warn("Failed to marshal chapter for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, chapterKey(chapter.StoryID, chapter.Number), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Chapter cache write failed", zap.Error(err))
	}
}

func (c *redisStoryCache) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	data, err := c.client.Get(ctx, storyKey(storyID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Story cache read failed", zap.Error(err))
		}
		return nil, models.ErrNotFound
	}

	var story models.Story
	if err := json.Unmarshal(data, &story); err != nil {
		c.logger.Warn("Corrupt story cache entry, dropping",
			zap.String("story_id", storyID.String()), zap.Error(err))
		c.client.Del(ctx, storyKey(storyID))
		return nil, models.ErrNotFound
	}
	return &story, nil
}

func (c *redisStoryCache) SetStory(ctx context.Context, story *models.Story) {
	data, err := json.Marshal(story)
	if err != nil {
		c.logger.Warn("Failed to marshal story for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, storyKey(story.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Story cache write failed", zap.Error(err))
	}
}

func (c *redisStoryCache) InvalidateStory(ctx context.Context, storyID uuid.UUID) {
	if err := c.client.Del(ctx, storyKey(storyID)).Err(); err != nil {
		c.logger.Warn("Story cache invalidation failed",
			zap.String("story_id", storyID.String()), zap.Error(err))
	}
}
