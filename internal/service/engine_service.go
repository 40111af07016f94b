package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// storyLocks hands out the per-story exclusive advance token. Acquisition
// never blocks: a story that is already taken reports busy.
type storyLocks struct {
	mu    sync.Mutex
	inUse map[uuid.UUID]struct{}
}

func (l *storyLocks) tryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse == nil {
		l.inUse = make(map[uuid.UUID]struct{})
	}
	if _, busy := l.inUse[id]; busy {
		return false
	}
	l.inUse[id] = struct{}{}
	return true
}

func (l *storyLocks) release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inUse, id)
}

// EngineService coordinates planning and generation. Advances on distinct
// stories run in parallel; per story they are serialized by a try-lock so
// continuity state never sees concurrent writers.
type EngineService struct {
	planner   *PlannerService
	generator *BatchGenerator
	stories   interfaces.StoryRepository
	chapters  interfaces.ChapterRepository
	universes interfaces.UniverseRepository
	cache     interfaces.StoryCache
	locks     storyLocks
	onChapter func(*models.Chapter)
	logger    *zap.Logger
}

var _ interfaces.Engine = (*EngineService)(nil)

// NewEngineService wires the engine. onChapter, when non-nil, is invoked
// after every committed chapter, outside the commit transaction.
func NewEngineService(
	planner *PlannerService,
	generator *BatchGenerator,
	stories interfaces.StoryRepository,
	chapters interfaces.ChapterRepository,
	universes interfaces.UniverseRepository,
	cache interfaces.StoryCache,
	onChapter func(*models.Chapter),
	logger *zap.Logger,
) *EngineService {
	return &EngineService{
		planner:   planner,
		generator: generator,
		stories:   stories,
		chapters:  chapters,
		universes: universes,
		cache:     cache,
		onChapter: onChapter,
		logger:    logger.Named("engine_service"),
	}
}

func (e *EngineService) CreateEpic(ctx context.Context, premise models.Premise) (*models.Story, error) {
	name := strings.TrimSpace(premise.UniverseName)
	if name == "" {
		return nil, fmt.Errorf("%w: universe name is required", models.ErrInvalidPremise)
	}
	universe, err := e.universes.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.planner.Plan(ctx, universe, premise)
}

// Advance runs one generation batch under the story's exclusive lock. The
// start chapter is computed from the persisted cursor; any caller-supplied
// start is ignored so sequencing cannot be subverted. The report is
// returned even when the batch fails partway, with Completed and Cursor
// reflecting what actually committed.
func (e *EngineService) Advance(ctx context.Context, storyID uuid.UUID, arcIndex, count int) (*models.AdvanceReport, error) {
	if !e.locks.tryAcquire(storyID) {
		advanceBusyRejectionsTotal.Inc()
		return nil, fmt.Errorf("%w: story %s", models.ErrStoryBusy, storyID)
	}
	defer e.locks.release(storyID)

	story, err := e.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.Status == models.StoryStatusCompleted {
		return nil, fmt.Errorf("%w: story %s is already completed", models.ErrInvalidInput, storyID)
	}

	start := story.CurrentChapter + 1
	req := models.BatchRequest{
		StoryID:      storyID,
		ArcIndex:     arcIndex,
		StartChapter: start,
		Count:        count,
	}

	began := time.Now()
	chapters, genErr := e.generator.GenerateBatch(ctx, story, req, e.onChapter)

	report := &models.AdvanceReport{
		StoryID:      storyID,
		ArcIndex:     arcIndex,
		Requested:    count,
		Completed:    len(chapters),
		FirstChapter: start,
		Cursor:       story.CurrentChapter,
		Duration:     time.Since(began),
	}
	for i := range chapters {
		report.PromptTokens += chapters[i].PromptTokens
		report.CompletionTokens += chapters[i].CompletionTokens
	}
	report.EstimatedCostUSD = estimateCost(interfaces.Usage{
		PromptTokens:     report.PromptTokens,
		CompletionTokens: report.CompletionTokens,
	})

	if len(chapters) > 0 {
		e.cache.InvalidateStory(ctx, storyID)
	}
	if story.CurrentChapter >= story.TotalChapters {
		if err := e.stories.SetStatus(ctx, storyID, models.StoryStatusCompleted); err != nil {
			e.logger.Error("Failed to mark story completed",
				zap.String("story_id", storyID.String()), zap.Error(err))
		} else {
			story.Status = models.StoryStatusCompleted
			report.StoryCompleted = true
		}
	}

	if genErr != nil {
		e.logger.Warn("Advance stopped early",
			zap.String("story_id", storyID.String()),
			zap.Int("requested", count),
			zap.Int("completed", report.Completed),
			zap.Int("cursor", report.Cursor),
			zap.Error(genErr),
		)
		return report, genErr
	}

	e.logger.Info("Advance completed",
		zap.String("story_id", storyID.String()),
		zap.Int("chapters", report.Completed),
		zap.Int("cursor", report.Cursor),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (e *EngineService) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	if story, err := e.cache.GetStory(ctx, storyID); err == nil {
		return story, nil
	}
	story, err := e.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	e.cache.SetStory(ctx, story)
	return story, nil
}

func (e *EngineService) GetChapter(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error) {
	if number < 1 || number > models.TotalChapters {
		return nil, fmt.Errorf("%w: chapter number %d out of range 1..%d",
			models.ErrInvalidInput, number, models.TotalChapters)
	}
	if chapter, err := e.cache.GetChapter(ctx, storyID, number); err == nil {
		return chapter, nil
	}
	chapter, err := e.chapters.Get(ctx, storyID, number)
	if err != nil {
		return nil, err
	}
	e.cache.SetChapter(ctx, chapter)
	return chapter, nil
}

func (e *EngineService) ListChapters(ctx context.Context, storyID uuid.UUID, limit, offset int) ([]models.ChapterSummary, error) {
	return e.chapters.ListSummaries(ctx, storyID, limit, offset)
}

func (e *EngineService) ListStories(ctx context.Context, limit, offset int) ([]models.Story, error) {
	return e.stories.List(ctx, limit, offset)
}
