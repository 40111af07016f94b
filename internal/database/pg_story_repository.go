package database

import (
	"context"
	"errors"
	"fmt"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	createStoryQuery = `
        INSERT INTO stories (id, title, universe_snapshot, main_theme, protagonist, summary,
                             total_chapters, current_chapter, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	createArcQuery = `
        INSERT INTO story_arcs (story_id, arc_index, title, focus, conflict_type,
                                start_chapter, end_chapter, brief, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	getStoryByIDQuery = `
        SELECT id, title, universe_snapshot, main_theme, protagonist, summary,
               total_chapters, current_chapter, status, created_at, updated_at
        FROM stories WHERE id = $1
    `
	listStoriesQuery = `
        SELECT id, title, universe_snapshot, main_theme, protagonist, summary,
               total_chapters, current_chapter, status, created_at, updated_at
        FROM stories ORDER BY created_at DESC LIMIT $1 OFFSET $2
    `
	listArcsQuery = `
        SELECT story_id, arc_index, title, focus, conflict_type,
               start_chapter, end_chapter, brief, created_at
        FROM story_arcs WHERE story_id = $1 ORDER BY arc_index
    `
	advanceCursorQuery = `
        UPDATE stories SET current_chapter = $2 + 1, updated_at = now()
        WHERE id = $1 AND current_chapter = $2
    `
	setStoryStatusQuery = `UPDATE stories SET status = $2, updated_at = now() WHERE id = $1`
)

type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

func NewPgStoryRepository(querier interfaces.DBTX, logger *zap.Logger) *pgStoryRepository {
	return &pgStoryRepository{
		db:     querier,
		logger: logger.Named("StoryRepo"),
	}
}

func (r *pgStoryRepository) Create(ctx context.Context, querier interfaces.DBTX, story *models.Story) error {
	log := r.logger.With(zap.String("story_id", story.ID.String()))

	_, err := querier.Exec(ctx, createStoryQuery,
		story.ID, story.Title, story.Universe, story.MainTheme, story.Protagonist, story.Summary,
		story.TotalChapters, story.CurrentChapter, story.Status, story.CreatedAt, story.UpdatedAt)
	if err != nil {
		log.Error("Error inserting story", zap.Error(err))
		return fmt.Errorf("failed to insert story: %w", err)
	}

	for i := range story.Arcs {
		arc := &story.Arcs[i]
		_, err := querier.Exec(ctx, createArcQuery,
			arc.StoryID, arc.Index, arc.Title, arc.Focus, arc.ConflictType,
			arc.StartChapter, arc.EndChapter, arc.Brief, arc.CreatedAt)
		if err != nil {
			log.Error("Error inserting story arc", zap.Int("arc_index", arc.Index), zap.Error(err))
			return fmt.Errorf("failed to insert arc %d: %w", arc.Index, err)
		}
	}

	log.Info("Story created", zap.String("title", story.Title))
	return nil
}

func (r *pgStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	log := r.logger.With(zap.String("story_id", id.String()))

	var story models.Story
	err := pgxscan.Get(ctx, r.db, &story, getStoryByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		log.Error("Error getting story", zap.Error(err))
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}

	if err := pgxscan.Select(ctx, r.db, &story.Arcs, listArcsQuery, id); err != nil {
		log.Error("Error loading story arcs", zap.Error(err))
		return nil, fmt.Errorf("failed to load arcs for story %s: %w", id, err)
	}
	return &story, nil
}

func (r *pgStoryRepository) List(ctx context.Context, limit, offset int) ([]models.Story, error) {
	var stories []models.Story
	err := pgxscan.Select(ctx, r.db, &stories, listStoriesQuery, limit, offset)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []models.Story{}, nil
		}
		r.logger.Error("Error listing stories", zap.Error(err))
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	if stories == nil {
		stories = []models.Story{}
	}
	return stories, nil
}

// AdvanceCursor moves the cursor from expected to expected+1. The WHERE
// clause is the compare-and-set: zero rows affected means the stored
// cursor was not the expected value.
func (r *pgStoryRepository) AdvanceCursor(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, expected int) error {
	commandTag, err := querier.Exec(ctx, advanceCursorQuery, storyID, expected)
	if err != nil {
		r.logger.Error("Error advancing story cursor",
			zap.String("story_id", storyID.String()), zap.Error(err))
		return fmt.Errorf("failed to advance cursor for story %s: %w", storyID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Cursor compare-and-set missed",
			zap.String("story_id", storyID.String()),
			zap.Int("expected", expected),
		)
		return fmt.Errorf("%w: expected cursor %d", models.ErrCursorConflict, expected)
	}
	return nil
}

func (r *pgStoryRepository) SetStatus(ctx context.Context, storyID uuid.UUID, status models.StoryStatus) error {
	commandTag, err := r.db.Exec(ctx, setStoryStatusQuery, storyID, status)
	if err != nil {
		r.logger.Error("Error setting story status",
			zap.String("story_id", storyID.String()), zap.Error(err))
		return fmt.Errorf("failed to set status for story %s: %w", storyID, err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}
