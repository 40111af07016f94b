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
	insertChapterQuery = `
        INSERT INTO chapters (id, story_id, chapter_number, version, arc_index, title, content,
                              recap, cliffhanger, word_count, plot_points, characters,
                              model, prompt_tokens, completion_tokens, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	getChapterQuery = `
        SELECT id, story_id, chapter_number, version, arc_index, title, content,
               recap, cliffhanger, word_count, plot_points, characters,
               model, prompt_tokens, completion_tokens, created_at
        FROM chapters
        WHERE story_id = $1 AND chapter_number = $2
        ORDER BY version DESC LIMIT 1
    `
	listChapterSummariesQuery = `
        SELECT DISTINCT ON (chapter_number)
               chapter_number, arc_index, title, cliffhanger, word_count, created_at
        FROM chapters
        WHERE story_id = $1
        ORDER BY chapter_number, version DESC
        LIMIT $2 OFFSET $3
    `
	countCommittedQuery = `SELECT COUNT(DISTINCT chapter_number) FROM chapters WHERE story_id = $1`
)

type pgChapterRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

var _ interfaces.ChapterRepository = (*pgChapterRepository)(nil)

func NewPgChapterRepository(querier interfaces.DBTX, logger *zap.Logger) *pgChapterRepository {
	return &pgChapterRepository{
		db:     querier,
		logger: logger.Named("ChapterRepo"),
	}
}

func (r *pgChapterRepository) Insert(ctx context.Context, querier interfaces.DBTX, chapter *models.Chapter) error {
	_, err := querier.Exec(ctx, insertChapterQuery,
		chapter.ID, chapter.StoryID, chapter.Number, chapter.Version, chapter.ArcIndex,
		chapter.Title, chapter.Content, chapter.Recap, chapter.Cliffhanger, chapter.WordCount,
		chapter.PlotPoints, chapter.Characters, chapter.Model,
		chapter.PromptTokens, chapter.CompletionTokens, chapter.CreatedAt)
	if err != nil {
		r.logger.Error("Error inserting chapter",
			zap.String("story_id", chapter.StoryID.String()),
			zap.Int("chapter", chapter.Number),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert chapter %d: %w", chapter.Number, err)
	}
	return nil
}

func (r *pgChapterRepository) Get(ctx context.Context, storyID uuid.UUID, number int) (*models.Chapter, error) {
	var chapter models.Chapter
	err := pgxscan.Get(ctx, r.db, &chapter, getChapterQuery, storyID, number)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrChapterNotFound
		}
		r.logger.Error("Error getting chapter",
			zap.String("story_id", storyID.String()),
			zap.Int("chapter", number),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get chapter %d: %w", number, err)
	}
	return &chapter, nil
}

func (r *pgChapterRepository) ListSummaries(ctx context.Context, storyID uuid.UUID, limit, offset int) ([]models.ChapterSummary, error) {
	var summaries []models.ChapterSummary
	err := pgxscan.Select(ctx, r.db, &summaries, listChapterSummariesQuery, storyID, limit, offset)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []models.ChapterSummary{}, nil
		}
		r.logger.Error("Error listing chapter summaries",
			zap.String("story_id", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list chapters for story %s: %w", storyID, err)
	}
	if summaries == nil {
		summaries = []models.ChapterSummary{}
	}
	return summaries, nil
}

func (r *pgChapterRepository) CountCommitted(ctx context.Context, storyID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, countCommittedQuery, storyID).Scan(&count); err != nil {
		r.logger.Error("Error counting chapters",
			zap.String("story_id", storyID.String()), zap.Error(err))
		return 0, fmt.Errorf("failed to count chapters for story %s: %w", storyID, err)
	}
	return count, nil
}
