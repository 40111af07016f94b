package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	addCorpusSampleQuery = `
        INSERT INTO corpus_samples (id, universe_id, filename, content, word_count, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	randomCorpusSampleQuery = `
        SELECT content FROM corpus_samples WHERE universe_id = $1 ORDER BY random() LIMIT 1
    `
	corpusStatsQuery = `
        SELECT COUNT(*) AS sample_count, COALESCE(SUM(word_count), 0) AS total_words
        FROM corpus_samples WHERE universe_id = $1
    `
)

type pgCorpusRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

var _ interfaces.CorpusRepository = (*pgCorpusRepository)(nil)

func NewPgCorpusRepository(querier interfaces.DBTX, logger *zap.Logger) *pgCorpusRepository {
	return &pgCorpusRepository{
		db:     querier,
		logger: logger.Named("CorpusRepo"),
	}
}

func (r *pgCorpusRepository) Add(ctx context.Context, sample *models.CorpusSample) error {
	_, err := r.db.Exec(ctx, addCorpusSampleQuery,
		sample.ID, sample.UniverseID, sample.Filename, sample.Content,
		sample.WordCount, sample.UploadedAt)
	if err != nil {
		r.logger.Error("Error adding corpus sample",
			zap.String("universe_id", sample.UniverseID.String()),
			zap.String("filename", sample.Filename),
			zap.Error(err),
		)
		return fmt.Errorf("failed to add corpus sample: %w", err)
	}
	return nil
}

// RandomExcerpt picks one random sample and returns its head, cut at a
// word boundary so the style reference never ends mid-word.
func (r *pgCorpusRepository) RandomExcerpt(ctx context.Context, universeID uuid.UUID, maxChars int) (string, error) {
	var content string
	err := r.db.QueryRow(ctx, randomCorpusSampleQuery, universeID).Scan(&content)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return "", models.ErrNotFound
		}
		r.logger.Error("Error sampling corpus",
			zap.String("universe_id", universeID.String()), zap.Error(err))
		return "", fmt.Errorf("failed to sample corpus for universe %s: %w", universeID, err)
	}

	if maxChars > 0 && len(content) > maxChars {
		cut := content[:maxChars]
		if idx := strings.LastIndexAny(cut, " \n"); idx > 0 {
			cut = cut[:idx]
		}
		return cut, nil
	}
	return content, nil
}

func (r *pgCorpusRepository) Stats(ctx context.Context, universeID uuid.UUID) (*models.CorpusStats, error) {
	var stats models.CorpusStats
	err := pgxscan.Get(ctx, r.db, &stats, corpusStatsQuery, universeID)
	if err != nil {
		r.logger.Error("Error getting corpus stats",
			zap.String("universe_id", universeID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get corpus stats for universe %s: %w", universeID, err)
	}
	return &stats, nil
}
