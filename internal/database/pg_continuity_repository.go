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
	getContinuityQuery = `
        SELECT story_id, recap_window, cumulative_summary, character_status, open_threads, version, updated_at
        FROM continuity_states WHERE story_id = $1
    `
	initContinuityQuery = `
        INSERT INTO continuity_states (story_id, recap_window, cumulative_summary, character_status, open_threads, version, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	saveContinuityQuery = `
        UPDATE continuity_states
        SET recap_window = $2, cumulative_summary = $3, character_status = $4,
            open_threads = $5, version = $6, updated_at = $7
        WHERE story_id = $1 AND version = $8
    `
)

type pgContinuityRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

var _ interfaces.ContinuityRepository = (*pgContinuityRepository)(nil)

func NewPgContinuityRepository(querier interfaces.DBTX, logger *zap.Logger) *pgContinuityRepository {
	return &pgContinuityRepository{
		db:     querier,
		logger: logger.Named("ContinuityRepo"),
	}
}

func (r *pgContinuityRepository) Get(ctx context.Context, storyID uuid.UUID) (*models.ContinuityState, error) {
	var state models.ContinuityState
	err := pgxscan.Get(ctx, r.db, &state, getContinuityQuery, storyID)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Error getting continuity state",
			zap.String("story_id", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get continuity state for story %s: %w", storyID, err)
	}
	return &state, nil
}

func (r *pgContinuityRepository) Init(ctx context.Context, querier interfaces.DBTX, state *models.ContinuityState) error {
	_, err := querier.Exec(ctx, initContinuityQuery,
		state.StoryID, state.Window, state.CumulativeSummary,
		state.CharacterStatus, state.OpenThreads, state.Version, state.UpdatedAt)
	if err != nil {
		r.logger.Error("Error initializing continuity state",
			zap.String("story_id", state.StoryID.String()), zap.Error(err))
		return fmt.Errorf("failed to init continuity state for story %s: %w", state.StoryID, err)
	}
	return nil
}

// Save writes the folded state guarded by a version compare-and-set. Zero
// rows affected means another writer moved the state first; inside a
// chapter commit transaction that aborts the whole commit.
func (r *pgContinuityRepository) Save(ctx context.Context, querier interfaces.DBTX, state *models.ContinuityState, expectedVersion int) error {
	commandTag, err := querier.Exec(ctx, saveContinuityQuery,
		state.StoryID, state.Window, state.CumulativeSummary,
		state.CharacterStatus, state.OpenThreads, state.Version, state.UpdatedAt,
		expectedVersion)
	if err != nil {
		r.logger.Error("Error saving continuity state",
			zap.String("story_id", state.StoryID.String()), zap.Error(err))
		return fmt.Errorf("failed to save continuity state for story %s: %w", state.StoryID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Continuity version compare-and-set missed",
			zap.String("story_id", state.StoryID.String()),
			zap.Int("expected_version", expectedVersion),
		)
		return fmt.Errorf("%w: expected continuity version %d", models.ErrCursorConflict, expectedVersion)
	}
	return nil
}
