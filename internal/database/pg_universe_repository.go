package database

import (
	"context"
	"errors"
	"fmt"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	createUniverseQuery = `
        INSERT INTO universes (id, name, genre, description, main_characters, key_locations,
                               central_themes, magic_system, time_period, world_elements, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (LOWER(name)) DO NOTHING
    `
	getUniverseByNameQuery = `
        SELECT id, name, genre, description, main_characters, key_locations,
               central_themes, magic_system, time_period, world_elements, created_at
        FROM universes WHERE LOWER(name) = LOWER($1)
    `
	listUniversesQuery = `
        SELECT id, name, genre, description, main_characters, key_locations,
               central_themes, magic_system, time_period, world_elements, created_at
        FROM universes ORDER BY name
    `
)

type pgUniverseRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

var _ interfaces.UniverseRepository = (*pgUniverseRepository)(nil)

func NewPgUniverseRepository(querier interfaces.DBTX, logger *zap.Logger) *pgUniverseRepository {
	return &pgUniverseRepository{
		db:     querier,
		logger: logger.Named("UniverseRepo"),
	}
}

func (r *pgUniverseRepository) Create(ctx context.Context, universe *models.Universe) error {
	log := r.logger.With(zap.String("name", universe.Name))

	commandTag, err := r.db.Exec(ctx, createUniverseQuery,
		universe.ID, universe.Name, universe.Genre, universe.Description,
		universe.MainCharacters, universe.KeyLocations, universe.CentralThemes,
		universe.MagicSystem, universe.TimePeriod, universe.WorldElements, universe.CreatedAt)
	if err != nil {
		log.Error("Error creating universe", zap.Error(err))
		return fmt.Errorf("failed to create universe %s: %w", universe.Name, err)
	}
	if commandTag.RowsAffected() == 0 {
		log.Warn("Universe with this name already exists")
		return models.ErrUniverseAlreadyExists
	}

	log.Info("Universe created")
	return nil
}

func (r *pgUniverseRepository) GetByName(ctx context.Context, name string) (*models.Universe, error) {
	var universe models.Universe
	err := pgxscan.Get(ctx, r.db, &universe, getUniverseByNameQuery, name)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrUniverseNotFound
		}
		r.logger.Error("Error getting universe by name",
			zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to get universe %s: %w", name, err)
	}
	return &universe, nil
}

func (r *pgUniverseRepository) List(ctx context.Context) ([]models.Universe, error) {
	var universes []models.Universe
	err := pgxscan.Select(ctx, r.db, &universes, listUniversesQuery)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []models.Universe{}, nil
		}
		r.logger.Error("Error listing universes", zap.Error(err))
		return nil, fmt.Errorf("failed to list universes: %w", err)
	}
	if universes == nil {
		universes = []models.Universe{}
	}
	return universes, nil
}
