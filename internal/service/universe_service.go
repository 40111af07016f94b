package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"
	"epic-engine/internal/universe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UniverseService manages universe definitions and their style corpus.
// Universes themselves are plain reference data; stories snapshot them at
// planning time and never read them again.
type UniverseService struct {
	universes      interfaces.UniverseRepository
	corpus         interfaces.CorpusRepository
	library        *universe.Library
	maxSampleBytes int
	logger         *zap.Logger
}

func NewUniverseService(
	universes interfaces.UniverseRepository,
	corpus interfaces.CorpusRepository,
	library *universe.Library,
	maxSampleBytes int,
	logger *zap.Logger,
) *UniverseService {
	return &UniverseService{
		universes:      universes,
		corpus:         corpus,
		library:        library,
		maxSampleBytes: maxSampleBytes,
		logger:         logger.Named("universe_service"),
	}
}

// EnsureDefaults stores every library universe that is not in the database
// yet. Existing rows are left alone, so operator edits survive restarts.
func (s *UniverseService) EnsureDefaults(ctx context.Context) error {
	for _, u := range s.library.All() {
		_, err := s.universes.GetByName(ctx, u.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrUniverseNotFound) {
			return fmt.Errorf("checking universe %q: %w", u.Name, err)
		}

		u.ID = uuid.New()
		u.CreatedAt = time.Now().UTC()
		if err := s.universes.Create(ctx, &u); err != nil {
			if errors.Is(err, models.ErrUniverseAlreadyExists) {
				continue
			}
			return fmt.Errorf("seeding universe %q: %w", u.Name, err)
		}
		s.logger.Info("Seeded universe", zap.String("name", u.Name))
	}
	return nil
}

// Create registers a custom universe.
func (s *UniverseService) Create(ctx context.Context, u *models.Universe) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: universe name is required", models.ErrInvalidInput)
	}
	if len(u.MainCharacters) == 0 {
		return fmt.Errorf("%w: universe needs at least one main character", models.ErrInvalidInput)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	return s.universes.Create(ctx, u)
}

func (s *UniverseService) GetByName(ctx context.Context, name string) (*models.Universe, error) {
	return s.universes.GetByName(ctx, name)
}

func (s *UniverseService) List(ctx context.Context) ([]models.Universe, error) {
	return s.universes.List(ctx)
}

// AddCorpusSample validates and stores one style reference text for a
// universe. Samples only influence the STYLE REFERENCE prompt section;
// they are never quoted into chapters directly.
func (s *UniverseService) AddCorpusSample(ctx context.Context, universeName, filename, content string) (*models.CorpusSample, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: corpus sample is empty", models.ErrInvalidInput)
	}
	if len(content) > s.maxSampleBytes {
		return nil, fmt.Errorf("%w: corpus sample exceeds %d bytes", models.ErrInvalidInput, s.maxSampleBytes)
	}

	u, err := s.universes.GetByName(ctx, universeName)
	if err != nil {
		return nil, err
	}

	sample := &models.CorpusSample{
		ID:         uuid.New(),
		UniverseID: u.ID,
		Filename:   filename,
		Content:    content,
		WordCount:  CountWords(content),
		UploadedAt: time.Now().UTC(),
	}
	if err := s.corpus.Add(ctx, sample); err != nil {
		return nil, err
	}

	s.logger.Info("Corpus sample added",
		zap.String("universe", u.Name),
		zap.String("filename", filename),
		zap.Int("word_count", sample.WordCount),
	)
	return sample, nil
}

// CorpusStats reports sample and word counts for a universe.
func (s *UniverseService) CorpusStats(ctx context.Context, universeName string) (*models.CorpusStats, error) {
	u, err := s.universes.GetByName(ctx, universeName)
	if err != nil {
		return nil, err
	}
	stats, err := s.corpus.Stats(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	stats.UniverseName = u.Name
	return stats, nil
}
