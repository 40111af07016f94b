package interfaces

import (
	"context"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

//go:generate mockery --name ContinuityRepository --output ../mocks --outpkg mocks --case=underscore
type ContinuityRepository interface {
	// Get returns the committed continuity state for a story.
	Get(ctx context.Context, storyID uuid.UUID) (*models.ContinuityState, error)

	// Init persists the empty initial state for a freshly planned story.
	Init(ctx context.Context, querier DBTX, state *models.ContinuityState) error

	// Save writes the folded state with a compare-and-set on the version
	// the fold started from; returns models.ErrCursorConflict when the
	// stored version moved underneath the caller.
	Save(ctx context.Context, querier DBTX, state *models.ContinuityState, expectedVersion int) error
}
