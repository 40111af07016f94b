package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound         = errors.New("resource not found") // General not found
	ErrStoryNotFound    = errors.New("story not found")
	ErrChapterNotFound  = errors.New("chapter not found")
	ErrUniverseNotFound = errors.New("universe not found")

	// Planner Errors
	ErrInvalidPremise        = errors.New("invalid premise")
	ErrUniverseAlreadyExists = errors.New("universe with this name already exists")

	// Generation Sequencing Errors
	ErrArcBoundary = errors.New("requested chapters fall outside the arc's range")
	ErrOutOfOrder  = errors.New("batch must start at the story's current cursor + 1")
	ErrStoryBusy   = errors.New("story already has a generation in progress")

	// Backend & Continuity Errors
	ErrGenerationFailed = errors.New("text generation failed")
	ErrContinuityFold   = errors.New("continuity fold failed")
	ErrCursorConflict   = errors.New("story cursor changed concurrently")

	// General Request/Server Errors
	ErrInvalidInput   = errors.New("invalid input data")
	ErrInternalServer = errors.New("internal server error")
)

// GenerationBackendError reports a chapter whose generation exhausted all
// retries. LastCommitted tells the caller where to resume; chapters up to
// and including it remain committed.
type GenerationBackendError struct {
	StoryID       uuid.UUID
	Chapter       int
	LastCommitted int
	Attempts      int
	Err           error
}

func (e *GenerationBackendError) Error() string {
	return fmt.Sprintf("generation failed for chapter %d after %d attempts (last committed chapter: %d): %v",
		e.Chapter, e.Attempts, e.LastCommitted, e.Err)
}

// Unwrap chains to ErrGenerationFailed so errors.Is matches across layers.
func (e *GenerationBackendError) Unwrap() error {
	if e.Err != nil && errors.Is(e.Err, ErrGenerationFailed) {
		return e.Err
	}
	return ErrGenerationFailed
}
