package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchRequest asks for a contiguous run of chapters within one arc.
type BatchRequest struct {
	StoryID      uuid.UUID `json:"story_id"`
	ArcIndex     int       `json:"arc_index"`
	StartChapter int       `json:"start_chapter"`
	Count        int       `json:"count"`
}

// Validate checks the request shape. Arc boundary and ordering are checked
// against the story by the generator, which knows the cursor.
func (r *BatchRequest) Validate() error {
	if r.ArcIndex < 1 || r.ArcIndex > ArcCount {
		return fmt.Errorf("%w: arc index %d out of range 1..%d", ErrInvalidInput, r.ArcIndex, ArcCount)
	}
	if r.Count < 1 || r.Count > MaxBatchSize {
		return fmt.Errorf("%w: count %d out of range 1..%d", ErrInvalidInput, r.Count, MaxBatchSize)
	}
	return nil
}

// AdvanceReport describes the outcome of one advance call. It is returned
// for failed runs too: Completed says how many of the requested chapters
// were committed, and Cursor is always the last committed chapter, so the
// caller can resume without re-deriving anything.
type AdvanceReport struct {
	StoryID          uuid.UUID     `json:"story_id"`
	ArcIndex         int           `json:"arc_index"`
	Requested        int           `json:"requested"`
	Completed        int           `json:"completed"`
	FirstChapter     int           `json:"first_chapter,omitempty"`
	Cursor           int           `json:"cursor"`
	StoryCompleted   bool          `json:"story_completed,omitempty"`
	Duration         time.Duration `json:"-"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd,omitempty"`
}
