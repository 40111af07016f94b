package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed dimensions of an epic. Every story is planned as ArcCount arcs of
// exactly ChaptersPerArc chapters, partitioning 1..TotalChapters.
const (
	TotalChapters       = 1000
	ArcCount            = 5
	ChaptersPerArc      = TotalChapters / ArcCount
	CliffhangerInterval = 10
	MaxBatchSize        = 50
)

// StoryStatus is the lifecycle state of a story.
type StoryStatus string

const (
	StoryStatusActive    StoryStatus = "active"
	StoryStatusCompleted StoryStatus = "completed"
)

// Premise is the caller-supplied seed for an epic.
type Premise struct {
	UniverseName string `json:"universe_name"`
	Title        string `json:"title"`
	MainTheme    string `json:"main_theme"`
	Protagonist  string `json:"protagonist"`
}

// Story is a planned epic. The Universe is snapshotted at creation time.
// CurrentChapter is the generation cursor: chapters 1..CurrentChapter are
// committed, nothing beyond it exists. The cursor is mutated only by the
// orchestration engine, one committed chapter at a time.
type Story struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Title          string      `db:"title" json:"title"`
	Universe       Universe    `db:"universe_snapshot" json:"universe"`
	MainTheme      string      `db:"main_theme" json:"main_theme"`
	Protagonist    string      `db:"protagonist" json:"protagonist"`
	Summary        string      `db:"summary" json:"summary"`
	TotalChapters  int         `db:"total_chapters" json:"total_chapters"`
	CurrentChapter int         `db:"current_chapter" json:"current_chapter"`
	Status         StoryStatus `db:"status" json:"status"`
	Arcs           []Arc       `db:"-" json:"arcs,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Arc is a 200-chapter contiguous segment of a story. Its brief is
// generated once by the planner and frozen; chapters must honor it.
type Arc struct {
	StoryID      uuid.UUID `db:"story_id" json:"-"`
	Index        int       `db:"arc_index" json:"index"`
	Title        string    `db:"title" json:"title"`
	Focus        string    `db:"focus" json:"focus"`
	ConflictType string    `db:"conflict_type" json:"conflict_type"`
	StartChapter int       `db:"start_chapter" json:"start_chapter"`
	EndChapter   int       `db:"end_chapter" json:"end_chapter"`
	Brief        string    `db:"brief" json:"brief"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Contains reports whether the global chapter number lies in this arc.
func (a *Arc) Contains(chapter int) bool {
	return chapter >= a.StartChapter && chapter <= a.EndChapter
}

// LocalNumber converts a global chapter number into the arc-local 1-based
// position. The result is meaningless if the chapter is outside the arc.
func (a *Arc) LocalNumber(chapter int) int {
	return chapter - a.StartChapter + 1
}

// ArcByIndex returns the arc with the given 1-based index.
func (s *Story) ArcByIndex(index int) (*Arc, error) {
	for i := range s.Arcs {
		if s.Arcs[i].Index == index {
			return &s.Arcs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: story has no arc %d", ErrNotFound, index)
}

// ArcForChapter returns the arc containing the global chapter number.
func (s *Story) ArcForChapter(chapter int) (*Arc, error) {
	for i := range s.Arcs {
		if s.Arcs[i].Contains(chapter) {
			return &s.Arcs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no arc covers chapter %d", ErrNotFound, chapter)
}

// ValidateArcPartition checks the structural invariant: the arcs form an
// exact, gapless, non-overlapping partition of 1..TotalChapters in index
// order.
func (s *Story) ValidateArcPartition() error {
	if len(s.Arcs) != ArcCount {
		return fmt.Errorf("story has %d arcs, want %d", len(s.Arcs), ArcCount)
	}
	next := 1
	for i, arc := range s.Arcs {
		if arc.Index != i+1 {
			return fmt.Errorf("arc at position %d has index %d", i, arc.Index)
		}
		if arc.StartChapter != next {
			return fmt.Errorf("arc %d starts at %d, want %d", arc.Index, arc.StartChapter, next)
		}
		if arc.EndChapter-arc.StartChapter+1 != ChaptersPerArc {
			return fmt.Errorf("arc %d spans %d chapters, want %d", arc.Index, arc.EndChapter-arc.StartChapter+1, ChaptersPerArc)
		}
		next = arc.EndChapter + 1
	}
	if next != TotalChapters+1 {
		return fmt.Errorf("arcs cover 1..%d, want 1..%d", next-1, TotalChapters)
	}
	return nil
}

// IsCliffhangerPosition reports whether an arc-local chapter position gets
// the cliffhanger flag. Placement is deterministic by number; whether the
// prose actually delivers one is the backend's business.
func IsCliffhangerPosition(arcLocal int) bool {
	return arcLocal > 0 && arcLocal%CliffhangerInterval == 0
}
