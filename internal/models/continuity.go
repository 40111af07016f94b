package models

import (
	"time"

	"github.com/google/uuid"
)

// RecapWindowSize is K: how many chapter recaps the continuity state keeps
// verbatim. Everything older lives compressed inside CumulativeSummary, so
// prompt context stays O(K) no matter how many chapters exist.
const RecapWindowSize = 10

// RecapEntry is one chapter's recap held verbatim in the rolling window.
type RecapEntry struct {
	Chapter int    `json:"chapter"`
	Recap   string `json:"recap"`
}

// PlotThread is an open narrative thread the story still owes an answer to.
type PlotThread struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	OpenedAt    int    `json:"opened_at"` // chapter number that opened it
}

// ContinuityState is the bounded rolling memory for one story. It reflects
// exactly the committed chapters: it is advanced only as part of a chapter
// commit and never speculatively. Version backs compare-and-set updates.
type ContinuityState struct {
	StoryID           uuid.UUID         `db:"story_id" json:"story_id"`
	Window            []RecapEntry      `db:"recap_window" json:"window"`
	CumulativeSummary string            `db:"cumulative_summary" json:"cumulative_summary"`
	CharacterStatus   map[string]string `db:"character_status" json:"character_status"`
	OpenThreads       []PlotThread      `db:"open_threads" json:"open_threads"`
	Version           int               `db:"version" json:"version"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy. Fold works on a copy so a failed fold leaves
// the caller's state untouched.
func (s *ContinuityState) Clone() *ContinuityState {
	out := &ContinuityState{
		StoryID:           s.StoryID,
		CumulativeSummary: s.CumulativeSummary,
		Version:           s.Version,
		UpdatedAt:         s.UpdatedAt,
	}
	out.Window = make([]RecapEntry, len(s.Window))
	copy(out.Window, s.Window)
	out.CharacterStatus = make(map[string]string, len(s.CharacterStatus))
	for k, v := range s.CharacterStatus {
		out.CharacterStatus[k] = v
	}
	out.OpenThreads = make([]PlotThread, len(s.OpenThreads))
	copy(out.OpenThreads, s.OpenThreads)
	return out
}
