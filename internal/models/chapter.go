package models

import (
	"time"

	"github.com/google/uuid"
)

// Chapter is one committed chapter of a story. Chapters are immutable once
// persisted; regenerating a chapter writes a new row with a higher Version
// and reads return the latest version, so the full history stays auditable.
type Chapter struct {
	ID               uuid.UUID `db:"id" json:"id"`
	StoryID          uuid.UUID `db:"story_id" json:"story_id"`
	Number           int       `db:"chapter_number" json:"number"`
	Version          int       `db:"version" json:"version"`
	ArcIndex         int       `db:"arc_index" json:"arc_index"`
	Title            string    `db:"title" json:"title"`
	Content          string    `db:"content" json:"content"`
	Recap            string    `db:"recap" json:"recap"`
	Cliffhanger      bool      `db:"cliffhanger" json:"cliffhanger"`
	WordCount        int       `db:"word_count" json:"word_count"`
	PlotPoints       []string  `db:"plot_points" json:"plot_points"`
	Characters       []string  `db:"characters" json:"characters"`
	Model            string    `db:"model" json:"model,omitempty"`
	PromptTokens     int       `db:"prompt_tokens" json:"prompt_tokens,omitempty"`
	CompletionTokens int       `db:"completion_tokens" json:"completion_tokens,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ChapterSummary is the listing projection of a chapter, without content.
type ChapterSummary struct {
	Number      int       `db:"chapter_number" json:"number"`
	ArcIndex    int       `db:"arc_index" json:"arc_index"`
	Title       string    `db:"title" json:"title"`
	Cliffhanger bool      `db:"cliffhanger" json:"cliffhanger"`
	WordCount   int       `db:"word_count" json:"word_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
