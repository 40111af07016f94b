package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Universe is a static description of a fictional setting. Once attached
// to a Story it is copied in as a snapshot, never referenced live, so a
// later edit to the universe cannot shift a running epic's canon.
type Universe struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Genre          string    `db:"genre" json:"genre"`
	Description    string    `db:"description" json:"description"`
	MainCharacters []string  `db:"main_characters" json:"main_characters"`
	KeyLocations   []string  `db:"key_locations" json:"key_locations"`
	CentralThemes  []string  `db:"central_themes" json:"central_themes"`
	MagicSystem    string    `db:"magic_system" json:"magic_system,omitempty"`
	TimePeriod     string    `db:"time_period" json:"time_period,omitempty"`
	WorldElements  []string  `db:"world_elements" json:"world_elements,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// HasCharacter reports whether name matches one of the universe's main
// characters, case-insensitively.
func (u *Universe) HasCharacter(name string) bool {
	for _, c := range u.MainCharacters {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// CorpusSample is one uploaded reference text for a universe. Excerpts
// from samples feed the STYLE REFERENCE section of chapter prompts.
type CorpusSample struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UniverseID uuid.UUID `db:"universe_id" json:"universe_id"`
	Filename   string    `db:"filename" json:"filename"`
	Content    string    `db:"content" json:"-"`
	WordCount  int       `db:"word_count" json:"word_count"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// CorpusStats summarizes a universe's uploaded corpus.
type CorpusStats struct {
	UniverseName string `json:"universe_name"`
	SampleCount  int    `json:"sample_count"`
	TotalWords   int    `json:"total_words"`
}
