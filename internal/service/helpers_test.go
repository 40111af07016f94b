package service_test

import (
	"fmt"
	"time"

	"epic-engine/internal/models"

	"github.com/google/uuid"
)

// Shared fixtures for the service tests. Stories are built with the real
// arc partition so boundary math behaves exactly as in production.

func testUniverse() models.Universe {
	return models.Universe{
		ID:             uuid.New(),
		Name:           "Harry Potter",
		Genre:          "Fantasy",
		Description:    "The wizarding world",
		MainCharacters: []string{"Harry Potter", "Hermione Granger", "Ron Weasley"},
		KeyLocations:   []string{"Hogwarts", "Diagon Alley"},
		CentralThemes:  []string{"Friendship", "Good vs Evil"},
		MagicSystem:    "Wand-based magic",
		CreatedAt:      time.Now().UTC(),
	}
}

func testStory(cursor int) *models.Story {
	now := time.Now().UTC()
	story := &models.Story{
		ID:             uuid.New(),
		Title:          "The Long War",
		Universe:       testUniverse(),
		MainTheme:      "Redemption",
		Protagonist:    "Harry Potter",
		Summary:        "An epic saga",
		TotalChapters:  models.TotalChapters,
		CurrentChapter: cursor,
		Status:         models.StoryStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := 1; i <= models.ArcCount; i++ {
		story.Arcs = append(story.Arcs, models.Arc{
			StoryID:      story.ID,
			Index:        i,
			Title:        fmt.Sprintf("Arc %d", i),
			Focus:        "Growth",
			ConflictType: "External/Building",
			StartChapter: (i-1)*models.ChaptersPerArc + 1,
			EndChapter:   i * models.ChaptersPerArc,
			Brief:        fmt.Sprintf("Brief for arc %d", i),
			CreatedAt:    now,
		})
	}
	return story
}

// testState builds a continuity state whose window already holds windowLen
// recaps for chapters ending just below the story cursor.
func testState(story *models.Story, windowLen int) *models.ContinuityState {
	state := &models.ContinuityState{
		StoryID: story.ID,
		Window:  []models.RecapEntry{},
		CharacterStatus: map[string]string{
			story.Protagonist: "At the beginning of their journey",
		},
		OpenThreads: []models.PlotThread{},
		Version:     1,
		UpdatedAt:   time.Now().UTC(),
	}
	for i := 0; i < windowLen; i++ {
		chapter := story.CurrentChapter - windowLen + i + 1
		state.Window = append(state.Window, models.RecapEntry{
			Chapter: chapter,
			Recap:   fmt.Sprintf("Recap of chapter %d.", chapter),
		})
	}
	return state
}

// chapterText is a minimal backend response carrying a recap block.
func chapterText(number int) string {
	return fmt.Sprintf(
		"Chapter %d: The Road North\n\nHarry Potter walked on. Hermione Granger discovered a trail marker.\n\n"+
			"RECAP: Harry Potter and Hermione Granger pressed north and discovered a trail marker.",
		number)
}
