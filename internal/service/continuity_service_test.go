package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/mocks"
	"epic-engine/internal/models"
	"epic-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newTracker(backend *mocks.TextGenerator) *service.ContinuityTracker {
	return service.NewContinuityTracker(backend, interfaces.GenerationParams{}, zap.NewNop())
}

func TestContinuityTrackerInitialState(t *testing.T) {
	story := testStory(0)

	state := newTracker(new(mocks.TextGenerator)).InitialState(story)

	assert.Equal(t, story.ID, state.StoryID)
	assert.Empty(t, state.Window)
	assert.Empty(t, state.OpenThreads)
	assert.Empty(t, state.CumulativeSummary)
	assert.Equal(t, 1, state.Version)
	assert.Contains(t, state.CharacterStatus, story.Protagonist)
}

func TestContinuityTrackerContextFor(t *testing.T) {
	story := testStory(209)
	arc := &story.Arcs[1] // chapters 201-400
	state := testState(story, 4)
	state.CumulativeSummary = "Compressed history."

	t.Run("Window and summary pass through", func(t *testing.T) {
		pctx := newTracker(new(mocks.TextGenerator)).ContextFor(state, arc, 210)

		assert.Equal(t, arc.Brief, pctx.ArcBrief)
		assert.Equal(t, "Compressed history.", pctx.Summary)
		assert.Len(t, pctx.Window, 4)
		assert.Equal(t, 210, pctx.NextChapter)
		assert.Equal(t, 10, pctx.ArcLocalNumber)
	})

	t.Run("Cliffhanger flag follows the arc-local interval", func(t *testing.T) {
		tracker := newTracker(new(mocks.TextGenerator))

		assert.True(t, tracker.ContextFor(state, arc, 210).Cliffhanger)  // local 10
		assert.False(t, tracker.ContextFor(state, arc, 209).Cliffhanger) // local 9
		assert.True(t, tracker.ContextFor(state, arc, 400).Cliffhanger)  // local 200
	})
}

func TestContinuityTrackerFold(t *testing.T) {
	ctx := context.Background()

	newChapter := func(story *models.Story, number int, recap string) *models.Chapter {
		return &models.Chapter{
			StoryID: story.ID,
			Number:  number,
			Title:   fmt.Sprintf("Chapter %d", number),
			Recap:   recap,
		}
	}

	t.Run("Recap joins the window without a backend call", func(t *testing.T) {
		story := testStory(4)
		state := testState(story, 4)
		backend := new(mocks.TextGenerator)

		next, err := newTracker(backend).Fold(ctx, state, story.Universe.MainCharacters,
			newChapter(story, 5, "Harry Potter discovered a door."))

		assert.NoError(t, err)
		assert.Len(t, next.Window, 5)
		assert.Equal(t, 5, next.Window[4].Chapter)
		assert.Equal(t, state.Version+1, next.Version)
		backend.AssertNotCalled(t, "Generate")
	})

	t.Run("Overflow evicts the oldest recap through one compression call", func(t *testing.T) {
		story := testStory(models.RecapWindowSize)
		state := testState(story, models.RecapWindowSize)
		state.CumulativeSummary = "Old summary."

		backend := new(mocks.TextGenerator)
		backend.On("Generate", mock.Anything,
			mock.MatchedBy(func(system string) bool { return strings.Contains(system, "running summary") }),
			mock.MatchedBy(func(user string) bool {
				return strings.Contains(user, "Old summary.") &&
					strings.Contains(user, "RECAP OF CHAPTER 1")
			}),
			mock.Anything,
		).Return("New merged summary.", interfaces.Usage{}, nil).Once()

		next, err := newTracker(backend).Fold(ctx, state, story.Universe.MainCharacters,
			newChapter(story, models.RecapWindowSize+1, "The plot thickened."))

		assert.NoError(t, err)
		assert.Len(t, next.Window, models.RecapWindowSize)
		assert.Equal(t, 2, next.Window[0].Chapter)
		assert.Equal(t, models.RecapWindowSize+1, next.Window[len(next.Window)-1].Chapter)
		assert.Equal(t, "New merged summary.", next.CumulativeSummary)
		backend.AssertExpectations(t)
	})

	t.Run("Failed compression leaves the input state untouched", func(t *testing.T) {
		story := testStory(models.RecapWindowSize)
		state := testState(story, models.RecapWindowSize)
		state.CumulativeSummary = "Old summary."

		backend := new(mocks.TextGenerator)
		backend.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", interfaces.Usage{}, errors.New("backend down"))

		next, err := newTracker(backend).Fold(ctx, state, story.Universe.MainCharacters,
			newChapter(story, models.RecapWindowSize+1, "The plot thickened."))

		assert.ErrorIs(t, err, models.ErrContinuityFold)
		assert.Nil(t, next)
		assert.Len(t, state.Window, models.RecapWindowSize)
		assert.Equal(t, 1, state.Window[0].Chapter)
		assert.Equal(t, "Old summary.", state.CumulativeSummary)
		assert.Equal(t, 1, state.Version)
	})

	t.Run("Characters named in the recap get fresh status", func(t *testing.T) {
		story := testStory(3)
		state := testState(story, 3)

		next, err := newTracker(new(mocks.TextGenerator)).Fold(ctx, state, story.Universe.MainCharacters,
			newChapter(story, 4, "Hermione Granger revealed the plan to Ron Weasley."))

		assert.NoError(t, err)
		assert.Equal(t, "Active as of chapter 4", next.CharacterStatus["Hermione Granger"])
		assert.Equal(t, "Active as of chapter 4", next.CharacterStatus["Ron Weasley"])
		// Protagonist status untouched when not mentioned.
		assert.Equal(t, state.CharacterStatus["Harry Potter"], next.CharacterStatus["Harry Potter"])
	})

	t.Run("Cliffhanger chapters open a plot thread", func(t *testing.T) {
		story := testStory(9)
		state := testState(story, 9)

		chapter := newChapter(story, 10, "The door swung open.")
		chapter.Cliffhanger = true
		chapter.PlotPoints = []string{"Harry discovered the vault"}

		next, err := newTracker(new(mocks.TextGenerator)).Fold(ctx, state, story.Universe.MainCharacters, chapter)

		assert.NoError(t, err)
		assert.Len(t, next.OpenThreads, 1)
		assert.Equal(t, "Harry discovered the vault", next.OpenThreads[0].Description)
		assert.Equal(t, 10, next.OpenThreads[0].OpenedAt)
	})

	t.Run("Resolved threads are closed by later recaps", func(t *testing.T) {
		story := testStory(11)
		state := testState(story, 5)
		state.OpenThreads = []models.PlotThread{
			{ID: "t1", Description: "The sealed vault below Gringotts", OpenedAt: 10},
		}

		next, err := newTracker(new(mocks.TextGenerator)).Fold(ctx, state, story.Universe.MainCharacters,
			newChapter(story, 12, "The vault mystery was finally resolved."))

		assert.NoError(t, err)
		assert.Empty(t, next.OpenThreads)
	})

	t.Run("Unrelated resolution words keep threads open", func(t *testing.T) {
		story := testStory(11)
		state := testState(story, 5)
		state.OpenThreads = []models.PlotThread{
			{ID: "t1", Description: "The sealed vault below Gringotts", OpenedAt: 10},
		}

		next, err := newTracker(new(mocks.TextGenerator)).Fold(ctx, state, story.Universe.MainCharacters,
			newChapter(story, 12, "An argument in the kitchen was resolved."))

		assert.NoError(t, err)
		assert.Len(t, next.OpenThreads, 1)
	})

	t.Run("Thread list is capped at its maximum", func(t *testing.T) {
		story := testStory(29)
		state := testState(story, 5)
		for i := 1; i <= 7; i++ {
			state.OpenThreads = append(state.OpenThreads, models.PlotThread{
				ID:          fmt.Sprintf("t%d", i),
				Description: fmt.Sprintf("Mystery number %d unsolved", i),
				OpenedAt:    i,
			})
		}

		chapter := newChapter(story, 30, "Another twist.")
		chapter.Cliffhanger = true

		next, err := newTracker(new(mocks.TextGenerator)).Fold(ctx, state, story.Universe.MainCharacters, chapter)

		assert.NoError(t, err)
		assert.Len(t, next.OpenThreads, 7)
		assert.Equal(t, "t2", next.OpenThreads[0].ID)
		assert.Equal(t, 30, next.OpenThreads[len(next.OpenThreads)-1].OpenedAt)
	})
}
