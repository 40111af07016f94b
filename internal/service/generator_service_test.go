package service_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/mocks"
	"epic-engine/internal/models"
	"epic-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func fastRetry() service.RetryPolicy {
	return service.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2.0,
	}
}

type generatorFixture struct {
	backend    *mocks.TextGenerator
	stories    *mocks.StoryRepository
	chapters   *mocks.ChapterRepository
	continuity *mocks.ContinuityRepository
	corpus     *mocks.CorpusRepository
	txm        *mocks.TxManager
	gen        *service.BatchGenerator
}

func newGeneratorFixture() *generatorFixture {
	f := &generatorFixture{
		backend:    new(mocks.TextGenerator),
		stories:    new(mocks.StoryRepository),
		chapters:   new(mocks.ChapterRepository),
		continuity: new(mocks.ContinuityRepository),
		corpus:     new(mocks.CorpusRepository),
		txm:        new(mocks.TxManager),
	}
	tracker := service.NewContinuityTracker(f.backend, interfaces.GenerationParams{}, zap.NewNop())
	f.gen = service.NewBatchGenerator(f.backend, f.stories, f.chapters, f.continuity, f.corpus,
		f.txm, tracker, interfaces.GenerationParams{}, fastRetry(), "test-model", zap.NewNop())
	return f
}

// noStyle makes the corpus lookup miss so prompts use the standard style.
func (f *generatorFixture) noStyle() {
	f.corpus.On("RandomExcerpt", mock.Anything, mock.Anything, mock.Anything).
		Return("", models.ErrNotFound)
}

func TestGenerateBatchValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("Count out of range", func(t *testing.T) {
		f := newGeneratorFixture()
		story := testStory(0)

		_, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
			StoryID: story.ID, ArcIndex: 1, StartChapter: 1, Count: 0,
		}, nil)

		assert.ErrorIs(t, err, models.ErrInvalidInput)
		f.continuity.AssertNotCalled(t, "Get")
	})

	t.Run("Batch crossing the arc boundary is rejected", func(t *testing.T) {
		f := newGeneratorFixture()
		story := testStory(199)

		_, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
			StoryID: story.ID, ArcIndex: 1, StartChapter: 200, Count: 3,
		}, nil)

		assert.ErrorIs(t, err, models.ErrArcBoundary)
		f.continuity.AssertNotCalled(t, "Get")
		f.backend.AssertNotCalled(t, "Generate")
	})

	t.Run("Start not at the cursor is out of order", func(t *testing.T) {
		f := newGeneratorFixture()
		story := testStory(5)

		_, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
			StoryID: story.ID, ArcIndex: 1, StartChapter: 7, Count: 1,
		}, nil)

		assert.ErrorIs(t, err, models.ErrOutOfOrder)
		f.backend.AssertNotCalled(t, "Generate")
	})
}

func TestGenerateBatchCommitsSequentially(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture()
	f.noStyle()

	story := testStory(4)
	state := testState(story, 4)

	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()
	f.txm.On("WithTx", mock.Anything, mock.Anything).Return(nil)

	chapterSystem := mock.MatchedBy(func(system string) bool {
		return strings.Contains(system, "fanfiction author")
	})
	for _, number := range []int{5, 6, 7} {
		num := number
		userMatcher := mock.MatchedBy(func(user string) bool {
			if !strings.Contains(user, "Generate Chapter "+strconv.Itoa(num)+" ") {
				return false
			}
			// The second and third prompts must carry the freshly folded
			// recap of their predecessor.
			if num > 5 {
				return strings.Contains(user, "pressed north and discovered a trail marker")
			}
			return true
		})
		f.backend.On("Generate", mock.Anything, chapterSystem, userMatcher, mock.Anything).
			Return(chapterText(num), interfaces.Usage{PromptTokens: 100, CompletionTokens: 200, TotalTokens: 300}, nil).Once()
	}

	f.chapters.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("*models.Chapter")).
		Return(nil).Times(3)
	// The continuity CAS version advances with every committed chapter.
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.AnythingOfType("*models.ContinuityState"), 1).Return(nil).Once()
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.AnythingOfType("*models.ContinuityState"), 2).Return(nil).Once()
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.AnythingOfType("*models.ContinuityState"), 3).Return(nil).Once()
	// So does the cursor CAS.
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 4).Return(nil).Once()
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 5).Return(nil).Once()
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 6).Return(nil).Once()

	var hookNumbers []int
	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: 5, Count: 3,
	}, func(ch *models.Chapter) { hookNumbers = append(hookNumbers, ch.Number) })

	assert.NoError(t, err)
	assert.Len(t, committed, 3)
	assert.Equal(t, []int{5, 6, 7}, hookNumbers)
	assert.Equal(t, 7, story.CurrentChapter)

	first := committed[0]
	assert.Equal(t, 5, first.Number)
	assert.Equal(t, 1, first.ArcIndex)
	assert.Equal(t, 1, first.Version)
	assert.False(t, first.Cliffhanger)
	assert.Equal(t, "test-model", first.Model)
	assert.NotEmpty(t, first.Recap)
	assert.NotContains(t, first.Content, service.RecapMarker)
	assert.Greater(t, first.WordCount, 0)
	assert.Contains(t, first.Characters, "Harry Potter")

	f.backend.AssertExpectations(t)
	f.continuity.AssertExpectations(t)
	f.stories.AssertExpectations(t)
	f.chapters.AssertExpectations(t)
}

func TestGenerateBatchCliffhangerPlacement(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture()
	f.noStyle()

	story := testStory(9)
	state := testState(story, 9)

	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()
	f.txm.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	f.backend.On("Generate", mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "fanfiction author") }),
		mock.MatchedBy(func(user string) bool { return strings.Contains(user, "END ON A CLIFFHANGER") }),
		mock.Anything,
	).Return(chapterText(10), interfaces.Usage{}, nil).Once()
	f.chapters.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.Anything, 1).Return(nil).Once()
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 9).Return(nil).Once()

	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: 10, Count: 1,
	}, nil)

	assert.NoError(t, err)
	assert.Len(t, committed, 1)
	assert.True(t, committed[0].Cliffhanger)
	f.backend.AssertExpectations(t)
}

func TestGenerateBatchRecapFallback(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture()
	f.noStyle()

	story := testStory(0)
	state := testState(story, 0)

	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()
	f.txm.On("WithTx", mock.Anything, mock.Anything).Return(nil)

	// The chapter comes back without its recap block.
	f.backend.On("Generate", mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "fanfiction author") }),
		mock.Anything, mock.Anything,
	).Return("Chapter 1: A Quiet Start\n\nProse without the trailing block.",
		interfaces.Usage{PromptTokens: 100, CompletionTokens: 200, TotalTokens: 300}, nil).Once()
	// A dedicated recap call fills it in.
	f.backend.On("Generate", mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "summarize fiction chapters") }),
		mock.MatchedBy(func(user string) bool { return strings.Contains(user, "Summarize chapter 1") }),
		mock.Anything,
	).Return("A fallback recap.", interfaces.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, nil).Once()

	f.chapters.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.Anything, 1).Return(nil).Once()
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 0).Return(nil).Once()

	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: 1, Count: 1,
	}, nil)

	assert.NoError(t, err)
	assert.Len(t, committed, 1)
	assert.Equal(t, "A fallback recap.", committed[0].Recap)
	// Token usage of both calls lands on the chapter.
	assert.Equal(t, 110, committed[0].PromptTokens)
	assert.Equal(t, 220, committed[0].CompletionTokens)
	f.backend.AssertExpectations(t)
}

func TestGenerateBatchMidBatchFailure(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture()
	f.noStyle()

	story := testStory(4)
	state := testState(story, 4)

	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()
	f.txm.On("WithTx", mock.Anything, mock.Anything).Return(nil)

	chapterSystem := mock.MatchedBy(func(system string) bool {
		return strings.Contains(system, "fanfiction author")
	})
	for _, number := range []int{5, 6} {
		num := number
		f.backend.On("Generate", mock.Anything, chapterSystem,
			mock.MatchedBy(func(user string) bool {
				return strings.Contains(user, "Generate Chapter "+strconv.Itoa(num)+" ")
			}), mock.Anything,
		).Return(chapterText(num), interfaces.Usage{}, nil).Once()
	}
	// Chapter 7 fails on both retry attempts.
	f.backend.On("Generate", mock.Anything, chapterSystem,
		mock.MatchedBy(func(user string) bool {
			return strings.Contains(user, "Generate Chapter 7 ")
		}), mock.Anything,
	).Return("", interfaces.Usage{}, errors.New("backend down")).Times(2)

	f.chapters.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(2)
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.Anything, 1).Return(nil).Once()
	f.continuity.On("Save", mock.Anything, mock.Anything, mock.Anything, 2).Return(nil).Once()
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 4).Return(nil).Once()
	f.stories.On("AdvanceCursor", mock.Anything, mock.Anything, story.ID, 5).Return(nil).Once()

	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: 5, Count: 3,
	}, nil)

	// The committed prefix survives the failure.
	assert.Len(t, committed, 2)
	assert.Equal(t, 6, story.CurrentChapter)

	var backendErr *models.GenerationBackendError
	assert.ErrorAs(t, err, &backendErr)
	assert.Equal(t, 7, backendErr.Chapter)
	assert.Equal(t, 6, backendErr.LastCommitted)
	assert.Equal(t, 2, backendErr.Attempts)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)

	f.backend.AssertExpectations(t)
}

func TestGenerateBatchFoldFailureAbortsCommit(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture()
	f.noStyle()

	story := testStory(models.RecapWindowSize)
	state := testState(story, models.RecapWindowSize)

	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()

	f.backend.On("Generate", mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "fanfiction author") }),
		mock.Anything, mock.Anything,
	).Return(chapterText(models.RecapWindowSize+1), interfaces.Usage{}, nil).Once()
	// The fold's compression call fails on both retry attempts, so the
	// chapter never reaches the transaction.
	f.backend.On("Generate", mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "running summary") }),
		mock.Anything, mock.Anything,
	).Return("", interfaces.Usage{}, errors.New("backend down")).Times(2)

	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: models.RecapWindowSize + 1, Count: 1,
	}, nil)

	assert.ErrorIs(t, err, models.ErrContinuityFold)
	assert.Empty(t, committed)
	assert.Equal(t, models.RecapWindowSize, story.CurrentChapter)
	f.chapters.AssertNotCalled(t, "Insert")
	f.txm.AssertNotCalled(t, "WithTx")
	f.backend.AssertExpectations(t)
}

func TestGenerateBatchCommitFailure(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture()
	f.noStyle()

	story := testStory(0)
	state := testState(story, 0)

	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()
	f.backend.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(chapterText(1), interfaces.Usage{}, nil).Once()
	f.txm.On("WithTx", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: 1, Count: 1,
	}, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "committing chapter 1")
	assert.Empty(t, committed)
	assert.Equal(t, 0, story.CurrentChapter)
}

func TestGenerateBatchContextCancelled(t *testing.T) {
	f := newGeneratorFixture()

	story := testStory(4)
	state := testState(story, 4)
	f.continuity.On("Get", mock.Anything, story.ID).Return(state, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	committed, err := f.gen.GenerateBatch(ctx, story, models.BatchRequest{
		StoryID: story.ID, ArcIndex: 1, StartChapter: 5, Count: 2,
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, committed)
	f.backend.AssertNotCalled(t, "Generate")
}
