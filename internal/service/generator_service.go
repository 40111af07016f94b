package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// styleExcerptMaxChars caps the corpus excerpt injected as style reference.
const styleExcerptMaxChars = 2000

// BatchGenerator produces chapters strictly sequentially. Each chapter's
// prompt context depends on the previous chapter's folded continuity state,
// so there is no fan-out inside a batch. Every chapter commits as one
// transaction: chapter row, continuity state, cursor. A failure mid-batch
// leaves all previously committed chapters in place.
type BatchGenerator struct {
	backend    interfaces.TextGenerator
	stories    interfaces.StoryRepository
	chapters   interfaces.ChapterRepository
	continuity interfaces.ContinuityRepository
	corpus     interfaces.CorpusRepository
	txm        interfaces.TxManager
	tracker    *ContinuityTracker
	params     interfaces.GenerationParams
	retry      RetryPolicy
	model      string
	logger     *zap.Logger
}

func NewBatchGenerator(
	backend interfaces.TextGenerator,
	stories interfaces.StoryRepository,
	chapters interfaces.ChapterRepository,
	continuity interfaces.ContinuityRepository,
	corpus interfaces.CorpusRepository,
	txm interfaces.TxManager,
	tracker *ContinuityTracker,
	params interfaces.GenerationParams,
	retry RetryPolicy,
	model string,
	logger *zap.Logger,
) *BatchGenerator {
	return &BatchGenerator{
		backend:    backend,
		stories:    stories,
		chapters:   chapters,
		continuity: continuity,
		corpus:     corpus,
		txm:        txm,
		tracker:    tracker,
		params:     params,
		retry:      retry,
		model:      model,
		logger:     logger.Named("batch_generator"),
	}
}

// GenerateBatch generates and commits chapters req.StartChapter through
// req.StartChapter+req.Count-1. It returns the chapters committed by this
// call; on error the returned slice still holds everything that was
// committed before the failure. onCommit, when non-nil, fires after each
// chapter's transaction lands.
//
// The caller must hold the story's advance lock.
func (g *BatchGenerator) GenerateBatch(ctx context.Context, story *models.Story, req models.BatchRequest, onCommit func(*models.Chapter)) ([]models.Chapter, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	arc, err := story.ArcByIndex(req.ArcIndex)
	if err != nil {
		return nil, err
	}

	end := req.StartChapter + req.Count - 1
	if !arc.Contains(req.StartChapter) || !arc.Contains(end) {
		return nil, fmt.Errorf("%w: chapters %d-%d fall outside arc %d (%d-%d)",
			models.ErrArcBoundary, req.StartChapter, end, arc.Index, arc.StartChapter, arc.EndChapter)
	}
	if req.StartChapter != story.CurrentChapter+1 {
		return nil, fmt.Errorf("%w: batch starts at chapter %d but story cursor is %d",
			models.ErrOutOfOrder, req.StartChapter, story.CurrentChapter)
	}

	state, err := g.continuity.Get(ctx, story.ID)
	if err != nil {
		return nil, fmt.Errorf("loading continuity state: %w", err)
	}

	committed := make([]models.Chapter, 0, req.Count)
	for number := req.StartChapter; number <= end; number++ {
		if err := ctx.Err(); err != nil {
			return committed, err
		}

		chapter, usage, err := g.generateChapter(ctx, story, arc, state, number)
		if err != nil {
			return committed, err
		}

		nextState, err := g.foldWithRetry(ctx, state, story, chapter)
		if err != nil {
			return committed, err
		}

		err = g.txm.WithTx(ctx, func(tx interfaces.DBTX) error {
			if err := g.chapters.Insert(ctx, tx, chapter); err != nil {
				return err
			}
			if err := g.continuity.Save(ctx, tx, nextState, state.Version); err != nil {
				return err
			}
			return g.stories.AdvanceCursor(ctx, tx, story.ID, number-1)
		})
		if err != nil {
			return committed, fmt.Errorf("committing chapter %d: %w", number, err)
		}

		state = nextState
		story.CurrentChapter = number
		committed = append(committed, *chapter)
		chaptersCommittedTotal.Inc()

		g.logger.Info("Chapter committed",
			zap.String("story_id", story.ID.String()),
			zap.Int("chapter", number),
			zap.Int("arc", arc.Index),
			zap.Bool("cliffhanger", chapter.Cliffhanger),
			zap.Int("word_count", chapter.WordCount),
			zap.Int("total_tokens", usage.TotalTokens),
		)
		if onCommit != nil {
			onCommit(chapter)
		}
	}

	return committed, nil
}

// generateChapter runs the backend calls for one chapter: the main
// generation with retries, then a second recap call if the text came back
// without its trailing recap block. Nothing is persisted here.
func (g *BatchGenerator) generateChapter(ctx context.Context, story *models.Story, arc *models.Arc, state *models.ContinuityState, number int) (*models.Chapter, interfaces.Usage, error) {
	pctx := g.tracker.ContextFor(state, arc, number)
	styleExcerpt := g.styleExcerpt(ctx, story)
	system, user := BuildChapterPrompt(story, arc, pctx, styleExcerpt)

	var (
		raw   string
		usage interfaces.Usage
	)
	attempts, err := g.retry.Do(ctx, g.logger, fmt.Sprintf("generate_chapter_%d", number), func() error {
		text, u, err := g.backend.Generate(ctx, system, user, g.params)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: backend returned empty chapter text", models.ErrGenerationFailed)
		}
		raw, usage = text, u
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, usage, err
		}
		return nil, usage, &models.GenerationBackendError{
			StoryID:       story.ID,
			Chapter:       number,
			LastCommitted: story.CurrentChapter,
			Attempts:      attempts,
			Err:           err,
		}
	}

	body, recap, ok := ExtractRecap(raw)
	if !ok {
		recap, err = g.recapFallback(ctx, story, number, body, &usage)
		if err != nil {
			return nil, usage, err
		}
	}

	local := arc.LocalNumber(number)
	now := time.Now().UTC()
	chapter := &models.Chapter{
		ID:               uuid.New(),
		StoryID:          story.ID,
		Number:           number,
		Version:          1,
		ArcIndex:         arc.Index,
		Title:            ExtractTitle(body, number, story.MainTheme),
		Content:          body,
		Recap:            recap,
		Cliffhanger:      models.IsCliffhangerPosition(local),
		WordCount:        CountWords(body),
		PlotPoints:       ExtractPlotPoints(body),
		Characters:       ExtractCharacters(body, story.Universe.MainCharacters),
		Model:            g.model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        now,
	}
	return chapter, usage, nil
}

// recapFallback asks the backend for the missing recap with a second call.
// A chapter without a recap cannot be committed, so failure here is a
// generation failure for the whole chapter.
func (g *BatchGenerator) recapFallback(ctx context.Context, story *models.Story, number int, body string, usage *interfaces.Usage) (string, error) {
	system, user := BuildRecapPrompt(number, body)

	var recap string
	attempts, err := g.retry.Do(ctx, g.logger, fmt.Sprintf("recap_chapter_%d", number), func() error {
		text, u, err := g.backend.Generate(ctx, system, user, g.params)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("%w: backend returned empty recap", models.ErrGenerationFailed)
		}
		recap = text
		usage.PromptTokens += u.PromptTokens
		usage.CompletionTokens += u.CompletionTokens
		usage.TotalTokens += u.TotalTokens
		usage.EstimatedCostUSD += u.EstimatedCostUSD
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", &models.GenerationBackendError{
			StoryID:       story.ID,
			Chapter:       number,
			LastCommitted: story.CurrentChapter,
			Attempts:      attempts,
			Err:           err,
		}
	}
	return recap, nil
}

// foldWithRetry folds the chapter into the continuity state, retrying the
// fold because its compression call hits the backend. A chapter whose fold
// never succeeds is not committed.
func (g *BatchGenerator) foldWithRetry(ctx context.Context, state *models.ContinuityState, story *models.Story, chapter *models.Chapter) (*models.ContinuityState, error) {
	var next *models.ContinuityState
	_, err := g.retry.Do(ctx, g.logger, fmt.Sprintf("fold_chapter_%d", chapter.Number), func() error {
		ns, err := g.tracker.Fold(ctx, state, story.Universe.MainCharacters, chapter)
		if err != nil {
			return err
		}
		next = ns
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("chapter %d: %w", chapter.Number, err)
	}
	return next, nil
}

// styleExcerpt pulls a random corpus sample for the story's universe. The
// style reference is optional: any failure falls back to the default
// narrative style rather than blocking generation.
func (g *BatchGenerator) styleExcerpt(ctx context.Context, story *models.Story) string {
	excerpt, err := g.corpus.RandomExcerpt(ctx, story.Universe.ID, styleExcerptMaxChars)
	if err != nil {
		return ""
	}
	return excerpt
}
