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

// maxOpenThreads bounds the thread list carried into prompt context. The
// oldest threads fall off first; by then their content has already been
// folded into the cumulative summary.
const maxOpenThreads = 7

var threadResolutionWords = []string{"resolved", "closed", "concluded", "settled", "answered"}

// ContinuityTracker maintains the bounded rolling memory of a story. Fold
// never mutates its input: it builds the successor state on a deep copy and
// returns it only when every step, including summary compression, succeeded.
type ContinuityTracker struct {
	backend interfaces.TextGenerator
	params  interfaces.GenerationParams
	logger  *zap.Logger
}

func NewContinuityTracker(backend interfaces.TextGenerator, params interfaces.GenerationParams, logger *zap.Logger) *ContinuityTracker {
	return &ContinuityTracker{
		backend: backend,
		params:  params,
		logger:  logger.Named("continuity_tracker"),
	}
}

// InitialState builds the continuity state for a freshly planned story: an
// empty window, the character map seeded with the protagonist, no threads.
func (t *ContinuityTracker) InitialState(story *models.Story) *models.ContinuityState {
	return &models.ContinuityState{
		StoryID: story.ID,
		Window:  []models.RecapEntry{},
		CharacterStatus: map[string]string{
			story.Protagonist: "At the beginning of their journey",
		},
		OpenThreads: []models.PlotThread{},
		Version:     1,
		UpdatedAt:   time.Now().UTC(),
	}
}

// ContextFor assembles the prompt context for the given chapter number
// inside its arc. The result references the state's window and maps
// directly, so callers must not mutate it. Its size is bounded by the
// window size and thread cap, never by how many chapters exist.
func (t *ContinuityTracker) ContextFor(state *models.ContinuityState, arc *models.Arc, chapterNumber int) PromptContext {
	local := arc.LocalNumber(chapterNumber)

	return PromptContext{
		ArcBrief:        arc.Brief,
		Summary:         state.CumulativeSummary,
		Window:          state.Window,
		CharacterStatus: state.CharacterStatus,
		OpenThreads:     state.OpenThreads,
		NextChapter:     chapterNumber,
		ArcLocalNumber:  local,
		Cliffhanger:     models.IsCliffhangerPosition(local),
	}
}

// Fold advances the state with one generated chapter: the recap joins the
// window, the oldest entry is compressed into the cumulative summary once
// the window exceeds its size, statuses of characters named in the recap
// are refreshed, and open threads are adjusted. On any failure the input
// state stays untouched and models.ErrContinuityFold is returned, so the
// caller can retry the fold before committing the chapter.
func (t *ContinuityTracker) Fold(ctx context.Context, state *models.ContinuityState, cast []string, chapter *models.Chapter) (*models.ContinuityState, error) {
	next := state.Clone()

	next.Window = append(next.Window, models.RecapEntry{
		Chapter: chapter.Number,
		Recap:   chapter.Recap,
	})
	if len(next.Window) > models.RecapWindowSize {
		evicted := next.Window[0]
		next.Window = next.Window[1:]

		compressed, err := t.compress(ctx, next.CumulativeSummary, evicted)
		if err != nil {
			return nil, fmt.Errorf("%w: compressing recap of chapter %d: %v",
				models.ErrContinuityFold, evicted.Chapter, err)
		}
		next.CumulativeSummary = compressed
		continuityCompressionsTotal.Inc()
	}

	for _, name := range ExtractCharacters(chapter.Recap, cast) {
		next.CharacterStatus[name] = fmt.Sprintf("Active as of chapter %d", chapter.Number)
	}
	t.updateThreads(next, chapter)

	next.Version = state.Version + 1
	next.UpdatedAt = time.Now().UTC()
	continuityFoldsTotal.Inc()
	return next, nil
}

func (t *ContinuityTracker) compress(ctx context.Context, summary string, evicted models.RecapEntry) (string, error) {
	system, user := BuildCompressionPrompt(summary, evicted)
	text, _, err := t.backend.Generate(ctx, system, user, t.params)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("backend returned empty summary")
	}
	t.logger.Debug("Compressed evicted recap into summary",
		zap.Int("evicted_chapter", evicted.Chapter),
		zap.Int("summary_chars", len(text)),
	)
	return text, nil
}

// updateThreads removes threads the recap explicitly marks resolved and
// opens a thread for each cliffhanger ending.
func (t *ContinuityTracker) updateThreads(next *models.ContinuityState, chapter *models.Chapter) {
	if len(next.OpenThreads) > 0 {
		lowerRecap := strings.ToLower(chapter.Recap)
		kept := next.OpenThreads[:0]
		for _, thread := range next.OpenThreads {
			if thread.OpenedAt < chapter.Number && threadResolved(thread, lowerRecap) {
				continue
			}
			kept = append(kept, thread)
		}
		next.OpenThreads = kept
	}

	if chapter.Cliffhanger {
		next.OpenThreads = append(next.OpenThreads, models.PlotThread{
			ID:          uuid.NewString(),
			Description: threadDescription(chapter),
			OpenedAt:    chapter.Number,
		})
	}

	if len(next.OpenThreads) > maxOpenThreads {
		next.OpenThreads = next.OpenThreads[len(next.OpenThreads)-maxOpenThreads:]
	}
}

// threadResolved reports whether the recap both picks the thread back up
// and marks it closed: a significant word of the description must appear
// together with a resolution word.
func threadResolved(thread models.PlotThread, lowerRecap string) bool {
	mentioned := false
	for _, word := range strings.Fields(strings.ToLower(thread.Description)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len(word) < 5 {
			continue
		}
		if strings.Contains(lowerRecap, word) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return false
	}
	for _, marker := range threadResolutionWords {
		if strings.Contains(lowerRecap, marker) {
			return true
		}
	}
	return false
}

func threadDescription(chapter *models.Chapter) string {
	if len(chapter.PlotPoints) > 0 {
		return chapter.PlotPoints[len(chapter.PlotPoints)-1]
	}
	return fmt.Sprintf("Unresolved cliffhanger from chapter %d (%s)", chapter.Number, chapter.Title)
}
