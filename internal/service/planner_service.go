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

// arcTemplate fixes the deterministic skeleton every epic follows. The
// five-part shape never changes; only the briefs are story-specific.
type arcTemplate struct {
	title        string
	focus        string
	conflictType string
	description  string
}

var arcTemplates = [models.ArcCount]arcTemplate{
	{"The Awakening", "Discovery and Introduction", "Internal/Setup",
		"Protagonist discovers their destiny, new powers, or hidden truth"},
	{"The Rising Storm", "Challenges and Growth", "External/Building",
		"First major conflicts, allies and enemies revealed"},
	{"The Crucible", "Trials and Transformation", "Major Crisis",
		"Greatest challenges, character transformation, major losses"},
	{"The Convergence", "Preparation and Alliance", "Building to Climax",
		"Gathering forces, final preparations, ultimate confrontation approaches"},
	{"The Resolution", "Climax and New Beginning", "Final Battle/Resolution",
		"Ultimate confrontation, resolution of all conflicts, new world order"},
}

var arcConflicts = map[string]string{
	"Internal/Setup":          "Discovering the truth about %s and accepting responsibility",
	"External/Building":       "First confrontations with forces opposing %s",
	"Major Crisis":            "The greatest threat to %s emerges, testing all beliefs",
	"Building to Climax":      "Final preparations to resolve the %s crisis",
	"Final Battle/Resolution": "Ultimate confrontation that determines the fate of %s",
}

var arcTransitions = [models.ArcCount]string{
	"New threats emerge from the shadows",
	"Unexpected allies reveal hidden agendas",
	"The true scope of the conflict becomes clear",
	"Final pieces fall into place for ultimate confrontation",
	"Epic Conclusion",
}

func arcKeyConflict(conflictType, theme string) string {
	format, ok := arcConflicts[conflictType]
	if !ok {
		return fmt.Sprintf("The struggle around %s continues", theme)
	}
	return fmt.Sprintf(format, theme)
}

// PlannerService lays out new epics: a fixed 5x200 arc partition plus one
// backend-generated brief per arc, produced strictly in arc order so every
// brief follows from its predecessor. Briefs are frozen at creation.
type PlannerService struct {
	backend    interfaces.TextGenerator
	stories    interfaces.StoryRepository
	continuity interfaces.ContinuityRepository
	txm        interfaces.TxManager
	tracker    *ContinuityTracker
	params     interfaces.GenerationParams
	retry      RetryPolicy
	logger     *zap.Logger
}

func NewPlannerService(
	backend interfaces.TextGenerator,
	stories interfaces.StoryRepository,
	continuity interfaces.ContinuityRepository,
	txm interfaces.TxManager,
	tracker *ContinuityTracker,
	params interfaces.GenerationParams,
	retry RetryPolicy,
	logger *zap.Logger,
) *PlannerService {
	return &PlannerService{
		backend:    backend,
		stories:    stories,
		continuity: continuity,
		txm:        txm,
		tracker:    tracker,
		params:     params,
		retry:      retry,
		logger:     logger.Named("planner_service"),
	}
}

// Plan validates the premise, partitions the chapters into the five fixed
// arcs, generates the arc briefs, and persists the story, its arcs and the
// initial continuity state in one transaction.
func (p *PlannerService) Plan(ctx context.Context, universe *models.Universe, premise models.Premise) (*models.Story, error) {
	if len(universe.MainCharacters) == 0 {
		return nil, fmt.Errorf("%w: universe %q has no characters", models.ErrInvalidPremise, universe.Name)
	}
	theme := strings.TrimSpace(premise.MainTheme)
	if theme == "" {
		return nil, fmt.Errorf("%w: main theme is empty", models.ErrInvalidPremise)
	}
	protagonist := strings.TrimSpace(premise.Protagonist)
	if protagonist == "" {
		protagonist = universe.MainCharacters[0]
	}
	title := strings.TrimSpace(premise.Title)
	if title == "" {
		title = fmt.Sprintf("%s: %s", universe.Name, theme)
	}

	now := time.Now().UTC()
	story := &models.Story{
		ID:          uuid.New(),
		Title:       title,
		Universe:    *universe,
		MainTheme:   theme,
		Protagonist: protagonist,
		Summary: fmt.Sprintf("An epic %s saga spanning %d chapters across %d arcs, following %s through %s",
			universe.Genre, models.TotalChapters, models.ArcCount, protagonist, theme),
		TotalChapters:  models.TotalChapters,
		CurrentChapter: 0,
		Status:         models.StoryStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	previousBrief := ""
	for i, tpl := range arcTemplates {
		index := i + 1
		arc := models.Arc{
			StoryID:      story.ID,
			Index:        index,
			Title:        fmt.Sprintf("%s: %s", tpl.title, theme),
			Focus:        tpl.focus,
			ConflictType: tpl.conflictType,
			StartChapter: (index-1)*models.ChaptersPerArc + 1,
			EndChapter:   index * models.ChaptersPerArc,
			CreatedAt:    now,
		}

		brief, err := p.generateBrief(ctx, universe, theme, protagonist, ArcBriefContext{
			Arc:           &arc,
			Description:   tpl.description,
			KeyConflict:   arcKeyConflict(tpl.conflictType, theme),
			Transition:    arcTransitions[i],
			PreviousBrief: previousBrief,
		})
		if err != nil {
			return nil, fmt.Errorf("planning arc %d: %w", index, err)
		}
		arc.Brief = brief
		previousBrief = brief
		story.Arcs = append(story.Arcs, arc)
	}

	if err := story.ValidateArcPartition(); err != nil {
		return nil, fmt.Errorf("arc partition: %w", err)
	}

	state := p.tracker.InitialState(story)
	err := p.txm.WithTx(ctx, func(tx interfaces.DBTX) error {
		if err := p.stories.Create(ctx, tx, story); err != nil {
			return err
		}
		return p.continuity.Init(ctx, tx, state)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting planned story: %w", err)
	}

	p.logger.Info("Planned new epic",
		zap.String("story_id", story.ID.String()),
		zap.String("title", story.Title),
		zap.String("universe", universe.Name),
		zap.String("protagonist", protagonist),
	)
	return story, nil
}

func (p *PlannerService) generateBrief(ctx context.Context, universe *models.Universe, theme, protagonist string, bctx ArcBriefContext) (string, error) {
	system, user := BuildArcBriefPrompt(universe, theme, protagonist, bctx)

	var brief string
	_, err := p.retry.Do(ctx, p.logger, fmt.Sprintf("arc_brief_%d", bctx.Arc.Index), func() error {
		text, _, err := p.backend.Generate(ctx, system, user, p.params)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("%w: backend returned empty arc brief", models.ErrGenerationFailed)
		}
		brief = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return brief, nil
}
