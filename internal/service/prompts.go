package service

import (
	"fmt"
	"sort"
	"strings"

	"epic-engine/internal/models"
)

// RecapMarker is the trailing block chapters are asked to end with. The
// extractor looks for it; when the backend omits it, a second call
// produces the recap instead.
const RecapMarker = "RECAP:"

// Target prose length per chapter, in words.
const (
	chapterMinWords = 1500
	chapterMaxWords = 2500
)

// PromptContext is the bounded context rendered for one chapter call. Its
// size depends on the recap window size, never on how many chapters exist.
type PromptContext struct {
	ArcBrief        string
	Summary         string
	Window          []models.RecapEntry
	CharacterStatus map[string]string
	OpenThreads     []models.PlotThread
	NextChapter     int
	ArcLocalNumber  int
	Cliffhanger     bool
}

// chapterSystemPrompt frames every chapter call.
func chapterSystemPrompt(universeName string) string {
	return fmt.Sprintf("You are a fanfiction author writing a very long %s epic. "+
		"You write vivid, coherent prose that stays consistent with the story so far. "+
		"Every chapter ends with a block starting with %q containing 2-4 sentences: "+
		"what changed, who changed, and which plot thread opened or closed.",
		universeName, RecapMarker)
}

// BuildChapterPrompt renders the full user prompt for one chapter.
func BuildChapterPrompt(story *models.Story, arc *models.Arc, pctx PromptContext, styleExcerpt string) (system, user string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate Chapter %d of the epic %s fanfiction %q.\n\n",
		pctx.NextChapter, story.Universe.Name, story.Title)

	b.WriteString("STORY CONTEXT:\n")
	fmt.Fprintf(&b, "- Universe: %s\n", story.Universe.Name)
	fmt.Fprintf(&b, "- Main Theme: %s\n", story.MainTheme)
	fmt.Fprintf(&b, "- Current Arc: %s (Arc %d/%d)\n", arc.Title, arc.Index, models.ArcCount)
	fmt.Fprintf(&b, "- Arc Theme: %s\n", arc.Focus)
	fmt.Fprintf(&b, "- Arc Conflict: %s\n", arc.ConflictType)
	fmt.Fprintf(&b, "- Arc Brief: %s\n", pctx.ArcBrief)
	fmt.Fprintf(&b, "- Chapter Position: %d/%d in this arc (%.1f%% through arc)\n\n",
		pctx.ArcLocalNumber, models.ChaptersPerArc,
		float64(pctx.ArcLocalNumber)/float64(models.ChaptersPerArc)*100)

	if pctx.Summary != "" {
		b.WriteString("STORY SO FAR (compressed):\n")
		b.WriteString(pctx.Summary)
		b.WriteString("\n\n")
	}
	if len(pctx.Window) > 0 {
		b.WriteString("RECENT CHAPTERS:\n")
		for _, entry := range pctx.Window {
			fmt.Fprintf(&b, "- Chapter %d: %s\n", entry.Chapter, entry.Recap)
		}
		b.WriteString("\n")
	}
	if len(pctx.CharacterStatus) > 0 {
		b.WriteString("CHARACTER STATUS:\n")
		for _, name := range sortedKeys(pctx.CharacterStatus) {
			fmt.Fprintf(&b, "- %s: %s\n", name, pctx.CharacterStatus[name])
		}
		b.WriteString("\n")
	}
	if len(pctx.OpenThreads) > 0 {
		b.WriteString("OPEN PLOT THREADS:\n")
		for _, thread := range pctx.OpenThreads {
			fmt.Fprintf(&b, "- [%s] %s\n", thread.ID, thread.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("STYLE REFERENCE:\n")
	if styleExcerpt != "" {
		fmt.Fprintf(&b, "Based on the writing style of the %s fanfiction corpus, maintain consistency with:\n%s\n\n",
			story.Universe.Name, styleExcerpt)
	} else {
		b.WriteString("Standard narrative style\n\n")
	}

	b.WriteString("CHAPTER REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Word count: %d-%d words\n", chapterMinWords, chapterMaxWords)
	fmt.Fprintf(&b, "- Include character development for: %s\n", strings.Join(story.Universe.MainCharacters, ", "))
	fmt.Fprintf(&b, "- Advance the arc's brief: %s\n", pctx.ArcBrief)
	b.WriteString("- Maintain continuity with previous chapters\n")
	if pctx.Cliffhanger {
		fmt.Fprintf(&b, "- This is chapter %d of the arc: END ON A CLIFFHANGER that demands the next chapter\n", pctx.ArcLocalNumber)
	} else {
		b.WriteString("- End with appropriate tension for chapter position in arc\n")
	}
	b.WriteString("\n")

	b.WriteString("CHAPTER STRUCTURE:\n")
	b.WriteString("1. Opening scene that connects to previous events\n")
	b.WriteString("2. Character interactions and development\n")
	b.WriteString("3. Plot advancement related to arc theme\n")
	b.WriteString("4. Conflict escalation or resolution moment\n")
	b.WriteString("5. Transition setup for next chapter\n\n")
	fmt.Fprintf(&b, "Finish with the %s block.\n\nGenerate the chapter content now:", RecapMarker)

	return chapterSystemPrompt(story.Universe.Name), b.String()
}

// ArcBriefContext is everything the planner feeds into one brief request.
type ArcBriefContext struct {
	Arc           *models.Arc
	Description   string
	KeyConflict   string
	Transition    string
	PreviousBrief string
}

// BuildArcBriefPrompt renders the planner's per-arc brief request. Briefs
// are generated in arc order; each one sees its predecessor so the arcs
// chain into a single escalation.
func BuildArcBriefPrompt(universe *models.Universe, theme, protagonist string, bctx ArcBriefContext) (system, user string) {
	system = fmt.Sprintf("You are a story architect planning a %d-chapter %s epic. "+
		"You answer with a compact thematic brief of 3-5 sentences: the arc's entry conflict, "+
		"the expected character growth, and the exit state. No chapter lists, no headings.",
		models.TotalChapters, universe.Genre)

	arc := bctx.Arc
	var b strings.Builder
	fmt.Fprintf(&b, "Plan arc %d of %d, %q, covering chapters %d-%d.\n\n",
		arc.Index, models.ArcCount, arc.Title, arc.StartChapter, arc.EndChapter)
	fmt.Fprintf(&b, "Universe: %s (%s)\n", universe.Name, universe.Genre)
	fmt.Fprintf(&b, "Main theme: %s\n", theme)
	fmt.Fprintf(&b, "Protagonist: %s\n", protagonist)
	fmt.Fprintf(&b, "Main characters: %s\n", strings.Join(universe.MainCharacters, ", "))
	if len(universe.KeyLocations) > 0 {
		fmt.Fprintf(&b, "Key locations: %s\n", strings.Join(universe.KeyLocations, ", "))
	}
	if universe.MagicSystem != "" {
		fmt.Fprintf(&b, "Magic/technology system: %s\n", universe.MagicSystem)
	}
	fmt.Fprintf(&b, "Arc focus: %s\n", arc.Focus)
	fmt.Fprintf(&b, "Arc description: %s\n", bctx.Description)
	fmt.Fprintf(&b, "Conflict type: %s\n", arc.ConflictType)
	fmt.Fprintf(&b, "Key conflict: %s\n", bctx.KeyConflict)
	fmt.Fprintf(&b, "Exit direction: %s\n", bctx.Transition)
	if bctx.PreviousBrief != "" {
		fmt.Fprintf(&b, "\nThe previous arc's brief, which this arc must follow from:\n%s\n", bctx.PreviousBrief)
	} else {
		b.WriteString("\nThis is the opening arc; it establishes the premise from nothing.\n")
	}
	b.WriteString("\nWrite the brief now:")

	return system, b.String()
}

// BuildRecapPrompt asks for a recap of a chapter whose text came back
// without the trailing recap block.
func BuildRecapPrompt(chapterNumber int, chapterText string) (system, user string) {
	system = "You summarize fiction chapters. Answer with 2-4 plain sentences covering: " +
		"what changed, who changed, and which plot thread opened or closed. Nothing else."
	user = fmt.Sprintf("Summarize chapter %d:\n\n%s", chapterNumber, chapterText)
	return system, user
}

// BuildCompressionPrompt folds the oldest evicted recap into the
// cumulative summary, keeping the result shorter than the two inputs
// combined.
func BuildCompressionPrompt(cumulativeSummary string, evicted models.RecapEntry) (system, user string) {
	system = "You maintain a running summary of a very long story. Merge the new chapter recap " +
		"into the existing summary and return only the updated summary. Keep it under 250 words, " +
		"preserving character arcs and unresolved threads over scene detail."
	var b strings.Builder
	b.WriteString("EXISTING SUMMARY:\n")
	if cumulativeSummary == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(cumulativeSummary)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nRECAP OF CHAPTER %d TO FOLD IN:\n%s\n\nUpdated summary:", evicted.Chapter, evicted.Recap)
	return system, b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
