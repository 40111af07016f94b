package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"epic-engine/internal/config"
	"epic-engine/internal/database"
	"epic-engine/internal/interfaces"
	"epic-engine/internal/migrations"
	"epic-engine/internal/models"
	"epic-engine/internal/service"
	"epic-engine/internal/universe"
	"epic-engine/pkg/logger"
	"epic-engine/pkg/migration"
)

const usage = `epicctl drives the story engine directly, without the HTTP API or the queue.

Usage:
  epicctl <command> [flags]

Commands:
  list-universes   print the known universes
  create-epic      plan a new epic story
  advance          generate the next chapters of a story
  list-stories     print stories and their generation cursors
  get-chapter      print one committed chapter

Run 'epicctl <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// .env is optional; the CLI mostly runs against a deployed stack.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fatalf("loading configuration: %v", err)
	}

	// Keep log noise away from command output unless explicitly requested.
	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	log, err := logger.New(logger.Config{Level: level, Encoding: "console"})
	if err != nil {
		fatalf("initializing logger: %v", err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()

	var cmdErr error
	switch os.Args[1] {
	case "list-universes":
		cmdErr = runListUniverses(ctx, cfg, log, os.Args[2:])
	case "create-epic":
		cmdErr = runCreateEpic(ctx, cfg, log, os.Args[2:])
	case "advance":
		cmdErr = runAdvance(ctx, cfg, log, os.Args[2:])
	case "list-stories":
		cmdErr = runListStories(ctx, cfg, log, os.Args[2:])
	case "get-chapter":
		cmdErr = runGetChapter(ctx, cfg, log, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if cmdErr != nil {
		fatalf("%v", cmdErr)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "epicctl: "+format+"\n", args...)
	os.Exit(1)
}

// cliStack bundles the in-process engine and its supporting services.
type cliStack struct {
	engine    interfaces.Engine
	universes *service.UniverseService
	close     func()
}

// openStack connects to PostgreSQL, applies migrations and wires the
// engine. No Redis, no RabbitMQ: reads skip the cache and generation runs
// synchronously in this process. onChapter fires after every committed
// chapter and may be nil.
func openStack(ctx context.Context, cfg *config.Config, log *zap.Logger, onChapter func(*models.Chapter)) (*cliStack, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(connectCtx, cfg.GetDSN(), int32(cfg.DBMaxConns), log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	migrator := migration.NewMigrator(migration.Config{MigrationsFS: migrations.FS}, pool)
	if err := migrator.Up(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	storyRepo := database.NewPgStoryRepository(pool, log)
	chapterRepo := database.NewPgChapterRepository(pool, log)
	continuityRepo := database.NewPgContinuityRepository(pool, log)
	universeRepo := database.NewPgUniverseRepository(pool, log)
	corpusRepo := database.NewPgCorpusRepository(pool, log)
	txManager := database.NewTxManager(pool)
	cache := database.NewNoopStoryCache()

	library, err := universe.Load(cfg.UniverseLibraryPath, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading universe library: %w", err)
	}

	backend, err := service.NewTextGenerator(cfg, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building generation backend: %w", err)
	}

	params := service.ParamsFromConfig(cfg)
	retryPolicy := service.RetryPolicyFromConfig(cfg)
	tracker := service.NewContinuityTracker(backend, params, log)
	planner := service.NewPlannerService(backend, storyRepo, continuityRepo, txManager, tracker, params, retryPolicy, log)
	generator := service.NewBatchGenerator(backend, storyRepo, chapterRepo, continuityRepo, corpusRepo,
		txManager, tracker, params, retryPolicy, cfg.GeneratorModel, log)
	engine := service.NewEngineService(planner, generator, storyRepo, chapterRepo, universeRepo, cache, onChapter, log)
	universeSvc := service.NewUniverseService(universeRepo, corpusRepo, library, cfg.CorpusMaxSampleBytes, log)

	if err := universeSvc.EnsureDefaults(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seeding universe presets: %w", err)
	}

	return &cliStack{
		engine:    engine,
		universes: universeSvc,
		close:     pool.Close,
	}, nil
}

func runListUniverses(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("list-universes", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	stack, err := openStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer stack.close()

	universes, err := stack.universes.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tGENRE\tCHARACTERS\tTHEMES")
	for _, u := range universes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			u.Name, u.Genre, len(u.MainCharacters), strings.Join(u.CentralThemes, ", "))
	}
	return w.Flush()
}

func runCreateEpic(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("create-epic", flag.ExitOnError)
	universeName := fs.String("universe", "", "universe name (required)")
	title := fs.String("title", "", "story title (default derived from the theme)")
	theme := fs.String("theme", "", "main theme (required)")
	protagonist := fs.String("protagonist", "", "protagonist (default: first universe character)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *universeName == "" {
		return fmt.Errorf("create-epic: -universe is required")
	}

	stack, err := openStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer stack.close()

	story, err := stack.engine.CreateEpic(ctx, models.Premise{
		UniverseName: *universeName,
		Title:        *title,
		MainTheme:    *theme,
		Protagonist:  *protagonist,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created story %s\n", story.ID)
	fmt.Printf("  Title:       %s\n", story.Title)
	fmt.Printf("  Universe:    %s\n", story.Universe.Name)
	fmt.Printf("  Protagonist: %s\n", story.Protagonist)
	fmt.Printf("  Summary:     %s\n\n", story.Summary)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARC\tCHAPTERS\tTITLE\tFOCUS")
	for _, arc := range story.Arcs {
		fmt.Fprintf(w, "%d\t%d-%d\t%s\t%s\n",
			arc.Index, arc.StartChapter, arc.EndChapter, arc.Title, arc.Focus)
	}
	return w.Flush()
}

func runAdvance(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("advance", flag.ExitOnError)
	storyFlag := fs.String("story", "", "story ID (required)")
	arcIndex := fs.Int("arc", 0, "arc index, 1-based (required)")
	count := fs.Int("count", 1, "number of chapters to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	storyID, err := uuid.Parse(*storyFlag)
	if err != nil {
		return fmt.Errorf("advance: invalid -story ID: %w", err)
	}
	if *arcIndex < 1 || *arcIndex > models.ArcCount {
		return fmt.Errorf("advance: -arc must be between 1 and %d", models.ArcCount)
	}

	stack, err := openStack(ctx, cfg, log, func(chapter *models.Chapter) {
		fmt.Printf("  chapter %d committed: %s (%d words)\n",
			chapter.Number, chapter.Title, chapter.WordCount)
	})
	if err != nil {
		return err
	}
	defer stack.close()

	fmt.Printf("Advancing story %s by %d chapter(s)...\n", storyID, *count)

	report, advErr := stack.engine.Advance(ctx, storyID, *arcIndex, *count)
	if report != nil {
		fmt.Printf("\nCompleted %d/%d chapter(s), cursor at %d\n",
			report.Completed, report.Requested, report.Cursor)
		fmt.Printf("Tokens: %d prompt / %d completion (~$%.4f)\n",
			report.PromptTokens, report.CompletionTokens, report.EstimatedCostUSD)
		if report.StoryCompleted {
			fmt.Println("The epic is complete.")
		}
	}
	if advErr != nil {
		return fmt.Errorf("advance stopped: %w", advErr)
	}
	return nil
}

func runListStories(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("list-stories", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum stories to print")
	offset := fs.Int("offset", 0, "stories to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stack, err := openStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer stack.close()

	stories, err := stack.engine.ListStories(ctx, *limit, *offset)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUNIVERSE\tCURSOR\tSTATUS")
	for _, s := range stories {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			s.ID, s.Title, s.Universe.Name, s.CurrentChapter, s.TotalChapters, s.Status)
	}
	return w.Flush()
}

func runGetChapter(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("get-chapter", flag.ExitOnError)
	storyFlag := fs.String("story", "", "story ID (required)")
	number := fs.Int("number", 0, "chapter number (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	storyID, err := uuid.Parse(*storyFlag)
	if err != nil {
		return fmt.Errorf("get-chapter: invalid -story ID: %w", err)
	}
	if *number < 1 {
		return fmt.Errorf("get-chapter: -number must be positive")
	}

	stack, err := openStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer stack.close()

	chapter, err := stack.engine.GetChapter(ctx, storyID, *number)
	if err != nil {
		return err
	}

	fmt.Printf("%s (arc %d, %d words)\n\n", chapter.Title, chapter.ArcIndex, chapter.WordCount)
	fmt.Println(chapter.Content)
	if chapter.Cliffhanger {
		fmt.Println("\n[ends on a cliffhanger]")
	}
	return nil
}
