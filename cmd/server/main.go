package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	ginprometheus "github.com/zsais/go-gin-prometheus"

	"epic-engine/internal/config"
	"epic-engine/internal/database"
	"epic-engine/internal/handler"
	"epic-engine/internal/messaging"
	"epic-engine/internal/migrations"
	"epic-engine/internal/service"
	"epic-engine/internal/universe"
	"epic-engine/pkg/logger"
	"epic-engine/pkg/migration"
)

func main() {
	// .env is optional; container deployments set real variables.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- External Connections ---
	ctx := context.Background()

	pgPool, err := database.NewPostgresPool(ctx, cfg.GetDSN(), int32(cfg.DBMaxConns), log)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

	migrator := migration.NewMigrator(migration.Config{MigrationsFS: migrations.FS}, pgPool)
	if err := migrator.Up(); err != nil {
		zap.L().Fatal("Failed to apply database migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	mqConn, err := messaging.ConnectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()

	// --- Dependency Injection ---
	storyRepo := database.NewPgStoryRepository(pgPool, log)
	chapterRepo := database.NewPgChapterRepository(pgPool, log)
	continuityRepo := database.NewPgContinuityRepository(pgPool, log)
	universeRepo := database.NewPgUniverseRepository(pgPool, log)
	corpusRepo := database.NewPgCorpusRepository(pgPool, log)
	txManager := database.NewTxManager(pgPool)
	storyCache := database.NewRedisStoryCache(redisClient, cfg.CacheTTL, log)

	library, err := universe.Load(cfg.UniverseLibraryPath, log)
	if err != nil {
		zap.L().Fatal("Failed to load universe library", zap.Error(err))
	}

	backend, err := service.NewTextGenerator(cfg, log)
	if err != nil {
		zap.L().Fatal("Failed to build generation backend", zap.Error(err))
	}

	params := service.ParamsFromConfig(cfg)
	retryPolicy := service.RetryPolicyFromConfig(cfg)
	tracker := service.NewContinuityTracker(backend, params, log)
	planner := service.NewPlannerService(backend, storyRepo, continuityRepo, txManager, tracker, params, retryPolicy, log)
	generator := service.NewBatchGenerator(backend, storyRepo, chapterRepo, continuityRepo, corpusRepo,
		txManager, tracker, params, retryPolicy, cfg.GeneratorModel, log)

	// The server never generates chapters itself, so no per-chapter hook.
	engine := service.NewEngineService(planner, generator, storyRepo, chapterRepo, universeRepo, storyCache, nil, log)
	universeSvc := service.NewUniverseService(universeRepo, corpusRepo, library, cfg.CorpusMaxSampleBytes, log)

	if err := universeSvc.EnsureDefaults(ctx); err != nil {
		zap.L().Fatal("Failed to seed universe presets", zap.Error(err))
	}

	taskPublisher, err := messaging.NewRabbitMQTaskPublisher(mqConn, log)
	if err != nil {
		zap.L().Fatal("Failed to create task publisher", zap.Error(err))
	}

	hub := handler.NewHub(log)

	// Progress events fan out to websocket subscribers and invalidate the
	// read cache. Workers own the writes; the server only reacts.
	progressConsumer := messaging.NewProgressConsumer(mqConn, func(event messaging.ProgressEventPayload) {
		hub.BroadcastProgress(event)
		if storyID, parseErr := uuid.Parse(event.StoryID); parseErr == nil {
			invalidateCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			storyCache.InvalidateStory(invalidateCtx, storyID)
			cancel()
		}
	}, log)

	// --- Rate Limiter Middleware Setup ---
	rateLimitStore := rateli.RedisStore(&rateli.RedisOptions{
		RedisClient: redisClient,
		Rate:        time.Minute,
		Limit:       uint(cfg.AdvanceRatePerMinute),
	})

	rateLimitMiddleware := rateli.RateLimiter(rateLimitStore, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			zap.L().Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
	zap.L().Info("Rate limiter middleware initialized")

	epicHandler := handler.NewEpicHandler(engine, universeSvc, taskPublisher, hub, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.AppEnv == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(handler.RequestLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	allowedOrigins := cfg.GetAllowedOrigins()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		zap.L().Info("CORSAllowedOrigins not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	epicHandler.RegisterRoutes(router, rateLimitMiddleware)

	// Prometheus middleware goes on after route registration so it sees
	// the final route set.
	p.Use(router)

	// --- Start Background Consumers ---
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if err := progressConsumer.Start(consumerCtx); err != nil {
		zap.L().Fatal("Failed to start progress consumer", zap.Error(err))
	}

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	if err := progressConsumer.Stop(); err != nil {
		zap.L().Error("Error stopping progress consumer", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}
