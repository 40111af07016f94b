package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"epic-engine/internal/config"
	"epic-engine/internal/database"
	"epic-engine/internal/messaging"
	"epic-engine/internal/models"
	"epic-engine/internal/service"
	"epic-engine/internal/worker"
	"epic-engine/pkg/logger"
	"epic-engine/pkg/taskmanager"
)

const (
	// Port for the Prometheus scrape endpoint and the liveness probe.
	metricsPort = "9091"
	// How often task metrics go to the Pushgateway.
	metricsPushInterval = 15 * time.Second
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
	zap.L().Info("Starting generation worker", zap.String("logLevel", cfg.LogLevel))

	go startMetricsServer(log)

	if cfg.PushGatewayURL != "" {
		if err := worker.InitMetricsPusher(cfg.PushGatewayURL); err != nil {
			zap.L().Warn("Failed to initialize metrics pusher", zap.Error(err))
		} else {
			worker.StartMetricsPusher(metricsPushInterval)
			defer worker.CleanupMetrics()
		}
	}

	// --- External Connections ---
	ctx := context.Background()

	pgPool, err := database.NewPostgresPool(ctx, cfg.GetDSN(), int32(cfg.DBMaxConns), log)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

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

	progressPublisher, err := messaging.NewRabbitMQProgressPublisher(mqConn, log)
	if err != nil {
		zap.L().Fatal("Failed to create progress publisher", zap.Error(err))
	}

	taskManager, err := taskmanager.New(taskmanager.Config{MaxTasks: cfg.WorkerMaxConcurrent})
	if err != nil {
		zap.L().Fatal("Failed to create task manager", zap.Error(err))
	}

	// The handler needs the engine and the engine's per-chapter hook needs
	// the handler. The closure resolves the cycle; the hook cannot fire
	// before consuming starts, well after the assignment below.
	var workerHandler *worker.Handler
	engine := service.NewEngineService(planner, generator, storyRepo, chapterRepo, universeRepo, storyCache,
		func(chapter *models.Chapter) { workerHandler.OnChapterCommitted(chapter) }, log)
	workerHandler = worker.NewHandler(engine, progressPublisher, taskManager, log)

	taskConsumer := messaging.NewTaskConsumer(mqConn, workerHandler, log)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if err := taskConsumer.Start(consumerCtx); err != nil {
		zap.L().Fatal("Failed to start task consumer", zap.Error(err))
	}

	zap.L().Info("Worker ready, waiting for generation tasks",
		zap.Int("maxConcurrent", cfg.WorkerMaxConcurrent))

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down worker...")

	// Interrupt in-flight generation first. It stops at the next committed
	// chapter boundary and the message is requeued or dead-lettered.
	consumerCancel()
	if err := taskConsumer.Stop(); err != nil {
		zap.L().Error("Error stopping task consumer", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.WorkerShutdownGrace)
	defer shutdownCancel()
	if err := taskManager.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Task manager shutdown incomplete", zap.Error(err))
	}

	zap.L().Info("Worker exiting")
}

// startMetricsServer serves /metrics and /health for scraping and probes.
func startMetricsServer(log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	})

	log.Info("Starting metrics endpoint", zap.String("port", metricsPort))
	if err := http.ListenAndServe(":"+metricsPort, mux); err != nil {
		log.Error("Metrics endpoint stopped", zap.Error(err))
	}
}
