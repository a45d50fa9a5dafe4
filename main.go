package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/api"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/cache"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/db"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/logger"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/storage"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/tasks"
)

var (
	runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (scheduler and lifecycle worker), 'all' (default)")
	enqueue = flag.String("enqueue", "", "Enqueue one lifecycle task now and exit (e.g. listing:cleanup)")
	dryRun  = flag.Bool("dry-run", false, "With -enqueue: plan only, write nothing")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr := logger.New(cfg)
	defer logr.Sync() //nolint:errcheck

	// Initialize Cache (Redis), also the Asynq broker
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logr)
	if err != nil {
		logr.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient, logr); err != nil {
			logr.Warn("Error disconnecting from Redis", zap.Error(err))
		}
	}()

	if *enqueue != "" {
		enqueueOnce(mustLifecycleTask(*enqueue, *dryRun), redisClient, logr)
		return
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, logr)
	if err != nil {
		logr.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient, logr); err != nil {
			logr.Warn("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	ctxIdx, cancelIdx := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctxIdx, mongoDb); err != nil {
		logr.Warn("Failed to ensure indexes", zap.Error(err))
	}
	cancelIdx()

	// Initialize S3 storage for listing images
	imageStorage, err := storage.NewS3Storage(cfg, logr)
	if err != nil {
		logr.Fatal("Failed to initialize S3 storage", zap.Error(err))
	}

	lifecycleService := services.NewLifecycleService(cfg, services.LifecycleDeps{
		Store:    db.NewLifecycleStore(mongoDb, cfg.MongoUseTransactions),
		Images:   imageStorage,
		Recorder: cache.NewRunRecorder(redisClient, cfg.RunSummaryTTL),
		Logger:   logr,
	})

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	var mainApiSrv *http.Server
	var limiterDone chan struct{}
	var lifecycleTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	logr.Info("Starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		router, rateLimiter := api.SetupRouter(cfg, lifecycleService, logr)
		limiterDone = make(chan struct{})
		go rateLimiter.RunCleanup(time.Minute, limiterDone)

		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logr.Info("Main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logr.Fatal("Main API ListenAndServe error", zap.Error(err))
			}
			logr.Info("Main API server stopped.")
		}()
	}

	bgMode := func() {
		processor := tasks.NewTaskProcessor(lifecycleService, logr)
		var mux *asynq.ServeMux
		lifecycleTaskSrv, mux = tasks.SetupServer(redisClient, processor, logr)
		if err := lifecycleTaskSrv.Start(mux); err != nil {
			logr.Fatal("Lifecycle task server error", zap.Error(err))
		}
		logr.Info("Lifecycle task server started.")

		scheduler, err = tasks.SetupScheduler(redisClient, cfg, logr)
		if err != nil {
			logr.Fatal("Failed to set up scheduler", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			logr.Fatal("Scheduler error", zap.Error(err))
		}
		logr.Info("Lifecycle scheduler started.")
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		logr.Fatal("Invalid run mode", zap.String("mode", cfg.RunMode))
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logr.Info("Shutting down gracefully...", zap.String("signal", sig.String()))

	// Create context with timeout for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		logr.Info("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logr.Warn("Main API server shutdown error", zap.Error(err))
		}
		close(limiterDone)
	}

	if scheduler != nil {
		logr.Info("Shutting down scheduler...")
		scheduler.Shutdown()
	}
	if lifecycleTaskSrv != nil {
		logr.Info("Shutting down lifecycle task server...")
		lifecycleTaskSrv.Shutdown()
	}

	// Wait for all server goroutines to finish
	wg.Wait()
	logr.Info("Server gracefully stopped")
}

func mustLifecycleTask(taskType string, dryRun bool) *asynq.Task {
	task, err := tasks.NewLifecycleTask(taskType, dryRun)
	if err != nil {
		log.Fatalf("Invalid -enqueue value: %v", err)
	}
	return task
}

// enqueueOnce hands a single lifecycle task to the broker for the bg worker to run.
func enqueueOnce(task *asynq.Task, rdb *redis.Client, logr *zap.Logger) {
	client := tasks.NewClient(rdb)
	defer client.Close()

	info, err := client.Enqueue(task)
	if err != nil {
		logr.Fatal("Failed to enqueue task", zap.String("type", task.Type()), zap.Error(err))
	}
	logr.Info("Task enqueued", zap.String("type", info.Type), zap.String("id", info.ID), zap.String("queue", info.Queue))
}
