package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ninalin0217/docsplit/config"
	"github.com/ninalin0217/docsplit/internal/converter"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/notify"
	"github.com/ninalin0217/docsplit/internal/partcache"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
	"github.com/ninalin0217/docsplit/pkg/storage"
	"github.com/ninalin0217/docsplit/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadPipelineConfig(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load pipeline config", logger.Error(err))
	}

	store, err := storage.New(storage.Type(cfg.StorageBackend), log)
	if err != nil {
		log.Fatal("Failed to initialize storage", logger.Error(err))
	}

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	bus := queue.NewAsynqBus(&queue.Config{
		RedisAddr:      redisCfg.Addr,
		RedisPassword:  redisCfg.Password,
		RedisDB:        redisCfg.DB,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		ProcessTimeout: cfg.ProcessTimeout,
		Concurrency:    cfg.Concurrency,
		Queues:         cfg.Queues,
	})
	defer bus.Close()

	jobTracker := tracker.NewRedis(redisClient)
	cache := partcache.NewRedis(redisClient)
	metadata := markdown.NewObjectStore(store, log)
	notifier := notify.NewRedis(redisClient, log)

	conversionWorker := worker.NewConversionWorker(
		store,
		converter.NewHTTPConverter(config.GetConverterConfig(), log),
		jobTracker,
		bus,
		log,
	)
	storageWorker := worker.NewStorageWorker(cache, jobTracker, metadata, bus, notifier, cfg.RetryDelay, log)
	mergeCoordinator := worker.NewMergeCoordinator(cache, jobTracker, metadata, notifier, log)

	pipelineWorker := worker.NewPipelineWorker(&worker.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Concurrency:   cfg.Concurrency,
		Queues:        cfg.Queues,
		RetryDelay:    cfg.RetryDelay,
	}, conversionWorker, storageWorker, mergeCoordinator, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipelineWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	pipelineWorker.Stop()
	log.Info("Worker stopped")
}
