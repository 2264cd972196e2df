package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ninalin0217/docsplit/api/handlers"
	"github.com/ninalin0217/docsplit/api/routes"
	"github.com/ninalin0217/docsplit/config"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/pdfsplit"
	"github.com/ninalin0217/docsplit/internal/planner"
	"github.com/ninalin0217/docsplit/internal/service/ingest"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/server.log"}),
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

	ingestService := ingest.NewService(
		store,
		tracker.NewRedis(redisClient),
		markdown.NewObjectStore(store, log),
		bus,
		planner.New(cfg.SplitThreshold, cfg.SplitSize),
		pdfsplit.New(log),
		cfg,
		log,
	)

	h := handlers.NewHandlers(ingestService, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadSize
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		log.Info("Server starting on port 8080")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
