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
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/api"
	"github.com/generally23/hlguinee/internal/cache"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/db"
	"github.com/generally23/hlguinee/internal/email"
	"github.com/generally23/hlguinee/internal/geofence"
	"github.com/generally23/hlguinee/internal/images"
	"github.com/generally23/hlguinee/internal/services"
	"github.com/generally23/hlguinee/internal/storage"
	"github.com/generally23/hlguinee/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'img' (image processing), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mongoClient, mongoDb, err := db.Connect(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Disconnect(mongoClient); err != nil {
			logger.Error("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		cancelIndex()
		logger.Fatal("failed to ensure indexes", zap.Error(err))
	}
	cancelIndex()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			logger.Error("error disconnecting from Redis", zap.Error(err))
		}
	}()

	blobs, err := storage.NewS3BlobStore(cfg)
	if err != nil {
		logger.Fatal("failed to initialize blob storage", zap.Error(err))
	}

	fence := geofence.New(cfg.GeofenceFile)

	emailSender := email.NewSMTPSender(cfg, logger)

	propertyService := services.NewPropertyService(mongoDb, cfg, blobs, fence, logger)
	accountService := services.NewAccountService(mongoDb, cfg, blobs, logger)
	pipeline := images.NewPipeline(blobs, cfg.ImageQuality, logger)

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	taskProcessor := tasks.NewTaskProcessor(cfg, logger, blobs, pipeline, propertyService, accountService, emailSender)

	var wg sync.WaitGroup

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var imageTaskSrv *asynq.Server

	logger.Info("starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		mainApiRouter := api.SetupRouter(cfg, mongoDb, blobs, fence, taskClient, logger)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("API server error", zap.Error(err))
			}
		}()
	}

	bgMode := func() {
		srv, mux := tasks.SetupServer(redisClient, taskProcessor, false, true, logger)
		backgroundTaskSrv = srv
		if backgroundTaskSrv != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				logger.Info("background task server starting")
				if err := backgroundTaskSrv.Run(mux); err != nil {
					logger.Fatal("background task server error", zap.Error(err))
				}
			}()
		}
	}

	imgMode := func() {
		srv, mux := tasks.SetupServer(redisClient, taskProcessor, true, false, logger)
		imageTaskSrv = srv
		if imageTaskSrv != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				logger.Info("image processing server starting")
				if err := imageTaskSrv.Run(mux); err != nil {
					logger.Fatal("image processing server error", zap.Error(err))
				}
			}()
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "img":
		imgMode()
	case "all":
		apiMode()
		srv, mux := tasks.SetupServer(redisClient, taskProcessor, true, true, logger)
		backgroundTaskSrv = srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("combined task server starting")
			if err := backgroundTaskSrv.Run(mux); err != nil {
				logger.Fatal("task server error", zap.Error(err))
			}
		}()
	default:
		logger.Fatal("invalid run mode", zap.String("mode", cfg.RunMode))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error("API server shutdown error", zap.Error(err))
		}
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}
	if imageTaskSrv != nil {
		imageTaskSrv.Shutdown()
	}

	wg.Wait()
	logger.Info("server stopped")
}
