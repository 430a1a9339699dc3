package main

import (
	"context"
	"log"

	"huddle-chat/config"
	"huddle-chat/internal/domain/upload"
	"huddle-chat/internal/handler"
	"huddle-chat/internal/redis"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/server"
	"huddle-chat/internal/services"
	"huddle-chat/internal/storage"
	"huddle-chat/internal/websocket"
	"huddle-chat/pkg/database"
	"huddle-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.ApplyRawMigrations(db, "migrations"); err != nil {
		log.Fatalf("Failed to apply raw migrations: %v", err)
	}
	if err := db.AutoMigrate(&upload.UploadSession{}, &upload.Chunk{}); err != nil {
		log.Fatalf("Failed to apply GORM migrations: %v", err)
	}

	// Redis
	redisClient, err := redis.NewClient(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	// Chunk storage and finalize hook
	chunkStore, err := storage.NewLocalChunkStore(cfg.ChunkDir)
	if err != nil {
		log.Fatalf("Failed to prepare chunk storage: %v", err)
	}
	var finalizer services.Finalizer
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatalf("Failed to create s3 client: %v", err)
		}
		finalizer = storage.NewS3Finalizer(chunkStore, s3Client)
	} else {
		l.Warnf("S3 bucket not configured, uploads will complete without a materialized file")
	}

	// Upload core
	repo := repository.NewUploadRepository(db)
	notifier := services.NewProgressNotifier(redis.NewPublisher(redisClient), repo, l, cfg.ProgressMinInterval, cfg.ReaperBatchSize)
	uploadService := services.NewUploadService(repo, chunkStore, finalizer, notifier, l, cfg.SessionTTL, cfg.MaxChunkSizeBytes)

	reaper := services.NewSessionReaper(notifier, cfg.ReaperInterval, l)
	reaper.Start(ctx)

	// Live progress delivery
	hub := websocket.NewHub()
	go hub.Run(ctx)
	bridge := websocket.NewRedisBridge(redis.NewSubscriber(redisClient), hub)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			l.Errorf("redis bridge stopped: %v", err)
		}
	}()

	// HTTP
	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Upload:   handler.NewUploadHandler(uploadService),
		Progress: websocket.NewHandler(uploadService, hub),
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
