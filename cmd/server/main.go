package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/world-gallery/internal/auth"
	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/handler"
	"github.com/world-gallery/internal/kafka"
	"github.com/world-gallery/internal/metrics"
	"github.com/world-gallery/internal/postgres"
	"github.com/world-gallery/internal/redis"
	"github.com/world-gallery/internal/service"
	"github.com/world-gallery/internal/storage"
	"github.com/world-gallery/internal/view"
	"github.com/world-gallery/internal/websocket"
	"github.com/world-gallery/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backoff := func() retry.Backoff {
		return retry.WithMaxRetries(cfg.Postgres.ConnectRetries, retry.NewExponential(cfg.Postgres.ConnectBackoff))
	}

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	var redisClient *goredis.Client
	err = retry.Do(ctx, backoff(), func(ctx context.Context) error {
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn("redis not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		redisClient = client
		return nil
	})
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	var postgresRepo *postgres.Repository
	err = retry.Do(ctx, backoff(), func(ctx context.Context) error {
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Warn("postgres not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		postgresRepo = repo
		return nil
	})
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	m := metrics.NewDefault()
	likeCache := redis.NewLikeCache(redisClient, logger)
	sessionStore := redis.NewSessionStore(redisClient, logger)

	renderer, err := view.NewRenderer()
	if err != nil {
		logger.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}

	presigner, err := storage.NewPresigner(&cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	// Initialize services
	authProvider := auth.NewProvider(&cfg.Auth, postgresRepo, sessionStore, logger)
	gallery := service.NewGallery(postgresRepo, authProvider, renderer, &cfg.Gallery, m, logger)
	gallery.SetCache(likeCache)
	reflector := service.NewAuthReflector(authProvider, &cfg.Gallery, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(gallery, reflector, m, logger)
	go wsHub.Run()
	gallery.SetBroadcaster(wsHub)
	reflector.SetBroadcaster(wsHub)
	reflector.Start()
	logger.Info("WebSocket hub initialized")

	// Initialize sync worker
	syncWorker := worker.NewSyncWorker(postgresRepo, likeCache, &cfg.Sync, m, logger)

	// Warm the like-count cache on startup
	logger.Info("syncing like counts from database to Redis")
	syncWorker.RunOnce(ctx)

	// Start sync worker
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	// Kafka carries like events between instances
	var (
		kafkaPublisher *kafka.Publisher
		kafkaConsumer  *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaPublisher, err = kafka.NewPublisher(&cfg.Kafka, m, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without Kafka", "error", err)
		} else {
			gallery.SetPublisher(kafkaPublisher)
		}

		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, gallery.Origin(), gallery, m, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(handler.Dependencies{
		Gallery:   gallery,
		Reflector: reflector,
		Hub:       wsHub,
		Worlds:    postgresRepo,
		Downloads: presigner,
		Renderer:  renderer,
		Metrics:   m,
		Auth:      &cfg.Auth,
		Pages:     &cfg.Gallery,
		Checks: map[string]handler.ReadinessCheck{
			"postgres": postgresRepo.Ping,
			"redis":    likeCache.Ping,
		},
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop WebSocket hub
	reflector.Stop()
	wsHub.Stop()
	<-wsHub.Done()

	// Stop Kafka
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("failed to close Kafka publisher", "error", err)
		}
	}

	// Stop sync worker
	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	logger.Info("server stopped")
}
