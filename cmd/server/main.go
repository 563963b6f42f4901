package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamesync-backend/internal/auth"
	"github.com/gamesync-backend/internal/config"
	"github.com/gamesync-backend/internal/domain"
	"github.com/gamesync-backend/internal/handler"
	"github.com/gamesync-backend/internal/kafka"
	"github.com/gamesync-backend/internal/playstore"
	"github.com/gamesync-backend/internal/postgres"
	"github.com/gamesync-backend/internal/redis"
	"github.com/gamesync-backend/internal/service"
	"github.com/gamesync-backend/internal/websocket"
	"github.com/gamesync-backend/internal/worker"
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

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis cache
	var cache *redis.Cache
	if cfg.Cache.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		cache, err = redis.NewCache(&cfg.Redis, &cfg.Cache, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without cache", "error", err)
			cache = nil
		} else {
			defer cache.Close()
			logger.Info("connected to Redis")
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	verifier := playstore.NewClient(&cfg.PlayStore, logger)

	var snapshotCache service.SnapshotCache
	if cache != nil {
		snapshotCache = cache
	}

	syncService := service.NewSyncService(repo, snapshotCache, logger)
	syncService.SetHub(wsHub)

	walletService := service.NewWalletService(repo, verifier, domain.PriceTable(cfg.Wallet.Products), snapshotCache, logger)
	walletService.SetHub(wsHub)

	// Initialize Kafka producer for the wallet event stream
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka producer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without event stream", "error", err)
		} else {
			syncService.SetPublisher(producer)
			walletService.SetPublisher(producer)
			logger.Info("Kafka producer started successfully")
		}
	}

	// Initialize cache warming worker
	var warmer *worker.CacheWarmer
	if cache != nil && cfg.Warmer.Enabled {
		warmer = worker.NewCacheWarmer(repo, cache, &cfg.Warmer, logger)

		// Warm the cache from the database on startup (recovery)
		logger.Info("warming cache from database")
		warmer.RunOnce(ctx)

		if err := warmer.Start(ctx); err != nil {
			logger.Error("failed to start cache warmer", "error", err)
			os.Exit(1)
		}
	}

	// Initialize HTTP handler
	tokenVerifier := auth.NewVerifier(&cfg.Auth)
	httpHandler := handler.NewHandler(syncService, walletService, tokenVerifier, wsHub, logger)

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
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop cache warmer
	if warmer != nil {
		if err := warmer.Stop(); err != nil {
			logger.Error("failed to stop cache warmer", "error", err)
		}
	}

	// Stop Kafka producer
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to stop Kafka producer", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
