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
	_ "time/tzdata"

	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/handler"
	"github.com/habit-scoreboard/internal/kafka"
	"github.com/habit-scoreboard/internal/memstore"
	"github.com/habit-scoreboard/internal/metrics"
	"github.com/habit-scoreboard/internal/postgres"
	"github.com/habit-scoreboard/internal/redis"
	"github.com/habit-scoreboard/internal/service"
	"github.com/habit-scoreboard/internal/websocket"
	"github.com/habit-scoreboard/internal/worker"
)

// recordStore is the durable source of users, habits and submissions
type recordStore interface {
	service.SubmissionStore
	service.UserStore
	service.HabitStore
	Ping(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, usedDefaults, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if usedDefaults {
		logger.Warn("config file not found, using defaults", "path", *configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record store
	var store recordStore
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		store = memstore.New()
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		logger.Info("connected to PostgreSQL")

		if err := repo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = repo
	}

	// Leaderboard snapshot cache
	var cache service.LeaderboardCache
	var redisCache *redis.LeaderboardCache
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisCache, err = redis.NewLeaderboardCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without snapshot cache", "error", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
			logger.Info("connected to Redis")
		}
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	habitCache := service.NewHabitCache(store)
	opts := []service.Option{
		service.WithBroadcaster(wsHub),
		service.WithMetrics(metrics.Scoreboard()),
	}
	if cache != nil {
		opts = append(opts, service.WithCache(cache))
	}
	statsService := service.NewStatsService(store, habitCache, &cfg.Scoring, &cfg.Leaderboard, logger, opts...)
	profileService := service.NewProfileService(store, store, habitCache, cache, logger)

	refreshWorker := worker.NewRefreshWorker(statsService, &cfg.Refresh, logger)
	if cfg.Refresh.Enabled {
		if err := refreshWorker.Start(ctx); err != nil {
			logger.Error("failed to start refresh worker", "error", err)
			os.Exit(1)
		}
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, statsService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	httpHandler := handler.NewHandler(statsService, profileService, wsHub, handler.NewRateLimiter(&cfg.RateLimit), logger)
	httpHandler.AddReadinessCheck(cfg.Storage.Driver, store.Ping)
	if redisCache != nil {
		httpHandler.AddReadinessCheck("redis", redisCache.Ping)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := refreshWorker.Stop(); err != nil {
		logger.Error("failed to stop refresh worker", "error", err)
	}

	wsHub.Stop()

	logger.Info("server stopped")
}
