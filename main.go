package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-studyplanner/internal/auth"
	"ms-studyplanner/internal/config"
	"ms-studyplanner/internal/database/migrations"
	"ms-studyplanner/internal/event"
	eventdb "ms-studyplanner/internal/event/db"
	"ms-studyplanner/internal/event/event_api"
	"ms-studyplanner/internal/kafka"
	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/notify"
	"ms-studyplanner/internal/notify/notify_api"
	"ms-studyplanner/internal/reminder"
	reminderredis "ms-studyplanner/internal/reminder/redis"
	"ms-studyplanner/internal/timer"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
		}
		logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	} else {
		logger.Warn("DATABASE", "REDIS_ADDR not set, reminder scans run without a cross-instance lock")
	}

	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Study Planner service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	logger.Info("DATABASE", "Running schema migrations")
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.Up(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()
	logger.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for brokers %v", cfg.Kafka.Brokers))

	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.EventCreated,
			cfg.Kafka.Topics.TimerStarted,
			cfg.Kafka.Topics.TimerCompleted,
			cfg.Kafka.Topics.ReminderDelivered,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
	}

	store := &eventdb.DB{Bun: bunDB}
	emitter := notify.NewEmitter()

	eventService := event.NewService(store, kafkaProducer, logger)
	eventService.TopicCreated = cfg.Kafka.Topics.EventCreated
	timerService := timer.NewService(store, kafkaProducer, emitter, logger)
	timerService.TopicStarted = cfg.Kafka.Topics.TimerStarted
	timerService.TopicCompleted = cfg.Kafka.Topics.TimerCompleted
	reminderService := reminder.NewService(store)

	var scanLock reminder.ScanLock
	if redisClient != nil {
		scanLock = reminderredis.NewScanLock(redisClient, cfg.Scheduler.LockTTL)
	}
	scheduler := reminder.NewScheduler(store, kafkaProducer, emitter, scanLock, logger, cfg.Scheduler.Interval)
	scheduler.TopicDelivered = cfg.Kafka.Topics.ReminderDelivered

	handler := event_api.NewHandler(eventService, timerService, reminderService, scheduler, logger)
	sseHandler := notify_api.NewSSEHandler(logger, emitter)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	// Stream auth happens inside the handler (token query parameter).
	r.Get("/api/planner/notifications/stream", sseHandler.HandleStream)
	logger.Info("ROUTER", "Notification stream registered at /api/planner/notifications/stream")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
		logger.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api/planner", func(r chi.Router) {
			handler.RegisterRoutes(r)
		})
		logger.Info("ROUTER", "Planner routes registered under /api/planner")
	})

	// No write timeout here: the SSE stream holds its response open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	logger.Info("SCHEDULER", "Starting reminder scheduler")
	scheduler.Start()

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Study Planner service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	scheduler.Stop()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Study Planner service shutdown complete")
	}
}
