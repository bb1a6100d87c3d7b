package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/jobflow/internal/config"
	"github.com/cuongbtq/jobflow/internal/worker"
	"github.com/cuongbtq/jobflow/internal/worker/storage"
	"github.com/cuongbtq/jobflow/shared/logger"
	"github.com/cuongbtq/jobflow/shared/postgresql"
	"github.com/cuongbtq/jobflow/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := newWorkerID()
	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(true), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("Database and RabbitMQ connections established")

	workerLogger := appLogger.With(slog.String("queue", cfg.RabbitMQ.Queue.Name))
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       workerLogger.Logger,
		Store:        storage.NewStorage(dbClient, workerLogger.Logger),
		Consumer:     rabbitClient,
		WorkerID:     workerID,
		QueueName:    cfg.RabbitMQ.Queue.Name,
		Concurrency:  cfg.Worker.Concurrency,
		EventTimeout: cfg.Worker.EventTimeout,
		Scheduler: worker.SchedulerConfig{
			Enabled:    cfg.Scheduler.Enabled,
			Schedule:   cfg.Scheduler.OverdueSchedule,
			RunOnStart: cfg.Scheduler.RunOnStart,
			BatchSize:  cfg.Scheduler.BatchSize,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Worker error", slog.Any("error", err))
			runErr = err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete", dbClient.Stats())
	return runErr
}

// newWorkerID names this process as a RabbitMQ consumer
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}
