package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/api/handler"
	"github.com/cuongbtq/jobflow/internal/api/router"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/cuongbtq/jobflow/internal/api/storage"
	"github.com/cuongbtq/jobflow/internal/api/storage/memory"
	"github.com/cuongbtq/jobflow/internal/auth"
	"github.com/cuongbtq/jobflow/internal/config"
	"github.com/cuongbtq/jobflow/internal/events"
	"github.com/cuongbtq/jobflow/shared/logger"
	"github.com/cuongbtq/jobflow/shared/postgresql"
	"github.com/cuongbtq/jobflow/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// repositories is what both storage backends provide
type repositories interface {
	service.JobRepository
	service.UserRepository
	service.ProjectRepository
	service.NotificationRepository
}

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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Backend),
	)

	var (
		repos        repositories
		health       handler.HealthChecker
		publisher    service.EventPublisher
		dbClient     *postgresql.Client
		rabbitClient *rabbitmq.Client
	)

	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		repos = memory.New()
		appLogger.Warn("Using in-memory storage; data and events are not persisted")

	default:
		dbClient, err = postgresql.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()
		repos = storage.NewStorage(dbClient)
		health = dbClient

		rabbitClient, err = rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(false), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		publisher = events.NewPublisher(rabbitClient, appLogger.Logger)

		appLogger.Info("Database and RabbitMQ connections established")
	}

	jobs := service.NewJobService(repos, repos, repos, publisher, appLogger.Logger, service.Options{
		SequentialSteps:  cfg.Workflow.SequentialSteps,
		MaxUpdateRetries: cfg.Workflow.MaxUpdateRetries,
		BoardLimit:       cfg.Workflow.DefaultBoardPageSize,
	})
	directory := service.NewDirectoryService(repos, repos, appLogger.Logger)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	if cfg.Storage.Backend == config.StorageBackendMemory {
		if err := bootstrapAdmin(context.Background(), directory, tokens, appLogger.Logger); err != nil {
			return err
		}
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if err := dto.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:             appLogger.Logger,
		ServiceName:        cfg.App.Name,
		Health:             health,
		Jobs:               jobs,
		Directory:          directory,
		Inbox:              service.NewInboxService(jobs, repos),
		Tokens:             tokens,
		MinReassignComment: cfg.Workflow.MinReassignComment,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	if dbClient != nil {
		appLogger.Info("Server shutdown complete", dbClient.Stats())
		return nil
	}
	appLogger.Info("Server shutdown complete")
	return nil
}

// bootstrapAdmin creates an admin in a fresh in-memory store and logs a
// token for it, since there is no other way to sign in
func bootstrapAdmin(ctx context.Context, directory *service.DirectoryService, tokens *auth.Tokens, logger *slog.Logger) error {
	admin, err := directory.AddUser(ctx, service.CreateUserInput{
		Name:  "Administrator",
		Email: "admin@jobflow.local",
		Role:  domain.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	token, expiresAt, err := tokens.Issue(admin.ID, 0)
	if err != nil {
		return fmt.Errorf("failed to issue bootstrap token: %w", err)
	}

	logger.Warn("Bootstrap admin created",
		slog.String("user_id", admin.ID),
		slog.String("token", token),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
