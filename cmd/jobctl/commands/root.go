// Package commands implements the jobctl operator CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/cuongbtq/jobflow/internal/api/storage"
	"github.com/cuongbtq/jobflow/internal/config"
	"github.com/cuongbtq/jobflow/internal/migrations"
	"github.com/cuongbtq/jobflow/shared/logger"
	"github.com/cuongbtq/jobflow/shared/postgresql"
	"github.com/spf13/cobra"
)

// flag names
const (
	flagConfig  = "config"
	flagUser    = "user"
	flagTTL     = "ttl"
	flagProject = "project"
	flagOut     = "out"
	flagName    = "name"
	flagEmail   = "email"
	flagRole    = "role"
)

// environment variable names
const (
	envConfigPath = "API_SERVICE_CONFIG_PATH"
)

const defaultConfigPath = "configs/api-service/config.yaml"

// Store is the repository set the commands work on
type Store interface {
	service.JobRepository
	service.UserRepository
	service.ProjectRepository
}

// Env holds the command dependencies. Tests replace OpenStore and Migrate.
type Env struct {
	Out       io.Writer
	OpenStore func(cfg *config.Config, logger *slog.Logger) (Store, func(), error)
	Migrate   func(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]string, error)

	cfg    *config.Config
	logger *slog.Logger
}

// DefaultEnv wires the commands to the configured storage backend
func DefaultEnv() *Env {
	return &Env{
		Out:       os.Stdout,
		OpenStore: openStore,
		Migrate:   migrate,
	}
}

// NewRootCmd builds the jobctl command tree
func NewRootCmd(env *Env) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "jobctl - operator tool for the job workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Flag > Env Var > Default
			if !cmd.Flags().Changed(flagConfig) {
				if v := os.Getenv(envConfigPath); v != "" {
					configPath = v
				}
			}
			return env.load(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, flagConfig, "c", defaultConfigPath,
		"Path to configuration file (env: "+envConfigPath+")")

	root.AddCommand(newMigrateCmd(env))
	root.AddCommand(newTokenCmd(env))
	root.AddCommand(newBoardCmd(env))
	root.AddCommand(newUserCmd(env))

	return root
}

func (e *Env) load(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// diagnostics go to stderr so command output stays parseable
	logCfg := cfg.Logging.LoggerConfig()
	logCfg.Output = "stderr"
	appLogger, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	e.cfg = cfg
	e.logger = appLogger.Logger
	return nil
}

// openStore connects to the postgres backend. The memory backend lives only
// inside the api process, so a jobctl run would not see its data.
func openStore(cfg *config.Config, logger *slog.Logger) (Store, func(), error) {
	if cfg.Storage.Backend != config.StorageBackendPostgres {
		return nil, nil, fmt.Errorf("jobctl requires the postgres storage backend, got %q", cfg.Storage.Backend)
	}

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage.NewStorage(dbClient), func() { dbClient.Close() }, nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]string, error) {
	if cfg.Storage.Backend != config.StorageBackendPostgres {
		return nil, fmt.Errorf("migrations require the postgres storage backend")
	}

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	return migrations.Apply(ctx, dbClient.GetDB(), logger)
}

func (e *Env) withStore(fn func(Store) error) error {
	store, closeStore, err := e.OpenStore(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}
