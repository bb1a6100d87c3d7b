package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "jobflow_db", cfg.Database.Database)
				assert.Equal(t, "jobflow.events", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "jobflow.notifications", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "job-api-service", cfg.App.Name)
				assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
				assert.True(t, cfg.Workflow.SequentialSteps)
				assert.Equal(t, 5, cfg.Workflow.MaxUpdateRetries)
				assert.Equal(t, "0 30 6 * * *", cfg.Scheduler.OverdueSchedule)
				assert.Equal(t, 250, cfg.Scheduler.BatchSize)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/memory_backend.yaml")
	require.NoError(t, err)

	assert.Equal(t, StorageBackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Workflow.MaxUpdateRetries)
	assert.Equal(t, 10, cfg.Workflow.MinReassignComment)
	assert.Equal(t, 200, cfg.Workflow.DefaultBoardPageSize)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "0 0 7 * * *", cfg.Scheduler.OverdueSchedule)
	assert.Equal(t, 500, cfg.Scheduler.BatchSize)
	assert.Equal(t, "topic", cfg.RabbitMQ.Exchange.Type)
	assert.Equal(t, "job.step.#", cfg.RabbitMQ.RoutingKey)

	cfg, err = Load("testdata/missing_database.yaml")
	require.NoError(t, err)
	assert.Equal(t, StorageBackendPostgres, cfg.Storage.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvJWTSecret, "secret-from-environment")
	t.Setenv(EnvDatabasePassword, "db-pass")
	t.Setenv(EnvRabbitMQPassword, "mq-pass")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "secret-from-environment", cfg.Auth.JWTSecret)
	assert.Equal(t, "db-pass", cfg.Database.Password)
	assert.Equal(t, "mq-pass", cfg.RabbitMQ.Password)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "jobflow_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "jobflow.events",
			},
			Queue: QueueConfig{
				Name: "jobflow.notifications",
			},
		},
		Worker: WorkerConfig{
			Concurrency:     2,
			EventTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Auth:    AuthConfig{JWTSecret: "0123456789abcdef"},
		Storage: StorageConfig{Backend: StorageBackendPostgres},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name: "memory backend skips database checks",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageBackendMemory
				c.Database = DatabaseConfig{}
			},
			wantErr: false,
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Storage.Backend = "mongo" },
			wantErr:   true,
			errString: "invalid storage backend",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "short jwt secret",
			mutate:    func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr:   true,
			errString: "jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "worker concurrency"},
		{"zero event timeout", func(c *Config) { c.Worker.EventTimeout = 0 }, "event_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.Worker.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"memory backend", func(c *Config) { c.Storage.Backend = StorageBackendMemory }, "requires the postgres"},
		{"scheduler without schedule", func(c *Config) { c.Scheduler.Enabled = true }, "overdue_schedule"},
		{"server port not required", func(c *Config) { c.Server.Port = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
