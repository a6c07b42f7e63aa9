// Package bootstrap turns loaded configuration into the clients both services share.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cuongbtq/videogen/internal/config"
	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/cuongbtq/videogen/internal/veo"
	"github.com/cuongbtq/videogen/migrations"
	"github.com/cuongbtq/videogen/shared/logger"
	"github.com/cuongbtq/videogen/shared/postgresql"
	"github.com/cuongbtq/videogen/shared/rabbitmq"
	"github.com/joho/godotenv"
)

// LoadConfig reads .env when present, then the YAML file at path
func LoadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// ConfigPath returns the value of envKey or defaultPath when it is unset
func ConfigPath(envKey, defaultPath string) string {
	if path := os.Getenv(envKey); path != "" {
		return path
	}
	return defaultPath
}

// Logger initializes and configures the application logger
func Logger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// Postgres connects to the database and applies the embedded migrations
func Postgres(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := client.ApplyMigrations(ctx, migrations.FS); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return client, nil
}

// RabbitMQ connects to the broker and declares the job topology
func RabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// Poller builds the vendor client and the poller that drives it.
// observer may be nil.
func Poller(cfg *config.VendorConfig, logger *slog.Logger, observer poller.Observer) (*poller.Poller, error) {
	retryPolicy, err := poller.ParseRetryPolicy(cfg.RetryPolicy)
	if err != nil {
		return nil, err
	}

	client := veo.NewClient(veo.Options{
		BaseURL:    cfg.Endpoint,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger,
	})

	return poller.New(&poller.Config{
		Client:       client,
		Logger:       logger,
		Observer:     observer,
		APIKey:       cfg.APIKey,
		Endpoint:     cfg.Endpoint,
		Model:        cfg.Model,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		RetryPolicy:  retryPolicy,
	})
}
