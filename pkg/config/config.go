// Package config loads gateway configuration from environment variables,
// with an optional .env file, via envconfig/godotenv.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultAppMode         = "dev"
	defaultAppPort         = "8080"
	defaultHTTPTimeout     = 60 * time.Second
	defaultTickInterval    = 1 * time.Second
	defaultBackoffCap      = 10 * time.Minute
	defaultIngestBatchSize = 50
)

type (
	// Config aggregates every environment-driven setting the gateway needs.
	Config struct {
		App        AppConfig
		Postgres   StoreConfig
		Mongo      StoreConfig
		Redis      StoreConfig
		NATS       StoreConfig
		ClickHouse ClickHouseConfig
		Scheduler  SchedulerConfig
		Tracing    StoreConfig
	}

	// AppConfig carries process-wide settings.
	AppConfig struct {
		Mode        string `required:"true"`
		Port        string
		HTTPTimeout time.Duration
	}

	// StoreConfig is a generic DSN holder reused for every backing store.
	StoreConfig struct {
		DSN string
	}

	// ClickHouseConfig addresses the optional audit-mirror connection.
	// Unlike the other stores, clickhouse-go wants its connection
	// parameters split out rather than folded into a single DSN string.
	ClickHouseConfig struct {
		Addr     string
		Database string
		Username string
		Password string
	}

	// SchedulerConfig holds the tick-loop settings. Only TickInterval is
	// read by the scheduler; BackoffCap and IngestBatchSize are loaded but
	// nothing reads them, and the scheduler caps backoff with its own
	// fixed maxBackoff.
	SchedulerConfig struct {
		TickInterval    time.Duration
		BackoffCap      time.Duration
		IngestBatchSize int
	}
)

// Load populates Config from the environment, optionally seeded from a
// .env file in the working directory.
func Load() (cfg Config, err error) {
	root, err := os.Getwd()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg.App = AppConfig{
		Mode:        defaultAppMode,
		Port:        defaultAppPort,
		HTTPTimeout: defaultHTTPTimeout,
	}
	cfg.Scheduler = SchedulerConfig{
		TickInterval:    defaultTickInterval,
		BackoffCap:      defaultBackoffCap,
		IngestBatchSize: defaultIngestBatchSize,
	}

	if err = envconfig.Process("APP", &cfg.App); err != nil {
		return
	}
	if err = envconfig.Process("POSTGRES", &cfg.Postgres); err != nil {
		return
	}
	if err = envconfig.Process("MONGO", &cfg.Mongo); err != nil {
		return
	}
	if err = envconfig.Process("REDIS", &cfg.Redis); err != nil {
		return
	}
	if err = envconfig.Process("NATS", &cfg.NATS); err != nil {
		return
	}
	if err = envconfig.Process("CLICKHOUSE", &cfg.ClickHouse); err != nil {
		return
	}
	if err = envconfig.Process("SCHEDULER", &cfg.Scheduler); err != nil {
		return
	}
	if err = envconfig.Process("TRACING", &cfg.Tracing); err != nil {
		return
	}

	return
}
