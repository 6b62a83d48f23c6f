// Package app assembles the gateway's dependency graph from a loaded
// config.Config in one fixed boot order: logger, config, storage, domain
// services, scheduler, HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/internal/adminhttp"
	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/internal/scheduler"
	"github.com/paynet/ebics-gateway/internal/storage/clickhouse"
	"github.com/paynet/ebics-gateway/internal/storage/memory"
	schedulerstate "github.com/paynet/ebics-gateway/internal/storage/mongo"
	"github.com/paynet/ebics-gateway/internal/storage/postgres"
	"github.com/paynet/ebics-gateway/internal/storage/redislock"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/config"
	"github.com/paynet/ebics-gateway/pkg/events"
	"github.com/paynet/ebics-gateway/pkg/log"
	"github.com/paynet/ebics-gateway/pkg/tracing"
)

// App holds every wired dependency a gateway process needs, regardless of
// whether it ends up running the HTTP server (cmd/gateway), the tick
// loop (cmd/worker), or both in-process for local development.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Scheduler *scheduler.Scheduler
	Admin     *adminhttp.Server
	Handshake *connection.HandshakeService
	Importer  *account.Importer

	pgPool    *pgxpool.Pool
	eventBus  *events.Stream
	lock      *redislock.Client
	mongoConn *mongo.Client
	chDB      *sql.DB
	tracerTP  *sdktrace.TracerProvider
}

// New loads config and wires the full dependency graph.
func New() (*App, error) {
	logger := log.Default()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	logger.Info("configuration loaded", zap.String("mode", cfg.App.Mode))

	a := &App{Config: cfg, Logger: logger}

	if cfg.Tracing.DSN != "" {
		tp, err := tracing.Connect(cfg.Tracing.DSN, "ebics-gateway")
		if err != nil {
			logger.Warn("otlp tracing unavailable, spans will be dropped", zap.Error(err))
		} else {
			a.tracerTP = tp
		}
	}

	connections, accounts, payments, rawMessages, transactions, err := a.buildStores(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := a.buildPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.DSN != "" {
		lockClient, err := redislock.New(cfg.Redis.DSN)
		if err != nil {
			logger.Warn("redis lock client unavailable, falling back to in-process locking only", zap.Error(err))
		} else {
			a.lock = lockClient
		}
	}

	clk := clock.System{}
	a.Handshake = connection.NewHandshakeService(connections, clk)
	if a.lock != nil {
		a.Handshake = a.Handshake.WithBankKeyCache(a.lock)
	}
	a.Importer = account.NewImporter(accounts)

	submission := payment.NewSubmissionService(payments, connections, clk, publisher)
	ingestion := ledger.NewIngestionService(connections, accounts, payments, rawMessages, transactions, clk, publisher)
	if cfg.ClickHouse.Addr != "" {
		if db, err := clickhouse.Connect(cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.Username, cfg.ClickHouse.Password); err != nil {
			logger.Warn("clickhouse audit mirror unavailable, ingestion will not be mirrored", zap.Error(err))
		} else {
			a.chDB = db
			ingestion = ingestion.WithAuditMirror(clickhouse.NewAuditMirror(db))
		}
	}

	sched := scheduler.New(connections, connection.NewLocker(), submission, ingestion, clk).
		WithInterval(cfg.Scheduler.TickInterval)
	if a.lock != nil {
		sched = sched.WithDistributedLock(a.lock)
	}
	if cfg.Mongo.DSN != "" {
		if client, err := schedulerstate.Connect(cfg.Mongo.DSN); err != nil {
			logger.Warn("mongo scheduler state store unavailable, watermark/backoff stay in-memory only", zap.Error(err))
		} else {
			a.mongoConn = client
			sched = sched.WithStateStore(schedulerstate.NewSchedulerStateStore(client.Database("ebics_gateway")))
		}
	}
	a.Scheduler = sched
	a.Admin = adminhttp.New(sched, logger).
		WithHandshake(a.Handshake).
		WithAccountImporter(a.Importer, connections).
		WithIngestion(ingestion).
		WithConnections(connections)

	return a, nil
}

// buildStores wires postgres-backed repositories when POSTGRES_DSN is set,
// falling back to the in-memory store otherwise (local development, or a
// worker that only needs to exercise the scheduler against a fixture).
func (a *App) buildStores(cfg config.Config) (
	connection.Repository, account.Repository, payment.Repository,
	ledger.RawMessageRepository, ledger.TransactionRepository, error,
) {
	if cfg.Postgres.DSN == "" {
		a.Logger.Info("no POSTGRES_DSN set, using in-memory storage")
		return memory.NewConnectionStore(), memory.NewAccountStore(), memory.NewPaymentStore(),
			memory.NewRawMessageStore(), memory.NewTransactionStore(), nil
	}

	pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	a.pgPool = pool
	a.Logger.Info("postgres storage configured")

	return postgres.NewConnectionRepository(pool), postgres.NewAccountRepository(pool), postgres.NewPaymentRepository(pool),
		postgres.NewRawMessageRepository(pool), postgres.NewTransactionRepository(pool), nil
}

// buildPublisher connects the NATS JetStream event bus when NATS_DSN is
// set; otherwise events are published to a nil stream, which
// events.Publisher treats as a silent no-op. Events are an observability
// aid, never load-bearing for correctness.
func (a *App) buildPublisher(cfg config.Config, logger *zap.Logger) (*events.Publisher, error) {
	if cfg.NATS.DSN == "" {
		a.Logger.Info("no NATS_DSN set, domain events will not be published")
		return events.NewPublisher(nil, logger), nil
	}

	stream, err := events.Connect(events.StreamConfig{
		URL:      cfg.NATS.DSN,
		Name:     "GATEWAY_EVENTS",
		Subjects: []string{"gateway.>"},
	})
	if err != nil {
		a.Logger.Warn("failed to connect event bus, continuing without it", zap.Error(err))
		return events.NewPublisher(nil, logger), nil
	}
	a.eventBus = stream
	return events.NewPublisher(stream, logger), nil
}

// Close releases every external connection the App opened.
func (a *App) Close() {
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.eventBus != nil {
		a.eventBus.Close()
	}
	if a.lock != nil {
		_ = a.lock.Close()
	}
	if a.mongoConn != nil {
		_ = a.mongoConn.Disconnect(context.Background())
	}
	if a.chDB != nil {
		_ = a.chDB.Close()
	}
	if a.tracerTP != nil {
		if err := tracing.Shutdown(context.Background(), a.tracerTP); err != nil {
			a.Logger.Warn("failed to shut down tracer provider", zap.Error(err))
		}
	}
	log.Sync(a.Logger)
}
