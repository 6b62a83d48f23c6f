// Package scheduler drives the per-second cooperative tick loop: submission
// then ingestion for every connection, isolated by a per-connection mutex,
// with failures logged and counted but never propagated out of the tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/internal/storage/mongo"
	"github.com/paynet/ebics-gateway/internal/storage/redislock"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/errors"
	"github.com/paynet/ebics-gateway/pkg/log"
)

var tracer = otel.Tracer("ebics-gateway/scheduler")

// distributedLockTTL bounds how long another instance waits behind a
// crashed holder before the lock is considered abandoned.
const distributedLockTTL = 30 * time.Second

// defaultTickInterval is how often the loop wakes, absent configuration.
const defaultTickInterval = time.Second

// maxBackoff caps the retry delay a connection accrues after repeated
// transport failures.
const maxBackoff = 10 * time.Minute

// defaultLookback is the ingestion window used the first time a
// connection is ticked, before any successful ingest has recorded a
// watermark. A day covers the typical C53 statement cycle.
const defaultLookback = 24 * time.Hour

// Scheduler owns the tick loop. One instance runs per process.
type Scheduler struct {
	connections connection.Repository
	locker      *connection.Locker
	submission  *payment.SubmissionService
	ingestion   *ledger.IngestionService
	clock       clock.Clock
	interval    time.Duration
	distributed *redislock.Client
	state       *mongo.SchedulerStateStore

	backoffMu sync.Mutex
	backoff   map[string]*backoffState

	watermarkMu sync.Mutex
	watermark   map[string]time.Time
}

type backoffState struct {
	failures  int
	nextTryAt time.Time
}

// New builds a Scheduler with the default one-second tick interval.
func New(
	connections connection.Repository,
	locker *connection.Locker,
	submission *payment.SubmissionService,
	ingestion *ledger.IngestionService,
	clk clock.Clock,
) *Scheduler {
	return &Scheduler{
		connections: connections,
		locker:      locker,
		submission:  submission,
		ingestion:   ingestion,
		clock:       clk,
		interval:    defaultTickInterval,
		backoff:     make(map[string]*backoffState),
		watermark:   make(map[string]time.Time),
	}
}

// WithInterval overrides the tick interval, mainly for tests.
func (s *Scheduler) WithInterval(d time.Duration) *Scheduler {
	s.interval = d
	return s
}

// WithDistributedLock adds a Redis-backed lock that must be acquired
// before the in-process one, so two gateway instances never tick the same
// connection concurrently. Without it, the Scheduler only guards against
// races within its own process.
func (s *Scheduler) WithDistributedLock(c *redislock.Client) *Scheduler {
	s.distributed = c
	return s
}

// WithStateStore adds durable persistence for the per-connection watermark
// and backoff state, so a restarted instance resumes from where it left
// off instead of falling back to defaultLookback for every connection.
// Persistence is best-effort: a failed read or write is logged and the
// tick proceeds on the in-memory state alone.
func (s *Scheduler) WithStateStore(store *mongo.SchedulerStateStore) *Scheduler {
	s.state = store
	return s
}

// Run blocks ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick snapshots the connection set and runs one submission+ingestion
// pass per connection.
func (s *Scheduler) Tick(ctx context.Context) {
	connections, err := s.connections.List(ctx)
	if err != nil {
		log.FromContext(ctx).Error("scheduler: failed to list connections", zap.Error(err))
		return
	}

	now := s.clock.Now()
	for _, c := range connections {
		if !s.due(ctx, c.ID, now) {
			continue
		}
		s.runConnection(ctx, c.ID, now)
	}
}

func (s *Scheduler) runConnection(ctx context.Context, connectionID string, now time.Time) {
	ctx, span := tracer.Start(ctx, "scheduler.runConnection")
	defer span.End()
	span.SetAttributes(attribute.String("ebics.connection_id", connectionID))

	logger := log.FromContext(ctx).With(zap.String("connection_id", connectionID))

	if s.distributed != nil {
		lock, ok, err := s.distributed.TryLock(ctx, connectionID, distributedLockTTL)
		if err != nil {
			logger.Warn("scheduler: distributed lock unavailable, skipping tick", zap.Error(err))
			return
		}
		if !ok {
			logger.Debug("scheduler: connection locked by another instance")
			return
		}
		defer func() {
			if err := lock.Unlock(ctx); err != nil {
				logger.Warn("scheduler: failed to release distributed lock", zap.Error(err))
			}
		}()
	}

	mu := s.locker.For(connectionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.submission.SubmitPending(ctx, connectionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		s.recordFailure(ctx, connectionID, now, err, logger, "submission")
	} else {
		s.recordSuccess(ctx, connectionID)
	}

	since := s.watermarkFor(ctx, connectionID, now, logger)
	if err := s.ingestion.IngestConnection(ctx, connectionID, since, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingestion failed")
		s.recordFailure(ctx, connectionID, now, err, logger, "ingestion")
	} else {
		s.recordSuccess(ctx, connectionID)
		s.advanceWatermark(ctx, connectionID, now, logger)
	}
}

// watermarkFor returns the start of the next ingestion window for
// connectionID: the end of its last successful window (in-memory, falling
// back to the durable state store if this instance hasn't seen it yet),
// or a day-long lookback if neither has one.
func (s *Scheduler) watermarkFor(ctx context.Context, connectionID string, now time.Time, logger *zap.Logger) time.Time {
	s.watermarkMu.Lock()
	t, ok := s.watermark[connectionID]
	s.watermarkMu.Unlock()
	if ok {
		return t
	}

	if s.state != nil {
		if stored, found, err := s.state.Watermark(ctx, connectionID); err != nil {
			logger.Warn("scheduler: failed to load durable watermark", zap.Error(err))
		} else if found {
			s.watermarkMu.Lock()
			s.watermark[connectionID] = stored
			s.watermarkMu.Unlock()
			return stored
		}
	}

	return now.Add(-defaultLookback)
}

func (s *Scheduler) advanceWatermark(ctx context.Context, connectionID string, now time.Time, logger *zap.Logger) {
	s.watermarkMu.Lock()
	s.watermark[connectionID] = now
	s.watermarkMu.Unlock()

	if s.state != nil {
		if err := s.state.SetWatermark(ctx, connectionID, now); err != nil {
			logger.Warn("scheduler: failed to persist watermark", zap.Error(err))
		}
	}
}

func (s *Scheduler) recordFailure(ctx context.Context, connectionID string, now time.Time, err error, logger *zap.Logger, stage string) {
	logger.Warn("scheduler: tick stage failed", zap.String("stage", stage), zap.Error(err))

	var protoErr *errors.Error
	if !errors.As(err, &protoErr) || protoErr.Kind != errors.KindTransport {
		return
	}

	s.backoffMu.Lock()
	st, ok := s.backoff[connectionID]
	if !ok {
		st = &backoffState{}
		s.backoff[connectionID] = st
	}
	st.failures++
	delay := s.interval << uint(st.failures)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	st.nextTryAt = now.Add(delay)
	failures := st.failures
	nextTryAt := st.nextTryAt
	s.backoffMu.Unlock()

	if s.state != nil {
		if err := s.state.SetBackoff(ctx, connectionID, nextTryAt, failures); err != nil {
			logger.Warn("scheduler: failed to persist backoff state", zap.Error(err))
		}
	}
}

func (s *Scheduler) recordSuccess(ctx context.Context, connectionID string) {
	s.backoffMu.Lock()
	_, hadBackoff := s.backoff[connectionID]
	delete(s.backoff, connectionID)
	s.backoffMu.Unlock()

	if hadBackoff && s.state != nil {
		if err := s.state.SetBackoff(ctx, connectionID, time.Time{}, 0); err != nil {
			log.FromContext(ctx).Warn("scheduler: failed to clear persisted backoff state", zap.Error(err))
		}
	}
}

// due reports whether connectionID's backoff deadline (if any) has passed.
// A backoff not yet seen by this instance is loaded from the durable state
// store on first check, so a restarted instance doesn't immediately retry
// a connection another instance just backed off.
func (s *Scheduler) due(ctx context.Context, connectionID string, now time.Time) bool {
	s.backoffMu.Lock()
	st, ok := s.backoff[connectionID]
	s.backoffMu.Unlock()
	if ok {
		return !now.Before(st.nextTryAt)
	}

	if s.state != nil {
		if until, count, err := s.state.Backoff(ctx, connectionID); err == nil && count > 0 {
			s.backoffMu.Lock()
			s.backoff[connectionID] = &backoffState{failures: count, nextTryAt: until}
			s.backoffMu.Unlock()
			return !now.Before(until)
		}
	}

	return true
}
