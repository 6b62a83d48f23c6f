// Package log wires zap the way the rest of the gateway expects it: a
// package-level default logger, and a context-carried logger so request-
// scoped fields (connection_id, order_type, transaction_id) flow through
// the EBICS protocol engine and the scheduler without threading a logger
// argument through every call.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	defaultLogger *zap.Logger
	once          sync.Once
)

// WithLogger returns a new context carrying l.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or the package default.
// Always returns a non-nil logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}

// Default returns the singleton default logger, building it on first use.
func Default() *zap.Logger {
	once.Do(func() {
		l, err := New()
		if err != nil {
			fallback := zap.NewExample()
			fallback.Warn("failed to initialize logger, using fallback", zap.Error(err))
			defaultLogger = fallback
			return
		}
		defaultLogger = l
	})
	if defaultLogger == nil {
		defaultLogger = zap.NewNop()
	}
	return defaultLogger
}

// New builds a zap.Logger from APP_MODE: development config (debug level,
// console-friendly) unless APP_MODE=prod, in which case it builds a
// production JSON config. Caller is responsible for Sync() at shutdown.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if os.Getenv("APP_MODE") != "prod" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Sync flushes buffered log entries, ignoring the sync error many
// platforms return spuriously for stdout/stderr.
func Sync(l *zap.Logger) {
	if l == nil {
		return
	}
	_ = l.Sync()
}

// WithConnection returns a child logger tagged with the connection's id,
// the one field nearly every EBICS-engine log line carries.
func WithConnection(l *zap.Logger, connectionID string) *zap.Logger {
	return l.With(zap.String("connection_id", connectionID))
}
