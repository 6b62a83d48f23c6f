// Package events publishes the gateway's domain events (payment submitted,
// statement ingested, transaction reconciled) onto a NATS JetStream stream.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const connectTimeout = 5 * time.Second

// StreamConfig configures the single stream the gateway publishes onto.
type StreamConfig struct {
	URL      string
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// Stream wraps a JetStream connection and the stream it manages.
type Stream struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect dials NATS, ensures the configured stream exists, and returns a
// ready-to-publish Stream.
func Connect(cfg StreamConfig) (*Stream, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: jetstream.New: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	streamCfg := jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	}
	if _, err := js.CreateStream(ctx, streamCfg); err != nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			nc.Close()
			return nil, fmt.Errorf("events: create/update stream: %w", err)
		}
	}

	return &Stream{nc: nc, js: js}, nil
}

// Publish sends a raw payload to subject, waiting for JetStream's ack.
func (s *Stream) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}

// Close releases the underlying NATS connection.
func (s *Stream) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
