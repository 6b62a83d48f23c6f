package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subjects the gateway publishes on. One stream, three event families:
// the lifecycle moments worth telling the rest of the system about.
const (
	SubjectPaymentSubmitted    = "gateway.payment.submitted"
	SubjectStatementIngested   = "gateway.statement.ingested"
	SubjectTransactionReconciled = "gateway.transaction.reconciled"
)

// Envelope is the JSON shape every published event shares.
type Envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Publisher publishes domain events, logging failures but never returning
// them to callers whose own operation already succeeded — a dropped event
// must not roll back a committed payment submission or ingest.
type Publisher struct {
	stream *Stream
	logger *zap.Logger
}

// NewPublisher wraps stream with structured logging.
func NewPublisher(stream *Stream, logger *zap.Logger) *Publisher {
	return &Publisher{stream: stream, logger: logger}
}

// Publish marshals data under subject/eventType and publishes it, logging
// (not returning) any failure.
func (p *Publisher) Publish(ctx context.Context, subject, eventType string, data map[string]any) {
	if p == nil || p.stream == nil {
		return
	}

	env := Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.Error(err), zap.String("event_type", eventType))
		return
	}

	if err := p.stream.Publish(ctx, subject, payload); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("event published", zap.String("subject", subject), zap.String("event_id", env.ID))
}

// PaymentSubmitted publishes a payment.submitted event.
func (p *Publisher) PaymentSubmitted(ctx context.Context, connectionID, paymentID, endToEndID string) {
	p.Publish(ctx, SubjectPaymentSubmitted, "payment.submitted", map[string]any{
		"connection_id": connectionID,
		"payment_id":    paymentID,
		"end_to_end_id": endToEndID,
	})
}

// StatementIngested publishes a statement.ingested event.
func (p *Publisher) StatementIngested(ctx context.Context, connectionID, bankMessageID string, transactionCount int) {
	p.Publish(ctx, SubjectStatementIngested, "statement.ingested", map[string]any{
		"connection_id":     connectionID,
		"bank_message_id":   bankMessageID,
		"transaction_count": transactionCount,
	})
}

// TransactionReconciled publishes a transaction.reconciled event.
func (p *Publisher) TransactionReconciled(ctx context.Context, transactionID, paymentID string) {
	p.Publish(ctx, SubjectTransactionReconciled, "transaction.reconciled", map[string]any{
		"transaction_id": transactionID,
		"payment_id":     paymentID,
	})
}
