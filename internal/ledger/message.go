// Package ledger stores raw bank messages and the normalized transactions
// derived from them, and drives the statement-ingestion/reconciliation
// sweep.
package ledger

import (
	"context"
	"time"
)

// RawMessage is the verbatim XML body of one downloaded camt document,
// keyed by (connection, bank-assigned message id). The XML itself is
// immutable and retained for audit even when it failed to parse;
// Quarantined is the only field a later pass updates.
type RawMessage struct {
	ID            string
	ConnectionID  string
	BankMessageID string
	XML           []byte
	IngestedAt    time.Time

	// Quarantined is true when the statement was stored but failed ISO
	// 20022 parsing, so its transactions were never extracted. Cleared by
	// ReingestQuarantined once a later attempt parses it successfully.
	Quarantined bool
}

// RawMessageRepository persists raw bank messages and answers the
// duplicate check that makes ingestion idempotent.
type RawMessageRepository interface {
	Exists(ctx context.Context, connectionID, bankMessageID string) (bool, error)
	Save(ctx context.Context, m *RawMessage) error
	ListQuarantined(ctx context.Context, connectionID string) ([]*RawMessage, error)
	MarkReingested(ctx context.Context, id string) error
}
