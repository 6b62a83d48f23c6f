// Package clickhouse mirrors raw messages and normalized transactions into
// an append-only audit store, independent of the operational postgres
// tables. Nothing reads it back in the gateway's own code paths; it exists
// for downstream reporting and long-term retention.
package clickhouse

import (
	"context"
	"crypto/tls"
	"database/sql"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// Connect opens a pooled ClickHouse connection at addr.
func Connect(addr, database, username, password string) (*sql.DB, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		TLS:         &tls.Config{InsecureSkipVerify: true},
		DialTimeout: 30 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	conn.SetMaxIdleConns(5)
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		return nil, errors.Transport(err, "clickhouse: ping")
	}
	return conn, nil
}

// AuditMirror appends every ingested raw message and derived transaction
// to ClickHouse, best-effort: a mirror failure is logged by the caller but
// never blocks ledger ingestion.
type AuditMirror struct {
	db *sql.DB
}

func NewAuditMirror(db *sql.DB) *AuditMirror {
	return &AuditMirror{db: db}
}

// MirrorRawMessage appends one raw message row.
func (m *AuditMirror) MirrorRawMessage(ctx context.Context, msg *ledger.RawMessage) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO raw_messages_audit (id, connection_id, bank_message_id, xml, ingested_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConnectionID, msg.BankMessageID, msg.XML, msg.IngestedAt)
	if err != nil {
		return errors.Transport(err, "clickhouse: mirror raw message")
	}
	return nil
}

// MirrorTransaction appends one normalized transaction row.
func (m *AuditMirror) MirrorTransaction(ctx context.Context, t *ledger.Transaction) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO transactions_audit (
			id, connection_id, booking_account_iban, entry_reference, end_to_end_id,
			amount, currency, direction, status, linked_payment_id, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConnectionID, t.BookingAccountIBAN, t.EntryReference, t.EndToEndID,
		t.Amount.String(), t.Currency, string(t.Direction), string(t.Status), t.LinkedPaymentID, time.Now().UTC())
	if err != nil {
		return errors.Transport(err, "clickhouse: mirror transaction")
	}
	return nil
}
