package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paynet/ebics-gateway/internal/iso20022"
	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// RawMessageRepository is the pgxpool-backed ledger.RawMessageRepository.
// Raw messages are append-only: every row kept verbatim for audit and
// re-ingest after a quarantined parse failure.
type RawMessageRepository struct {
	pool *pgxpool.Pool
}

var _ ledger.RawMessageRepository = (*RawMessageRepository)(nil)

func NewRawMessageRepository(pool *pgxpool.Pool) *RawMessageRepository {
	return &RawMessageRepository{pool: pool}
}

func (r *RawMessageRepository) Exists(ctx context.Context, connectionID, bankMessageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM raw_messages WHERE connection_id = $1 AND bank_message_id = $2)",
		connectionID, bankMessageID).Scan(&exists)
	if err != nil {
		return false, errors.Internal("postgres: check raw message existence: %v", err)
	}
	return exists, nil
}

func (r *RawMessageRepository) Save(ctx context.Context, m *ledger.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO raw_messages (id, connection_id, bank_message_id, xml, ingested_at, quarantined)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (connection_id, bank_message_id) DO NOTHING`,
		m.ID, m.ConnectionID, m.BankMessageID, m.XML, m.IngestedAt, m.Quarantined)
	if err != nil {
		return errors.Internal("postgres: save raw message: %v", err)
	}
	return nil
}

// ListQuarantined returns every raw message for connectionID that failed
// ISO 20022 parsing on ingest and has not since been reingested.
func (r *RawMessageRepository) ListQuarantined(ctx context.Context, connectionID string) ([]*ledger.RawMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, connection_id, bank_message_id, xml, ingested_at, quarantined
		FROM raw_messages WHERE connection_id = $1 AND quarantined`, connectionID)
	if err != nil {
		return nil, errors.Internal("postgres: list quarantined raw messages: %v", err)
	}
	defer rows.Close()

	var out []*ledger.RawMessage
	for rows.Next() {
		var m ledger.RawMessage
		if err := rows.Scan(&m.ID, &m.ConnectionID, &m.BankMessageID, &m.XML, &m.IngestedAt, &m.Quarantined); err != nil {
			return nil, errors.Internal("postgres: scan quarantined raw message: %v", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("postgres: iterate quarantined raw messages: %v", err)
	}
	return out, nil
}

// MarkReingested clears the quarantined flag after a later parse attempt
// succeeded.
func (r *RawMessageRepository) MarkReingested(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE raw_messages SET quarantined = false WHERE id = $1`, id)
	if err != nil {
		return errors.Internal("postgres: mark raw message reingested: %v", err)
	}
	return nil
}

// TransactionRepository is the pgxpool-backed ledger.TransactionRepository.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

var _ ledger.TransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `
	id, connection_id, raw_message_id, linked_payment_id,
	booking_account_iban, counterpart_iban, counterpart_bic, counterpart_name,
	amount, currency, booking_date_unix_ms, value_date, unstructured_remit,
	direction, status, is_batch, batch_flag_mismatch,
	bank_tx_domain, bank_tx_family, bank_tx_subfamily, bank_tx_prop_issuer, bank_tx_prop_code,
	end_to_end_id, entry_reference`

func (r *TransactionRepository) Get(ctx context.Context, key ledger.TransactionKey) (*ledger.Transaction, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+transactionColumns+` FROM transactions
		WHERE booking_account_iban = $1 AND entry_reference = $2`, key.AccountIBAN, key.EntryReference)
	t, err := scanTransaction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Internal("postgres: get transaction: %v", err)
	}
	return t, nil
}

func (r *TransactionRepository) Upsert(ctx context.Context, t *ledger.Transaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (booking_account_iban, entry_reference) DO UPDATE SET
			linked_payment_id = EXCLUDED.linked_payment_id`,
		t.ID, t.ConnectionID, t.RawMessageID, t.LinkedPaymentID,
		t.BookingAccountIBAN, t.CounterpartIBAN, t.CounterpartBIC, t.CounterpartName,
		t.Amount, t.Currency, t.BookingDateUnixMs, t.ValueDate, t.UnstructuredRemit,
		string(t.Direction), string(t.Status), t.IsBatch, t.BatchFlagMismatch,
		t.BankTxCode.Domain, t.BankTxCode.Family, t.BankTxCode.Subfamily, t.BankTxCode.PropIssuer, t.BankTxCode.PropCode,
		t.EndToEndID, t.EntryReference)
	if err != nil {
		return errors.Internal("postgres: upsert transaction: %v", err)
	}
	return nil
}

func (r *TransactionRepository) FindUnlinkedByEndToEndID(ctx context.Context, connectionID, endToEndID string) (*ledger.Transaction, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+transactionColumns+` FROM transactions
		WHERE connection_id = $1 AND end_to_end_id = $2 AND linked_payment_id = ''`, connectionID, endToEndID)
	t, err := scanTransaction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Internal("postgres: find unlinked transaction: %v", err)
	}
	return t, nil
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var direction, status string
	err := row.Scan(
		&t.ID, &t.ConnectionID, &t.RawMessageID, &t.LinkedPaymentID,
		&t.BookingAccountIBAN, &t.CounterpartIBAN, &t.CounterpartBIC, &t.CounterpartName,
		&t.Amount, &t.Currency, &t.BookingDateUnixMs, &t.ValueDate, &t.UnstructuredRemit,
		&direction, &status, &t.IsBatch, &t.BatchFlagMismatch,
		&t.BankTxCode.Domain, &t.BankTxCode.Family, &t.BankTxCode.Subfamily, &t.BankTxCode.PropIssuer, &t.BankTxCode.PropCode,
		&t.EndToEndID, &t.EntryReference)
	if err != nil {
		return nil, err
	}
	t.Direction = iso20022.Direction(direction)
	t.Status = iso20022.Status(status)
	return &t, nil
}
