package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// PaymentRepository is the pgxpool-backed payment.Repository.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

var _ payment.Repository = (*PaymentRepository)(nil)

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

const paymentColumns = `
	id, connection_id, debtor_iban, creditor_iban, creditor_bic, creditor_name,
	amount, currency, subject,
	end_to_end_id, payment_information_id, message_id,
	prepared_at, submitted, invalid, invalid_reason, submission_timestamp`

func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.PreparedPayment, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+paymentColumns+" FROM prepared_payments WHERE id = $1", id)
	p, err := scanPayment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("payment not found").WithDetails("payment_id", id)
		}
		return nil, errors.Internal("postgres: get payment: %v", err)
	}
	return p, nil
}

func (r *PaymentRepository) ListEligibleByConnection(ctx context.Context, connectionID string) ([]*payment.PreparedPayment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM prepared_payments
		WHERE connection_id = $1 AND submitted = FALSE AND invalid = FALSE
		ORDER BY prepared_at`, connectionID)
	if err != nil {
		return nil, errors.Internal("postgres: list eligible payments: %v", err)
	}
	defer rows.Close()

	var out []*payment.PreparedPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.Internal("postgres: scan payment: %v", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) FindByEndToEndID(ctx context.Context, connectionID, endToEndID string) (*payment.PreparedPayment, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+paymentColumns+` FROM prepared_payments WHERE connection_id = $1 AND end_to_end_id = $2`, connectionID, endToEndID)
	p, err := scanPayment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Internal("postgres: find payment by end-to-end id: %v", err)
	}
	return p, nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *payment.PreparedPayment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO prepared_payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			submitted = EXCLUDED.submitted, invalid = EXCLUDED.invalid,
			invalid_reason = EXCLUDED.invalid_reason, submission_timestamp = EXCLUDED.submission_timestamp`,
		p.ID, p.ConnectionID, p.DebtorIBAN, p.CreditorIBAN, p.CreditorBIC, p.CreditorName,
		p.Amount, p.Currency, p.Subject,
		p.EndToEndID, p.PaymentInformationID, p.MessageID,
		p.PreparedAt, p.Submitted, p.Invalid, p.InvalidReason, p.SubmissionTimestamp)
	if err != nil {
		return errors.Internal("postgres: save payment: %v", err)
	}
	return nil
}

func scanPayment(row rowScanner) (*payment.PreparedPayment, error) {
	var p payment.PreparedPayment
	err := row.Scan(
		&p.ID, &p.ConnectionID, &p.DebtorIBAN, &p.CreditorIBAN, &p.CreditorBIC, &p.CreditorName,
		&p.Amount, &p.Currency, &p.Subject,
		&p.EndToEndID, &p.PaymentInformationID, &p.MessageID,
		&p.PreparedAt, &p.Submitted, &p.Invalid, &p.InvalidReason, &p.SubmissionTimestamp)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
