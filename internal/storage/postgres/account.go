package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// AccountRepository is the pgxpool-backed account.Repository.
type AccountRepository struct {
	pool *pgxpool.Pool
}

var _ account.Repository = (*AccountRepository)(nil)

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, connection_id, iban, bic, holder, highest_seen_message_id, created_at, updated_at`

func (r *AccountRepository) Get(ctx context.Context, id string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	a, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("account not found").WithDetails("account_id", id)
		}
		return nil, errors.Internal("postgres: get account: %v", err)
	}
	return a, nil
}

func (r *AccountRepository) ListByConnection(ctx context.Context, connectionID string) ([]*account.Account, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+accountColumns+" FROM accounts WHERE connection_id = $1 ORDER BY id", connectionID)
	if err != nil {
		return nil, errors.Internal("postgres: list accounts: %v", err)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, errors.Internal("postgres: scan account: %v", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepository) Save(ctx context.Context, a *account.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			iban = EXCLUDED.iban, bic = EXCLUDED.bic, holder = EXCLUDED.holder,
			highest_seen_message_id = EXCLUDED.highest_seen_message_id, updated_at = EXCLUDED.updated_at`,
		a.ID, a.ConnectionID, a.IBAN, a.BIC, a.Holder, a.HighestSeenMessageID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return errors.Internal("postgres: save account: %v", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var a account.Account
	err := row.Scan(&a.ID, &a.ConnectionID, &a.IBAN, &a.BIC, &a.Holder, &a.HighestSeenMessageID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
