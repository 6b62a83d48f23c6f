package ledger

import (
	"context"

	"github.com/paynet/ebics-gateway/internal/iso20022"
)

// Transaction is a persisted normalized transaction, linked to the raw
// message it was derived from and, once reconciled, to the prepared
// payment it settles.
type Transaction struct {
	ID              string
	ConnectionID    string
	RawMessageID    string
	LinkedPaymentID string // empty until reconciled

	iso20022.NormalizedTransaction
}

// TransactionKey is the dedup/upsert key: (account_iban,
// bank_entry_reference).
type TransactionKey struct {
	AccountIBAN    string
	EntryReference string
}

// TransactionRepository persists normalized transactions, upserting by
// (account_iban, bank_entry_reference).
type TransactionRepository interface {
	Get(ctx context.Context, key TransactionKey) (*Transaction, error)
	Upsert(ctx context.Context, t *Transaction) error
	// FindUnlinkedByEndToEndID looks up a transaction not yet linked to a
	// prepared payment, by its end-to-end id, for reconciliation. It does
	// not filter on direction or status; nil, nil means no match.
	FindUnlinkedByEndToEndID(ctx context.Context, connectionID, endToEndID string) (*Transaction, error)
}
