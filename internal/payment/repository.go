package payment

import "context"

// Repository persists prepared payments.
type Repository interface {
	Get(ctx context.Context, id string) (*PreparedPayment, error)
	ListEligibleByConnection(ctx context.Context, connectionID string) ([]*PreparedPayment, error)
	// FindByEndToEndID looks up a prepared payment by its end-to-end id
	// within connectionID, for reconciliation against normalized
	// transactions. Returns nil, nil if none matches.
	FindByEndToEndID(ctx context.Context, connectionID, endToEndID string) (*PreparedPayment, error)
	Save(ctx context.Context, p *PreparedPayment) error
}
