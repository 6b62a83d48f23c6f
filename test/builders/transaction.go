package builders

import (
	"github.com/shopspring/decimal"

	"github.com/paynet/ebics-gateway/internal/iso20022"
	"github.com/paynet/ebics-gateway/internal/ledger"
)

// TransactionBuilder builds ledger.Transaction test fixtures.
type TransactionBuilder struct {
	tx ledger.Transaction
}

// NewTransaction returns a TransactionBuilder for a booked 50.00 EUR credit,
// not yet reconciled against any prepared payment.
func NewTransaction() *TransactionBuilder {
	return &TransactionBuilder{
		tx: ledger.Transaction{
			ID:           "test-transaction-id",
			ConnectionID: "test-connection-id",
			RawMessageID: "test-raw-message-id",
			NormalizedTransaction: iso20022.NormalizedTransaction{
				BookingAccountIBAN: "DE89370400440532013000",
				CounterpartIBAN:    "DE02100100100006820101",
				CounterpartBIC:     "PBNKDEFFXXX",
				CounterpartName:    "Test Counterpart",
				Amount:             decimal.NewFromInt(50),
				Currency:           "EUR",
				Direction:          iso20022.DirectionCredit,
				Status:             iso20022.StatusBooked,
				EndToEndID:         "TEST-E2E-0001",
				EntryReference:     "TEST-ENTRY-0001",
			},
		},
	}
}

func (b *TransactionBuilder) WithID(id string) *TransactionBuilder {
	b.tx.ID = id
	return b
}

func (b *TransactionBuilder) WithConnectionID(connectionID string) *TransactionBuilder {
	b.tx.ConnectionID = connectionID
	return b
}

func (b *TransactionBuilder) WithDirection(d iso20022.Direction) *TransactionBuilder {
	b.tx.Direction = d
	return b
}

func (b *TransactionBuilder) WithStatus(s iso20022.Status) *TransactionBuilder {
	b.tx.Status = s
	return b
}

func (b *TransactionBuilder) WithEndToEndID(id string) *TransactionBuilder {
	b.tx.EndToEndID = id
	return b
}

func (b *TransactionBuilder) WithEntryReference(ref string) *TransactionBuilder {
	b.tx.EntryReference = ref
	return b
}

// WithLinkedPayment marks the transaction as already reconciled to a
// prepared payment.
func (b *TransactionBuilder) WithLinkedPayment(paymentID string) *TransactionBuilder {
	b.tx.LinkedPaymentID = paymentID
	return b
}

// Build returns the constructed Transaction.
func (b *TransactionBuilder) Build() ledger.Transaction {
	return b.tx
}
