package builders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynet/ebics-gateway/internal/payment"
)

// PreparedPaymentBuilder builds payment.PreparedPayment test fixtures.
type PreparedPaymentBuilder struct {
	payment payment.PreparedPayment
}

// NewPreparedPayment returns a PreparedPaymentBuilder for a 100.00 EUR
// transfer awaiting submission.
func NewPreparedPayment() *PreparedPaymentBuilder {
	return &PreparedPaymentBuilder{
		payment: payment.PreparedPayment{
			ID:                   "test-payment-id",
			ConnectionID:         "test-connection-id",
			DebtorIBAN:           "DE89370400440532013000",
			CreditorIBAN:         "DE02100100100006820101",
			CreditorBIC:          "PBNKDEFFXXX",
			CreditorName:         "Test Creditor",
			Amount:               decimal.NewFromInt(100),
			Currency:             "EUR",
			Subject:              "test payment",
			EndToEndID:           "TEST-E2E-0001",
			PaymentInformationID: "TEST-PMTINF-0001",
			MessageID:            "TEST-MSG-0001",
			PreparedAt:           time.Now(),
		},
	}
}

func (b *PreparedPaymentBuilder) WithID(id string) *PreparedPaymentBuilder {
	b.payment.ID = id
	return b
}

func (b *PreparedPaymentBuilder) WithConnectionID(connectionID string) *PreparedPaymentBuilder {
	b.payment.ConnectionID = connectionID
	return b
}

func (b *PreparedPaymentBuilder) WithAmount(amount decimal.Decimal) *PreparedPaymentBuilder {
	b.payment.Amount = amount
	return b
}

func (b *PreparedPaymentBuilder) WithCurrency(currency string) *PreparedPaymentBuilder {
	b.payment.Currency = currency
	return b
}

func (b *PreparedPaymentBuilder) WithCreditor(iban, bic, name string) *PreparedPaymentBuilder {
	b.payment.CreditorIBAN = iban
	b.payment.CreditorBIC = bic
	b.payment.CreditorName = name
	return b
}

func (b *PreparedPaymentBuilder) WithEndToEndID(id string) *PreparedPaymentBuilder {
	b.payment.EndToEndID = id
	return b
}

// WithSubmitted marks the payment already submitted, as if a prior
// submission sweep had uploaded it successfully.
func (b *PreparedPaymentBuilder) WithSubmitted() *PreparedPaymentBuilder {
	now := time.Now()
	b.payment.Submitted = true
	b.payment.SubmissionTimestamp = &now
	return b
}

// WithInvalid marks the payment excluded from submission sweeps.
func (b *PreparedPaymentBuilder) WithInvalid(reason string) *PreparedPaymentBuilder {
	b.payment.Invalid = true
	b.payment.InvalidReason = reason
	return b
}

// Build returns the constructed PreparedPayment.
func (b *PreparedPaymentBuilder) Build() payment.PreparedPayment {
	return b.payment
}
