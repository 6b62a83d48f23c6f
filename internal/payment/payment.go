// Package payment models a prepared payment initiation and its
// submission lifecycle.
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// PreparedPayment is a payment initiation persisted locally and awaiting
// upload. Immutable at creation except for its lifecycle flags.
type PreparedPayment struct {
	ID           string
	ConnectionID string
	DebtorIBAN   string

	CreditorIBAN string
	CreditorBIC  string
	CreditorName string

	Amount   decimal.Decimal
	Currency string
	Subject  string

	EndToEndID           string
	PaymentInformationID string
	MessageID            string

	PreparedAt time.Time

	Submitted          bool
	Invalid            bool
	InvalidReason      string
	SubmissionTimestamp *time.Time
}

// Eligible reports whether this payment is still a candidate for a
// submission sweep: not yet submitted and not marked invalid.
func (p *PreparedPayment) Eligible() bool {
	return !p.Submitted && !p.Invalid
}

// MarkSubmitted freezes the payment as successfully uploaded. Once set,
// the frozen tuple (creditor IBAN, amount, currency, subject, prepared-at)
// must never change again.
func (p *PreparedPayment) MarkSubmitted(now time.Time) {
	p.Submitted = true
	p.SubmissionTimestamp = &now
}

// MarkInvalid excludes the payment from all further submission attempts.
func (p *PreparedPayment) MarkInvalid(reason string) {
	p.Invalid = true
	p.InvalidReason = reason
}
