package iso20022

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the credit/debit indicator of a normalized transaction.
type Direction string

const (
	DirectionCredit Direction = "CRDT"
	DirectionDebit  Direction = "DBIT"
)

// Status is the booking status of a normalized transaction.
type Status string

const (
	StatusBooked  Status = "BOOK"
	StatusPending Status = "PENDING"
)

// BankTransactionCode carries the ISO domain/family/subfamily code and/or
// the bank-proprietary issuer:code form; either half may be empty.
type BankTransactionCode struct {
	Domain     string
	Family     string
	Subfamily  string
	PropIssuer string
	PropCode   string
}

// ISO renders the "domain/family/subfamily" form, empty if Domain is unset.
func (c BankTransactionCode) ISO() string {
	if c.Domain == "" {
		return ""
	}
	return c.Domain + "/" + c.Family + "/" + c.Subfamily
}

// Proprietary renders the "issuer:code" form, empty if PropIssuer is unset.
func (c BankTransactionCode) Proprietary() string {
	if c.PropIssuer == "" {
		return ""
	}
	return c.PropIssuer + ":" + c.PropCode
}

// NormalizedTransaction is one entry detail derived from a camt.05x
// statement.
type NormalizedTransaction struct {
	BookingAccountIBAN string
	CounterpartIBAN    string
	CounterpartBIC     string
	CounterpartName    string
	Amount             decimal.Decimal
	Currency           string
	BookingDateUnixMs  int64
	ValueDate          time.Time
	UnstructuredRemit  string
	Direction          Direction
	Status             Status
	IsBatch            bool
	// BatchFlagMismatch is set when BtchBookg disagrees with the >1-TxDtls
	// derivation of IsBatch. Resolved here as "flag it, trust TxDtls count".
	BatchFlagMismatch bool
	BankTxCode        BankTransactionCode
	EndToEndID        string
	// EntryReference is the bank's own reference for this entry, used as
	// half of the ingestion dedup key (account_iban, bank_entry_reference).
	EntryReference string
}

// Statement is the decoded result of one camt.052/053 document: the
// account it reports on, its transactions, and (when present) the opening
// and closing balances used by the reconciliation round-trip.
type Statement struct {
	AccountIBAN    string
	Transactions   []NormalizedTransaction
	OpeningBalance *decimal.Decimal
	ClosingBalance *decimal.Decimal
}

// PaymentRequest is the input to the pain.001 emitter: everything needed
// to build exactly one PmtInf/CdtTrfTxInf.
type PaymentRequest struct {
	MessageID              string
	PaymentInformationID   string
	CreationDateTime       time.Time
	RequestedExecutionDate time.Time

	DebtorName string
	DebtorIBAN string
	DebtorBIC  string

	CreditorName string
	CreditorIBAN string
	CreditorBIC  string

	Amount   decimal.Decimal
	Currency string
	Subject  string

	EndToEndID string
}
