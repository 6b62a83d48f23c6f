package builders

import (
	"time"

	"github.com/paynet/ebics-gateway/internal/account"
)

// AccountBuilder builds account.Account test fixtures.
type AccountBuilder struct {
	acct account.Account
}

// NewAccount returns an AccountBuilder seeded with a sensible IBAN/BIC pair.
func NewAccount() *AccountBuilder {
	now := time.Now()
	return &AccountBuilder{
		acct: account.Account{
			ID:           "test-account-id",
			ConnectionID: "test-connection-id",
			IBAN:         "DE89370400440532013000",
			BIC:          "COBADEFFXXX",
			Holder:       "Test Account Holder",
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

func (b *AccountBuilder) WithID(id string) *AccountBuilder {
	b.acct.ID = id
	return b
}

func (b *AccountBuilder) WithConnectionID(connectionID string) *AccountBuilder {
	b.acct.ConnectionID = connectionID
	return b
}

func (b *AccountBuilder) WithIBAN(iban string) *AccountBuilder {
	b.acct.IBAN = iban
	return b
}

func (b *AccountBuilder) WithBIC(bic string) *AccountBuilder {
	b.acct.BIC = bic
	return b
}

func (b *AccountBuilder) WithHolder(holder string) *AccountBuilder {
	b.acct.Holder = holder
	return b
}

// WithHighestSeenMessageID sets the ingestion high-water mark for this
// account, as if a prior ingest had already seen a message up to this ID.
func (b *AccountBuilder) WithHighestSeenMessageID(id string) *AccountBuilder {
	b.acct.HighestSeenMessageID = id
	return b
}

// Build returns the constructed Account.
func (b *AccountBuilder) Build() account.Account {
	return b.acct
}
