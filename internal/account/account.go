// Package account models bank accounts bound to a connection, and the
// HTD-based discovery import that can populate them.
package account

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paynet/ebics-gateway/internal/ebics/download"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// Account is a bank account bound to a connection.
type Account struct {
	ID                   string
	ConnectionID         string
	IBAN                 string
	BIC                  string
	Holder               string
	HighestSeenMessageID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Repository persists accounts, owned exclusively by a single connection.
type Repository interface {
	Get(ctx context.Context, id string) (*Account, error)
	ListByConnection(ctx context.Context, connectionID string) ([]*Account, error)
	Save(ctx context.Context, a *Account) error
}

// importedAccount is one entry discovered in an HTD response. The exact
// shape of this is an internal detail, not an external contract, and may
// change.
type importedAccount struct {
	IBAN   string
	BIC    string
	Holder string
}

// ParseHTD extracts account holder info from a decoded HTD document. HTD's
// schema (not ISO 20022) lists one PartnerInfo/AccountInfo per account.
func ParseHTD(document []byte) ([]importedAccount, error) {
	root, err := xmlenc.Parse(bytes.NewReader(document))
	if err != nil {
		return nil, errors.Parse(err, "account: malformed HTD document")
	}

	partnerInfo, err := xmlenc.RequireUniqueChild(root, "PartnerInfo")
	if err != nil {
		return nil, err
	}

	var accounts []importedAccount
	err = xmlenc.MapEachChild(partnerInfo, "AccountInfo", func(n *xmlenc.Node) error {
		ibanNode, err := xmlenc.RequireUniqueChild(n, "AccountNumber")
		if err != nil {
			return err
		}
		acct := importedAccount{IBAN: ibanNode.TrimmedText()}

		if bicNode, ok, err := xmlenc.MaybeUniqueChild(n, "BankCode"); err != nil {
			return err
		} else if ok {
			acct.BIC = bicNode.TrimmedText()
		}
		if holderNode, ok, err := xmlenc.MaybeUniqueChild(n, "AccountHolder"); err != nil {
			return err
		} else if ok {
			acct.Holder = holderNode.TrimmedText()
		}

		accounts = append(accounts, acct)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return accounts, nil
}

// Importer upserts the accounts listed in an already downloaded HTD
// result; the download itself is run by the caller.
type Importer struct {
	repo Repository
}

// NewImporter builds an Importer.
func NewImporter(repo Repository) *Importer {
	return &Importer{repo: repo}
}

// Import parses the HTD document in result and upserts its accounts for
// connectionID by IBAN: accounts already on file get their BIC, holder and
// UpdatedAt refreshed, the rest are saved under a fresh ID. Operator-
// triggered only — never run automatically by the scheduler.
func (imp *Importer) Import(ctx context.Context, connectionID string, result download.Result, now time.Time) ([]*Account, error) {
	if result.Empty {
		return nil, nil
	}

	discovered, err := ParseHTD(result.Document)
	if err != nil {
		return nil, err
	}

	existing, err := imp.repo.ListByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	byIBAN := make(map[string]*Account, len(existing))
	for _, a := range existing {
		byIBAN[a.IBAN] = a
	}

	var out []*Account
	for _, d := range discovered {
		if a, ok := byIBAN[d.IBAN]; ok {
			a.BIC = d.BIC
			a.Holder = d.Holder
			a.UpdatedAt = now
			if err := imp.repo.Save(ctx, a); err != nil {
				return nil, err
			}
			out = append(out, a)
			continue
		}

		a := &Account{
			ID:           uuid.NewString(),
			ConnectionID: connectionID,
			IBAN:         d.IBAN,
			BIC:          d.BIC,
			Holder:       d.Holder,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := imp.repo.Save(ctx, a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, nil
}
