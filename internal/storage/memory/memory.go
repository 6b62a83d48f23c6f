// Package memory provides in-process, mutex-guarded implementations of
// every repository interface the gateway defines. It backs unit tests
// that need a shared store across services (rather than the ad hoc
// single-method fakes scattered through each package's own _test.go
// files) and can run the whole gateway for local development without a
// database — which repository backs which store is a deployment detail,
// not part of any external contract.
package memory

import (
	"context"
	"sync"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// ConnectionStore is a mutex-guarded connection.Repository.
type ConnectionStore struct {
	mu   sync.RWMutex
	byID map[string]*connection.Connection
}

var _ connection.Repository = (*ConnectionStore)(nil)

func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{byID: make(map[string]*connection.Connection)}
}

func (s *ConnectionStore) Get(_ context.Context, id string) (*connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound("connection not found").WithDetails("connection_id", id)
	}
	cp := *c
	return &cp, nil
}

func (s *ConnectionStore) List(_ context.Context) ([]*connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*connection.Connection, 0, len(s.byID))
	for _, c := range s.byID {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *ConnectionStore) Save(_ context.Context, c *connection.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.byID[c.ID] = &cp
	return nil
}

func (s *ConnectionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

// AccountStore is a mutex-guarded account.Repository.
type AccountStore struct {
	mu   sync.RWMutex
	byID map[string]*account.Account
}

var _ account.Repository = (*AccountStore)(nil)

func NewAccountStore() *AccountStore {
	return &AccountStore{byID: make(map[string]*account.Account)}
}

func (s *AccountStore) Get(_ context.Context, id string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound("account not found").WithDetails("account_id", id)
	}
	cp := *a
	return &cp, nil
}

func (s *AccountStore) ListByConnection(_ context.Context, connectionID string) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*account.Account
	for _, a := range s.byID {
		if a.ConnectionID == connectionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *AccountStore) Save(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.byID[a.ID] = &cp
	return nil
}

// PaymentStore is a mutex-guarded payment.Repository.
type PaymentStore struct {
	mu   sync.RWMutex
	byID map[string]*payment.PreparedPayment
}

var _ payment.Repository = (*PaymentStore)(nil)

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{byID: make(map[string]*payment.PreparedPayment)}
}

func (s *PaymentStore) Get(_ context.Context, id string) (*payment.PreparedPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound("payment not found").WithDetails("payment_id", id)
	}
	cp := *p
	return &cp, nil
}

func (s *PaymentStore) ListEligibleByConnection(_ context.Context, connectionID string) ([]*payment.PreparedPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*payment.PreparedPayment
	for _, p := range s.byID {
		if p.ConnectionID == connectionID && p.Eligible() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *PaymentStore) FindByEndToEndID(_ context.Context, connectionID, endToEndID string) (*payment.PreparedPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.ConnectionID == connectionID && p.EndToEndID == endToEndID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *PaymentStore) Save(_ context.Context, p *payment.PreparedPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

// RawMessageStore is a mutex-guarded ledger.RawMessageRepository.
type RawMessageStore struct {
	mu   sync.RWMutex
	seen map[string]bool
	byID map[string]*ledger.RawMessage
}

var _ ledger.RawMessageRepository = (*RawMessageStore)(nil)

func NewRawMessageStore() *RawMessageStore {
	return &RawMessageStore{seen: make(map[string]bool), byID: make(map[string]*ledger.RawMessage)}
}

func (s *RawMessageStore) Exists(_ context.Context, connectionID, bankMessageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[connectionID+"|"+bankMessageID], nil
}

func (s *RawMessageStore) Save(_ context.Context, m *ledger.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[m.ConnectionID+"|"+m.BankMessageID] = true
	cp := *m
	s.byID[m.ID] = &cp
	return nil
}

func (s *RawMessageStore) ListQuarantined(_ context.Context, connectionID string) ([]*ledger.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.RawMessage
	for _, m := range s.byID {
		if m.ConnectionID == connectionID && m.Quarantined {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *RawMessageStore) MarkReingested(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return errors.NotFound("raw message not found").WithDetails("raw_message_id", id)
	}
	m.Quarantined = false
	return nil
}

// TransactionStore is a mutex-guarded ledger.TransactionRepository.
type TransactionStore struct {
	mu    sync.RWMutex
	byKey map[ledger.TransactionKey]*ledger.Transaction
}

var _ ledger.TransactionRepository = (*TransactionStore)(nil)

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{byKey: make(map[ledger.TransactionKey]*ledger.Transaction)}
}

func (s *TransactionStore) Get(_ context.Context, key ledger.TransactionKey) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *TransactionStore) Upsert(_ context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledger.TransactionKey{AccountIBAN: t.BookingAccountIBAN, EntryReference: t.EntryReference}
	cp := *t
	s.byKey[key] = &cp
	return nil
}

func (s *TransactionStore) FindUnlinkedByEndToEndID(_ context.Context, connectionID, endToEndID string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.byKey {
		if t.ConnectionID == connectionID && t.EndToEndID == endToEndID && t.LinkedPaymentID == "" {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}
