package ledger

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebics/download"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/iso20022"
	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/errors"
	"github.com/paynet/ebics-gateway/pkg/events"
	"github.com/paynet/ebics-gateway/pkg/log"
)

// auditMirror is the subset of clickhouse.AuditMirror that ingestion needs,
// kept as an interface here so this package doesn't import database/sql's
// transitive dependency graph for a purely optional side effect.
type auditMirror interface {
	MirrorRawMessage(ctx context.Context, msg *RawMessage) error
	MirrorTransaction(ctx context.Context, t *Transaction) error
}

// IngestionService requests C53 statements, stores raw messages, and
// upserts + reconciles the normalized transactions they contain.
type IngestionService struct {
	connections  connection.Repository
	accounts     account.Repository
	payments     payment.Repository
	rawMessages  RawMessageRepository
	transactions TransactionRepository
	clock        clock.Clock
	publisher    *events.Publisher
	audit        auditMirror
}

// NewIngestionService builds an IngestionService.
func NewIngestionService(
	connections connection.Repository,
	accounts account.Repository,
	payments payment.Repository,
	rawMessages RawMessageRepository,
	transactions TransactionRepository,
	clk clock.Clock,
	publisher *events.Publisher,
) *IngestionService {
	return &IngestionService{
		connections:  connections,
		accounts:     accounts,
		payments:     payments,
		rawMessages:  rawMessages,
		transactions: transactions,
		clock:        clk,
		publisher:    publisher,
	}
}

// WithAuditMirror adds a ClickHouse audit trail alongside the operational
// store. Mirror failures are logged and otherwise ignored: the audit copy
// must never become a reason a statement fails to ingest.
func (s *IngestionService) WithAuditMirror(m auditMirror) *IngestionService {
	s.audit = m
	return s
}

// IngestConnection requests C53 for the range [since, now] and ingests
// the result. Idempotent: a message already seen for this connection is
// a no-op.
func (s *IngestionService) IngestConnection(ctx context.Context, connectionID string, since, now time.Time) error {
	c, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if !c.Ready() {
		return errors.State("connection %s: not ready for ingestion", connectionID)
	}

	client := transport.New(c.URL)
	sub := download.Subscriber{
		HostID:    c.HostID,
		PartnerID: c.PartnerID,
		UserID:    c.UserID,
		AuthPriv:  c.Keys.Authentication,
		EncPriv:   c.Keys.Encryption,
	}

	result, err := download.Fetch(ctx, client, sub, "C53", &download.DateRange{Start: since, End: now}, now)
	if err != nil {
		return err
	}
	if result.Empty {
		return nil
	}

	bankMessageID, err := iso20022.MessageID(result.Document)
	if err != nil {
		return err
	}

	exists, err := s.rawMessages.Exists(ctx, connectionID, bankMessageID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	// The raw message is stored below regardless of what follows, so a
	// parse failure quarantines it (retrievable for a later re-ingest via
	// ReingestQuarantined) rather than losing it.
	statement, parseErr := iso20022.ParseCamt(bytes.NewReader(result.Document))

	raw := &RawMessage{
		ID:            uuid.NewString(),
		ConnectionID:  connectionID,
		BankMessageID: bankMessageID,
		XML:           result.Document,
		IngestedAt:    now,
		Quarantined:   parseErr != nil,
	}
	if err := s.rawMessages.Save(ctx, raw); err != nil {
		return err
	}
	s.mirrorRawMessage(ctx, raw)

	if parseErr != nil {
		return errors.Parse(parseErr, "ledger: quarantined malformed statement, connection %s message %s", connectionID, bankMessageID)
	}

	return s.applyStatement(ctx, connectionID, raw.ID, bankMessageID, statement, now)
}

func (s *IngestionService) applyStatement(ctx context.Context, connectionID, rawMessageID, bankMessageID string, statement iso20022.Statement, now time.Time) error {
	if err := s.advanceHighestSeen(ctx, connectionID, statement.AccountIBAN, bankMessageID, now); err != nil {
		return err
	}

	for i := range statement.Transactions {
		if err := s.upsertAndReconcile(ctx, connectionID, rawMessageID, &statement.Transactions[i]); err != nil {
			return err
		}
	}

	s.publisher.StatementIngested(ctx, connectionID, bankMessageID, len(statement.Transactions))
	return nil
}

// ReingestQuarantined retries ISO 20022 parsing for every raw message
// quarantined for connectionID. It is never called automatically by the
// scheduler — only transport failures retry on their own; a parse failure
// means the document itself needs attention (a parser fix, typically), so
// re-ingestion is operator-triggered once that fix has shipped. Messages
// that still fail to parse stay quarantined; the returned count is how
// many were successfully reingested.
func (s *IngestionService) ReingestQuarantined(ctx context.Context, connectionID string, now time.Time) (int, error) {
	quarantined, err := s.rawMessages.ListQuarantined(ctx, connectionID)
	if err != nil {
		return 0, err
	}

	reingested := 0
	for _, raw := range quarantined {
		statement, err := iso20022.ParseCamt(bytes.NewReader(raw.XML))
		if err != nil {
			log.FromContext(ctx).Warn("ledger: quarantined message still fails to parse",
				zap.String("connection_id", connectionID), zap.String("raw_message_id", raw.ID), zap.Error(err))
			continue
		}

		if err := s.applyStatement(ctx, connectionID, raw.ID, raw.BankMessageID, statement, now); err != nil {
			return reingested, err
		}
		if err := s.rawMessages.MarkReingested(ctx, raw.ID); err != nil {
			return reingested, err
		}
		reingested++
	}

	return reingested, nil
}

func (s *IngestionService) advanceHighestSeen(ctx context.Context, connectionID, accountIBAN, bankMessageID string, now time.Time) error {
	accounts, err := s.accounts.ListByConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.IBAN != accountIBAN {
			continue
		}
		a.HighestSeenMessageID = bankMessageID
		a.UpdatedAt = now
		return s.accounts.Save(ctx, a)
	}
	return nil
}

func (s *IngestionService) upsertAndReconcile(ctx context.Context, connectionID, rawMessageID string, nt *iso20022.NormalizedTransaction) error {
	key := TransactionKey{AccountIBAN: nt.BookingAccountIBAN, EntryReference: nt.EntryReference}

	linkedPaymentID := ""
	if existing, err := s.transactions.Get(ctx, key); err == nil && existing != nil {
		linkedPaymentID = existing.LinkedPaymentID
	}

	reconciledNow := false
	if linkedPaymentID == "" && nt.Direction == iso20022.DirectionDebit && nt.Status == iso20022.StatusBooked && nt.EndToEndID != "" {
		p, err := s.payments.FindByEndToEndID(ctx, connectionID, nt.EndToEndID)
		if err == nil && p != nil {
			linkedPaymentID = p.ID
			reconciledNow = true
		}
	}

	tx := &Transaction{
		ID:                    uuid.NewString(),
		ConnectionID:          connectionID,
		RawMessageID:          rawMessageID,
		LinkedPaymentID:       linkedPaymentID,
		NormalizedTransaction: *nt,
	}
	if err := s.transactions.Upsert(ctx, tx); err != nil {
		return err
	}
	s.mirrorTransaction(ctx, tx)

	if reconciledNow {
		s.publisher.TransactionReconciled(ctx, tx.ID, linkedPaymentID)
	}
	return nil
}

func (s *IngestionService) mirrorRawMessage(ctx context.Context, raw *RawMessage) {
	if s.audit == nil {
		return
	}
	if err := s.audit.MirrorRawMessage(ctx, raw); err != nil {
		log.FromContext(ctx).Warn("ledger: failed to mirror raw message to audit store", zap.Error(err))
	}
}

func (s *IngestionService) mirrorTransaction(ctx context.Context, tx *Transaction) {
	if s.audit == nil {
		return
	}
	if err := s.audit.MirrorTransaction(ctx, tx); err != nil {
		log.FromContext(ctx).Warn("ledger: failed to mirror transaction to audit store", zap.Error(err))
	}
}
