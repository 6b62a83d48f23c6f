package payment

import (
	"context"

	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebics/upload"
	"github.com/paynet/ebics-gateway/internal/iso20022"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/errors"
	"github.com/paynet/ebics-gateway/pkg/events"
	"github.com/paynet/ebics-gateway/pkg/log"
)

// SubmissionService re-serializes and uploads prepared payments, per
// connection, on each scheduler tick.
type SubmissionService struct {
	payments    Repository
	connections connection.Repository
	clock       clock.Clock
	publisher   *events.Publisher
}

// NewSubmissionService builds a SubmissionService.
func NewSubmissionService(payments Repository, connections connection.Repository, clk clock.Clock, publisher *events.Publisher) *SubmissionService {
	return &SubmissionService{payments: payments, connections: connections, clock: clk, publisher: publisher}
}

// SubmitPending selects every submitted=false, invalid=false payment owned
// by connectionID, emits a fresh pain.001 for each, and uploads it. A
// transport or other retryable failure stops the sweep for this connection
// without marking any payment invalid; a fatal protocol rejection marks
// only the offending payment invalid and continues with the rest.
func (s *SubmissionService) SubmitPending(ctx context.Context, connectionID string) error {
	c, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if !c.Ready() {
		return errors.State("connection %s: not ready for submission", connectionID)
	}

	pending, err := s.payments.ListEligibleByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	client := transport.New(c.URL)
	sub := upload.Subscriber{
		HostID:     c.HostID,
		PartnerID:  c.PartnerID,
		UserID:     c.UserID,
		SigPriv:    c.Keys.Signature,
		AuthPriv:   c.Keys.Authentication,
		BankEncPub: c.BankKeys.Encryption,
	}

	for _, p := range pending {
		if err := s.submitOne(ctx, client, sub, p); err != nil {
			var protoErr *errors.Error
			if errors.As(err, &protoErr) && !protoErr.Retryable() {
				continue
			}
			return err
		}
	}

	return nil
}

func (s *SubmissionService) submitOne(ctx context.Context, client *transport.Client, sub upload.Subscriber, p *PreparedPayment) error {
	now := s.clock.Now()

	req := iso20022.PaymentRequest{
		MessageID:              p.MessageID,
		PaymentInformationID:   p.PaymentInformationID,
		CreationDateTime:       now,
		RequestedExecutionDate: now,
		DebtorIBAN:             p.DebtorIBAN,
		CreditorName:           p.CreditorName,
		CreditorIBAN:           p.CreditorIBAN,
		CreditorBIC:            p.CreditorBIC,
		Amount:                 p.Amount,
		Currency:               p.Currency,
		Subject:                p.Subject,
		EndToEndID:             p.EndToEndID,
	}
	orderData := iso20022.EmitPain001(req)

	err := upload.Submit(ctx, client, sub, orderData, now)
	if err != nil {
		var protoErr *errors.Error
		if errors.As(err, &protoErr) && !protoErr.Retryable() {
			p.MarkInvalid(protoErr.Error())
			if saveErr := s.payments.Save(ctx, p); saveErr != nil {
				return saveErr
			}
			log.FromContext(ctx).Warn("payment submission rejected",
				zap.String("payment_id", p.ID),
				zap.String("end_to_end_id", p.EndToEndID),
				zap.Error(protoErr),
			)
			return nil
		}
		return err
	}

	p.MarkSubmitted(now)
	if err := s.payments.Save(ctx, p); err != nil {
		return err
	}

	s.publisher.PaymentSubmitted(ctx, p.ConnectionID, p.ID, p.EndToEndID)
	return nil
}
