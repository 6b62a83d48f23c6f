package payment

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebics/keyexchange"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/simulator/host"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/events"
)

// simulatorConnection runs a full INI/HIA/HPB handshake against a real
// EBICS host simulator backed by ledger, and returns a connection ready
// for SubmissionService to use.
func simulatorConnection(t *testing.T, ledger *bank.Ledger, id string) *connection.Connection {
	t.Helper()

	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := transport.New(srv.URL)
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	sigPriv, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	authPriv, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	encPriv, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	sub := keyexchange.Subscriber{HostID: "SIMHOST", PartnerID: "PARTNER1", UserID: "USER1"}
	require.NoError(t, keyexchange.INI(ctx, client, sub, &sigPriv.PublicKey))
	require.NoError(t, keyexchange.HIA(ctx, client, sub, &authPriv.PublicKey, &encPriv.PublicKey))
	bankKeys, err := keyexchange.HPB(ctx, client, sub, authPriv, encPriv, now)
	require.NoError(t, err)

	return &connection.Connection{
		ID:        id,
		URL:       srv.URL,
		HostID:    "SIMHOST",
		PartnerID: "PARTNER1",
		UserID:    "USER1",
		Keys:      connection.KeyTriple{Signature: sigPriv, Authentication: authPriv, Encryption: encPriv},
		BankKeys:  connection.BankKeys(bankKeys),
		INIState:  connection.KeyStateSent,
		HIAState:  connection.KeyStateSent,
		Status:    connection.StatusReady,
	}
}

func TestSubmitPendingMarksPaymentInvalidOnMalformedCreditorBIC(t *testing.T) {
	ledger := bank.NewLedger()
	c := simulatorConnection(t, ledger, "conn-bic")
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{c.ID: c}}

	p := &PreparedPayment{
		ID:           "pay-bic",
		ConnectionID: c.ID,
		DebtorIBAN:   "DE89370400440532013000",
		CreditorIBAN: "DE02500105170137075030",
		CreditorName: "Contoso Ltd",
		CreditorBIC:  "not-a-BIC",
		Amount:       decimal.RequireFromString("10.00"),
		Currency:     "EUR",
		EndToEndID:   "E2E-BIC",
		MessageID:    "MSG-BIC",
	}
	payments := &fakePaymentRepo{byID: map[string]*PreparedPayment{p.ID: p}}

	svc := NewSubmissionService(payments, connections, clock.NewFrozen(time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)), events.NewPublisher(nil, nil))

	require.NoError(t, svc.SubmitPending(context.Background(), c.ID))
	assert.True(t, p.Invalid)
	assert.False(t, p.Submitted)
	assert.Empty(t, ledger.Payments())

	// A second sweep is a no-op: the payment is no longer eligible once
	// marked invalid.
	require.NoError(t, svc.SubmitPending(context.Background(), c.ID))
	assert.Empty(t, ledger.Payments())
}

func TestSubmitPendingMarksPaymentInvalidOnUnsupportedCurrency(t *testing.T) {
	ledger := bank.NewLedger()
	ledger.SetAcceptedCurrencies("PARTNER1", "CHF")
	c := simulatorConnection(t, ledger, "conn-ccy")
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{c.ID: c}}

	p := &PreparedPayment{
		ID:           "pay-ccy",
		ConnectionID: c.ID,
		DebtorIBAN:   "DE89370400440532013000",
		CreditorIBAN: "DE02500105170137075030",
		CreditorName: "Contoso Ltd",
		CreditorBIC:  "INGBNL2A",
		Amount:       decimal.RequireFromString("10.00"),
		Currency:     "EUR",
		EndToEndID:   "E2E-CCY",
		MessageID:    "MSG-CCY",
	}
	payments := &fakePaymentRepo{byID: map[string]*PreparedPayment{p.ID: p}}

	svc := NewSubmissionService(payments, connections, clock.NewFrozen(time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)), events.NewPublisher(nil, nil))

	require.NoError(t, svc.SubmitPending(context.Background(), c.ID))
	assert.True(t, p.Invalid)
	assert.Contains(t, p.InvalidReason, "bank rejected CCT initialisation")
	assert.Empty(t, ledger.Payments())
}

func TestSubmitPendingAcceptsAPaymentInASupportedCurrencyWithAValidBIC(t *testing.T) {
	ledger := bank.NewLedger()
	ledger.SetAcceptedCurrencies("PARTNER1", "EUR", "CHF")
	c := simulatorConnection(t, ledger, "conn-ok")
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{c.ID: c}}

	p := &PreparedPayment{
		ID:           "pay-ok",
		ConnectionID: c.ID,
		DebtorIBAN:   "DE89370400440532013000",
		CreditorIBAN: "DE02500105170137075030",
		CreditorName: "Contoso Ltd",
		CreditorBIC:  "INGBNL2A",
		Amount:       decimal.RequireFromString("10.00"),
		Currency:     "EUR",
		EndToEndID:   "E2E-OK",
		MessageID:    "MSG-OK",
	}
	payments := &fakePaymentRepo{byID: map[string]*PreparedPayment{p.ID: p}}

	svc := NewSubmissionService(payments, connections, clock.NewFrozen(time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)), events.NewPublisher(nil, nil))

	require.NoError(t, svc.SubmitPending(context.Background(), c.ID))
	assert.True(t, p.Submitted)
	assert.False(t, p.Invalid)
	require.Len(t, ledger.Payments(), 1)
}
