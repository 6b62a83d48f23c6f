package host_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/ebics/keyexchange"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebics/upload"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/iso20022"
	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/simulator/host"
)

func validPaymentRequest(now time.Time) iso20022.PaymentRequest {
	return iso20022.PaymentRequest{
		MessageID:              "MSG-VALID",
		PaymentInformationID:   "PMT-VALID",
		CreationDateTime:       now,
		RequestedExecutionDate: now,
		DebtorName:             "Acme GmbH",
		DebtorIBAN:             "DE89370400440532013000",
		DebtorBIC:              "COBADEFFXXX",
		CreditorName:           "Contoso Ltd",
		CreditorIBAN:           "DE02500105170137075030",
		CreditorBIC:            "INGBNL2A",
		Amount:                 decimal.RequireFromString("10.00"),
		Currency:               "EUR",
		Subject:                "invoice",
		EndToEndID:             "E2E-VALID",
	}
}

// handshakeAgainst drives INI/HIA/HPB against h and returns an
// upload.Subscriber ready to submit orders as PARTNER1/USER1.
func handshakeAgainst(t *testing.T, h *host.Host, now time.Time) (*httptest.Server, upload.Subscriber) {
	t.Helper()

	srv := httptest.NewServer(h)
	client := transport.New(srv.URL)
	ctx := context.Background()

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

	return srv, upload.Subscriber{
		HostID: "SIMHOST", PartnerID: "PARTNER1", UserID: "USER1",
		SigPriv: sigPriv, AuthPriv: authPriv, BankEncPub: bankKeys.Encryption,
	}
}

func TestUploadWithMalformedBICIsRejectedAndNotRecorded(t *testing.T) {
	ledger := bank.NewLedger()
	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)

	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	srv, uploadSub := handshakeAgainst(t, h, now)
	defer srv.Close()

	req := validPaymentRequest(now)
	req.CreditorBIC = "not-a-BIC"
	doc := iso20022.EmitPain001(req)

	ctx := context.Background()
	err = upload.Submit(ctx, transport.New(srv.URL), uploadSub, doc, now)
	assert.Error(t, err, "an invalid creditor BIC must be rejected at upload")
	assert.Empty(t, ledger.Payments(), "a rejected order must never reach the ledger")

	// Resubmitting the same malformed order is a no-op: it is rejected
	// again rather than ever being recorded.
	err = upload.Submit(ctx, transport.New(srv.URL), uploadSub, doc, now)
	assert.Error(t, err)
	assert.Empty(t, ledger.Payments())
}

func TestUploadWithUnsupportedCurrencyIsRejectedAndNotRecorded(t *testing.T) {
	ledger := bank.NewLedger()
	ledger.SetAcceptedCurrencies("PARTNER1", "CHF")
	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)

	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	srv, uploadSub := handshakeAgainst(t, h, now)
	defer srv.Close()

	req := validPaymentRequest(now)
	req.Currency = "EUR"
	doc := iso20022.EmitPain001(req)

	ctx := context.Background()
	err = upload.Submit(ctx, transport.New(srv.URL), uploadSub, doc, now)
	assert.Error(t, err, "a currency the bank does not accept must be rejected")
	assert.Empty(t, ledger.Payments())
}

func TestUploadWithAcceptedCurrencyAndValidBICIsRecorded(t *testing.T) {
	ledger := bank.NewLedger()
	ledger.SetAcceptedCurrencies("PARTNER1", "EUR", "CHF")
	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)

	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	srv, uploadSub := handshakeAgainst(t, h, now)
	defer srv.Close()

	doc := iso20022.EmitPain001(validPaymentRequest(now))

	ctx := context.Background()
	require.NoError(t, upload.Submit(ctx, transport.New(srv.URL), uploadSub, doc, now))
	require.Len(t, ledger.Payments(), 1)
}
