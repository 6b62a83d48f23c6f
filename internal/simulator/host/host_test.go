package host_test

import (
	"context"
	"crypto/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/ebics/download"
	"github.com/paynet/ebics-gateway/internal/ebics/hev"
	"github.com/paynet/ebics-gateway/internal/ebics/keyexchange"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebics/upload"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/simulator/host"
)

func TestFullHandshakeUploadDownloadCycle(t *testing.T) {
	ledger := bank.NewLedger()
	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()
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

	versions, err := hev.Probe(ctx, client, "SIMHOST")
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "H004", versions[0].Protocol)

	require.NoError(t, keyexchange.INI(ctx, client, sub, &sigPriv.PublicKey))
	require.NoError(t, keyexchange.HIA(ctx, client, sub, &authPriv.PublicKey, &encPriv.PublicKey))

	bankKeys, err := keyexchange.HPB(ctx, client, sub, authPriv, encPriv, now)
	require.NoError(t, err)
	require.NotNil(t, bankKeys.Authentication)
	require.NotNil(t, bankKeys.Encryption)

	uploadSub := upload.Subscriber{
		HostID: "SIMHOST", PartnerID: "PARTNER1", UserID: "USER1",
		SigPriv: sigPriv, AuthPriv: authPriv, BankEncPub: bankKeys.Encryption,
	}
	painDoc := []byte(`<?xml version="1.0"?><Document><CstmrCdtTrfInitn>test payment</CstmrCdtTrfInitn></Document>`)
	require.NoError(t, upload.Submit(ctx, client, uploadSub, painDoc, now))

	payments := ledger.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "PARTNER1", payments[0].PartnerID)
	assert.Equal(t, painDoc, payments[0].Document)

	statementDoc := []byte(`<?xml version="1.0"?><Document><BkToCstmrStmt>camt.053</BkToCstmrStmt></Document>`)
	ledger.QueueStatement("PARTNER1", bank.Statement{OrderType: "C53", Document: statementDoc})

	downloadSub := download.Subscriber{
		HostID: "SIMHOST", PartnerID: "PARTNER1", UserID: "USER1",
		AuthPriv: authPriv, EncPriv: encPriv,
	}
	result, err := download.Fetch(ctx, client, downloadSub, "C53", nil, now)
	require.NoError(t, err)
	assert.False(t, result.Empty)
	assert.Equal(t, statementDoc, result.Document)

	empty, err := download.Fetch(ctx, client, downloadSub, "C53", nil, now)
	require.NoError(t, err)
	assert.True(t, empty.Empty)
}

func TestMultiSegmentUploadAndDownload(t *testing.T) {
	ledger := bank.NewLedger()
	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()
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

	// Large enough, and incompressible enough, that the compressed and
	// encrypted payload spans more than one segmentSize chunk on both the
	// upload and the download side.
	large := make([]byte, 3<<20)
	_, err = rand.Read(large)
	require.NoError(t, err)

	uploadSub := upload.Subscriber{
		HostID: "SIMHOST", PartnerID: "PARTNER1", UserID: "USER1",
		SigPriv: sigPriv, AuthPriv: authPriv, BankEncPub: bankKeys.Encryption,
	}
	require.NoError(t, upload.Submit(ctx, client, uploadSub, large, now))

	payments := ledger.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, large, payments[0].Document)

	ledger.QueueStatement("PARTNER1", bank.Statement{OrderType: "C53", Document: large})
	downloadSub := download.Subscriber{
		HostID: "SIMHOST", PartnerID: "PARTNER1", UserID: "USER1",
		AuthPriv: authPriv, EncPriv: encPriv,
	}
	result, err := download.Fetch(ctx, client, downloadSub, "C53", nil, now)
	require.NoError(t, err)
	require.False(t, result.Empty)
	assert.Equal(t, large, result.Document)
}

func TestDownloadBeforeHandshakeIsRejected(t *testing.T) {
	ledger := bank.NewLedger()
	h, err := host.New("SIMHOST", ledger)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()
	client := transport.New(srv.URL)

	authPriv, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	encPriv, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	sub := download.Subscriber{
		HostID: "SIMHOST", PartnerID: "UNKNOWN", UserID: "NOBODY",
		AuthPriv: authPriv, EncPriv: encPriv,
	}
	_, err = download.Fetch(context.Background(), client, sub, "C53", nil, time.Now())
	assert.Error(t, err)
}
