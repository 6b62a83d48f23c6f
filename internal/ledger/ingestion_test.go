package ledger

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/events"
	"github.com/paynet/ebics-gateway/test/fixtures"
)

type fakeConnectionRepo struct {
	byID map[string]*connection.Connection
}

func (r *fakeConnectionRepo) Get(_ context.Context, id string) (*connection.Connection, error) {
	return r.byID[id], nil
}
func (r *fakeConnectionRepo) List(_ context.Context) ([]*connection.Connection, error) {
	var out []*connection.Connection
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out, nil
}
func (r *fakeConnectionRepo) Save(_ context.Context, c *connection.Connection) error {
	r.byID[c.ID] = c
	return nil
}
func (r *fakeConnectionRepo) Delete(_ context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

type fakeAccountRepo struct {
	byConnection map[string][]*account.Account
}

func (r *fakeAccountRepo) Get(_ context.Context, id string) (*account.Account, error) {
	for _, accs := range r.byConnection {
		for _, a := range accs {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return nil, nil
}
func (r *fakeAccountRepo) ListByConnection(_ context.Context, connectionID string) ([]*account.Account, error) {
	return r.byConnection[connectionID], nil
}
func (r *fakeAccountRepo) Save(_ context.Context, a *account.Account) error {
	return nil
}

type fakePaymentRepo struct {
	byID map[string]*payment.PreparedPayment
}

func (r *fakePaymentRepo) Get(_ context.Context, id string) (*payment.PreparedPayment, error) {
	return r.byID[id], nil
}
func (r *fakePaymentRepo) ListEligibleByConnection(_ context.Context, connectionID string) ([]*payment.PreparedPayment, error) {
	return nil, nil
}
func (r *fakePaymentRepo) FindByEndToEndID(_ context.Context, connectionID, endToEndID string) (*payment.PreparedPayment, error) {
	for _, p := range r.byID {
		if p.ConnectionID == connectionID && p.EndToEndID == endToEndID {
			return p, nil
		}
	}
	return nil, nil
}
func (r *fakePaymentRepo) Save(_ context.Context, p *payment.PreparedPayment) error {
	r.byID[p.ID] = p
	return nil
}

type fakeRawMessageRepo struct {
	seen map[string]bool
	byID map[string]*RawMessage
}

func newFakeRawMessageRepo() *fakeRawMessageRepo {
	return &fakeRawMessageRepo{seen: make(map[string]bool), byID: make(map[string]*RawMessage)}
}
func (r *fakeRawMessageRepo) Exists(_ context.Context, connectionID, bankMessageID string) (bool, error) {
	return r.seen[connectionID+"|"+bankMessageID], nil
}
func (r *fakeRawMessageRepo) Save(_ context.Context, m *RawMessage) error {
	r.seen[m.ConnectionID+"|"+m.BankMessageID] = true
	r.byID[m.ID] = m
	return nil
}
func (r *fakeRawMessageRepo) ListQuarantined(_ context.Context, connectionID string) ([]*RawMessage, error) {
	var out []*RawMessage
	for _, m := range r.byID {
		if m.ConnectionID == connectionID && m.Quarantined {
			out = append(out, m)
		}
	}
	return out, nil
}
func (r *fakeRawMessageRepo) MarkReingested(_ context.Context, id string) error {
	if m, ok := r.byID[id]; ok {
		m.Quarantined = false
	}
	return nil
}

type fakeTransactionRepo struct {
	byKey map[TransactionKey]*Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byKey: make(map[TransactionKey]*Transaction)}
}
func (r *fakeTransactionRepo) Get(_ context.Context, key TransactionKey) (*Transaction, error) {
	return r.byKey[key], nil
}
func (r *fakeTransactionRepo) Upsert(_ context.Context, t *Transaction) error {
	r.byKey[TransactionKey{AccountIBAN: t.BookingAccountIBAN, EntryReference: t.EntryReference}] = t
	return nil
}
func (r *fakeTransactionRepo) FindUnlinkedByEndToEndID(_ context.Context, connectionID, endToEndID string) (*Transaction, error) {
	for _, t := range r.byKey {
		if t.ConnectionID == connectionID && t.EndToEndID == endToEndID && t.LinkedPaymentID == "" {
			return t, nil
		}
	}
	return nil, nil
}

const camtFixture = `<Document>
  <BkToCstmrStmt>
    <GrpHdr><MsgId>STMT-1</MsgId></GrpHdr>
    <Stmt>
      <Acct><Id><IBAN>DE02500105170137075030</IBAN></Id></Acct>
      <Ntry>
        <Amt Ccy="EUR">42.00</Amt>
        <Sts>BOOK</Sts>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <NtryRef>ENTRY-1</NtryRef>
        <NtryDtls>
          <TxDtls>
            <Refs><EndToEndId>E2E-42</EndToEndId></Refs>
          </TxDtls>
        </NtryDtls>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

// fakeBank serves a one-segment C53 download of camtFixture, encrypted to
// subEncPub, and accepts the subsequent receipt phase unconditionally.
func fakeBank(t *testing.T, subEncPub *rsa.PublicKey) *httptest.Server {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(camtFixture))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	env, err := ebicscrypto.EncryptE002(buf.Bytes(), subEncPub)
	require.NoError(t, err)

	orderDataB64 := base64.StdEncoding.EncodeToString(env.Ciphertext)
	keyB64 := base64.StdEncoding.EncodeToString(env.WrappedKey)

	initResponse := `<ebicsResponse>
		<header>
			<static>
				<TransactionID>TXN-DL-1</TransactionID>
				<NumSegments>1</NumSegments>
			</static>
			<mutable><ReturnCode>000000</ReturnCode></mutable>
		</header>
		<body>
			<ReturnCode>000000</ReturnCode>
			<DataTransfer>
				<DataEncryptionInfo><TransactionKey>` + keyB64 + `</TransactionKey></DataEncryptionInfo>
				<OrderData>` + orderDataB64 + `</OrderData>
			</DataTransfer>
		</body>
	</ebicsResponse>`

	receiptResponse := `<ebicsResponse>
		<header>
			<static><TransactionID>TXN-DL-1</TransactionID></static>
			<mutable><ReturnCode>000000</ReturnCode></mutable>
		</header>
		<body><ReturnCode>000000</ReturnCode></body>
	</ebicsResponse>`

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rawBody, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "text/xml")
		if strings.Contains(string(rawBody), "Receipt") {
			_, _ = w.Write([]byte(receiptResponse))
			return
		}
		_, _ = w.Write([]byte(initResponse))
	}))
}

func readyConnectionForIngestion(t *testing.T, url, id string) *connection.Connection {
	c := fixtures.ReadyConnection(t, url)
	c.ID = id
	c.HostID = "HOST1"
	c.PartnerID = "PARTNER1"
	c.UserID = "USER1"
	return &c
}

func TestIngestConnectionStoresRawMessageUpsertsAndReconciles(t *testing.T) {
	enc, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	server := fakeBank(t, &enc.PublicKey)
	defer server.Close()

	c := readyConnectionForIngestion(t, server.URL, "conn-1")
	c.Keys.Encryption = enc
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{c.ID: c}}

	accounts := &fakeAccountRepo{byConnection: map[string][]*account.Account{
		c.ID: {{ID: "acct-1", ConnectionID: c.ID, IBAN: "DE02500105170137075030"}},
	}}

	p := &payment.PreparedPayment{ID: "pay-1", ConnectionID: c.ID, EndToEndID: "E2E-42"}
	payments := &fakePaymentRepo{byID: map[string]*payment.PreparedPayment{p.ID: p}}

	rawMessages := newFakeRawMessageRepo()
	transactions := newFakeTransactionRepo()

	svc := NewIngestionService(connections, accounts, payments, rawMessages, transactions,
		clock.NewFrozen(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)), events.NewPublisher(nil, nil))

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	err = svc.IngestConnection(context.Background(), c.ID, now.Add(-24*time.Hour), now)
	require.NoError(t, err)

	assert.True(t, rawMessages.seen[c.ID+"|STMT-1"])

	tx := transactions.byKey[TransactionKey{AccountIBAN: "DE02500105170137075030", EntryReference: "ENTRY-1"}]
	require.NotNil(t, tx)
	assert.Equal(t, "E2E-42", tx.EndToEndID)
	assert.Equal(t, "pay-1", tx.LinkedPaymentID)

	assert.Equal(t, "STMT-1", accounts.byConnection[c.ID][0].HighestSeenMessageID)
}

func TestIngestConnectionIsIdempotentOnRepeatedMessage(t *testing.T) {
	enc, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	server := fakeBank(t, &enc.PublicKey)
	defer server.Close()

	c := readyConnectionForIngestion(t, server.URL, "conn-2")
	c.Keys.Encryption = enc
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{c.ID: c}}

	accounts := &fakeAccountRepo{byConnection: map[string][]*account.Account{
		c.ID: {{ID: "acct-1", ConnectionID: c.ID, IBAN: "DE02500105170137075030"}},
	}}
	payments := &fakePaymentRepo{byID: map[string]*payment.PreparedPayment{}}
	rawMessages := newFakeRawMessageRepo()
	transactions := newFakeTransactionRepo()

	svc := NewIngestionService(connections, accounts, payments, rawMessages, transactions,
		clock.NewFrozen(time.Now()), events.NewPublisher(nil, nil))

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.IngestConnection(context.Background(), c.ID, now.Add(-24*time.Hour), now))
	require.NoError(t, svc.IngestConnection(context.Background(), c.ID, now.Add(-24*time.Hour), now))

	assert.Len(t, rawMessages.byID, 1)
	assert.Len(t, transactions.byKey, 1)
}

func TestReingestQuarantinedExtractsTransactionsOnceTheDocumentParses(t *testing.T) {
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{}}
	accounts := &fakeAccountRepo{byConnection: map[string][]*account.Account{
		"conn-quarantine": {{ID: "acct-1", ConnectionID: "conn-quarantine", IBAN: "DE02500105170137075030"}},
	}}
	payments := &fakePaymentRepo{byID: map[string]*payment.PreparedPayment{}}
	rawMessages := newFakeRawMessageRepo()
	transactions := newFakeTransactionRepo()

	quarantined := &RawMessage{
		ID:            "raw-quarantined-1",
		ConnectionID:  "conn-quarantine",
		BankMessageID: "STMT-1",
		XML:           []byte(camtFixture),
		Quarantined:   true,
	}
	require.NoError(t, rawMessages.Save(context.Background(), quarantined))

	svc := NewIngestionService(connections, accounts, payments, rawMessages, transactions,
		clock.NewFrozen(time.Now()), events.NewPublisher(nil, nil))

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	reingested, err := svc.ReingestQuarantined(context.Background(), "conn-quarantine", now)
	require.NoError(t, err)
	assert.Equal(t, 1, reingested)
	assert.False(t, rawMessages.byID["raw-quarantined-1"].Quarantined)

	tx := transactions.byKey[TransactionKey{AccountIBAN: "DE02500105170137075030", EntryReference: "ENTRY-1"}]
	require.NotNil(t, tx)
}

func TestReingestQuarantinedLeavesStillMalformedMessagesQuarantined(t *testing.T) {
	connections := &fakeConnectionRepo{byID: map[string]*connection.Connection{}}
	accounts := &fakeAccountRepo{byConnection: map[string][]*account.Account{}}
	payments := &fakePaymentRepo{byID: map[string]*payment.PreparedPayment{}}
	rawMessages := newFakeRawMessageRepo()
	transactions := newFakeTransactionRepo()

	stillBroken := &RawMessage{
		ID:            "raw-quarantined-2",
		ConnectionID:  "conn-quarantine",
		BankMessageID: "STMT-2",
		XML:           []byte(`<NotTheRightRoot/>`),
		Quarantined:   true,
	}
	require.NoError(t, rawMessages.Save(context.Background(), stillBroken))

	svc := NewIngestionService(connections, accounts, payments, rawMessages, transactions,
		clock.NewFrozen(time.Now()), events.NewPublisher(nil, nil))

	reingested, err := svc.ReingestQuarantined(context.Background(), "conn-quarantine", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, reingested)
	assert.True(t, rawMessages.byID["raw-quarantined-2"].Quarantined)
}
