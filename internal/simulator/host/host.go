// Package host implements the bank side of the EBICS 2.5 wire protocol
// the gateway's internal/ebics/{hev,keyexchange,upload,download} packages
// speak from the subscriber side: HEV, INI, HIA, HPB, CCT upload, and
// C52/C53/HTD download. It exists to let the gateway, and tests of it, run
// against a real HTTP request/response cycle instead of a mocked
// transport.Client.
package host

import (
	"bytes"
	"crypto/rsa"
	"io"
	"net/http"
	"sync"

	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// subscriberKey identifies one EBICS subscriber registered at this host.
type subscriberKey struct {
	PartnerID string
	UserID    string
}

// subscriber holds the public keys a partner/user has registered via INI
// and HIA. A subscriber is "ready" once both have landed, mirroring the
// connection state machine on the gateway side.
type subscriber struct {
	sigPub  *rsa.PublicKey
	authPub *rsa.PublicKey
	encPub  *rsa.PublicKey
}

func (s *subscriber) ready() bool {
	return s != nil && s.sigPub != nil && s.authPub != nil && s.encPub != nil
}

// Host is one simulated EBICS bank, identified by HostID, with its own
// X002/E002 key pair and a Ledger of documents to serve and accept.
type Host struct {
	HostID   string
	authPriv *rsa.PrivateKey
	encPriv  *rsa.PrivateKey
	ledger   *bank.Ledger
	clock    clock.Clock

	mu          sync.Mutex
	subscribers map[subscriberKey]*subscriber
	txns        map[string]*transaction
	nextTxnID   uint64
}

// New generates the host's own key pair and returns a Host backed by
// ledger. Callers register expected downloads with ledger before traffic
// arrives.
func New(hostID string, ledger *bank.Ledger) (*Host, error) {
	authPriv, err := ebicscrypto.GenerateRSA()
	if err != nil {
		return nil, err
	}
	encPriv, err := ebicscrypto.GenerateRSA()
	if err != nil {
		return nil, err
	}
	return &Host{
		HostID:      hostID,
		authPriv:    authPriv,
		encPriv:     encPriv,
		ledger:      ledger,
		clock:       clock.System{},
		subscribers: make(map[subscriberKey]*subscriber),
		txns:        make(map[string]*transaction),
	}, nil
}

// WithClock overrides the host's time source, mainly for tests that need
// deterministic ReceivedAt timestamps.
func (h *Host) WithClock(c clock.Clock) *Host {
	h.clock = c
	return h
}

// ServeHTTP dispatches on the request body's root element, the only thing
// that distinguishes an HEV probe, an unsecured key-upload, and a signed
// ebicsRequest at the transport level.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	root, err := xmlenc.Parse(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "malformed XML", http.StatusBadRequest)
		return
	}

	var respDoc *xmlenc.Node
	switch root.Local {
	case "ebicsHEVRequest":
		respDoc, err = h.handleHEV(root)
	case "ebicsUnsecuredRequest":
		respDoc, err = h.handleUnsecured(root)
	case "ebicsRequest":
		respDoc, err = h.handleRequest(root)
	default:
		err = errors.Parse(nil, "host: unrecognized root element %q", root.Local)
	}

	if err != nil {
		h.writeProtocolFailure(w)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xmlenc.Serialize(respDoc))
}

// writeProtocolFailure renders a non-protocol error (malformed request,
// unknown subscriber) as a best-effort ebicsResponse carrying 091002
// (EBICS_INVALID_REQUEST_CONTENT) as both return codes, so the client's return-code handling
// still has something to parse rather than a bare HTTP error.
func (h *Host) writeProtocolFailure(w http.ResponseWriter) {
	root := ebicsResponseEnvelope("091002", "091002", nil)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xmlenc.Serialize(root))
}

func (h *Host) subscriberFor(key subscriberKey) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers[key]
}
