package host

import (
	"fmt"

	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// transactionKind distinguishes an upload (client pushing data in) from a
// download (client pulling data out); the transfer/receipt handlers need
// to know which to interpret SegmentNumber/OrderData correctly.
type transactionKind int

const (
	kindUpload transactionKind = iota
	kindDownload
)

// transaction is the host-side state of one in-flight multi-phase
// exchange, keyed by the TransactionID handed out at initialisation.
type transaction struct {
	kind    transactionKind
	partner subscriberKey

	// upload fields
	uploadChunks   []string // base64 ciphertext chunks received so far
	uploadWantSegs int
	initRoot       *xmlenc.Node // the initialisation request, kept for its DataEncryptionInfo/SignatureData

	// download fields
	downloadOrderType string
	downloadSegments  []string // precomputed base64 ciphertext chunks to hand out
}

// newTransactionID returns a fresh, host-unique transaction identifier.
// EBICS TransactionIDs are conventionally 32 hex characters; a zero-padded
// counter is good enough for a simulator that never restarts mid-test.
func (h *Host) newTransactionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTxnID++
	return fmt.Sprintf("%032X", h.nextTxnID)
}

func (h *Host) registerTransaction(id string, txn *transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.txns[id] = txn
}

func (h *Host) transactionFor(id string, partner subscriberKey) (*transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	txn, ok := h.txns[id]
	if !ok {
		return nil, errors.State("host: unknown transaction %q", id)
	}
	if txn.partner != partner {
		return nil, errors.State("host: transaction %q does not belong to this subscriber", id)
	}
	return txn, nil
}

func (h *Host) closeTransaction(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.txns, id)
}
