package host

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/paynet/ebics-gateway/internal/ebics/returncode"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/iso20022"
	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// handleUploadInit processes the initialisation phase of a CCT upload: it
// verifies the request signature, stashes the segment count, and hands
// back a fresh TransactionID. The order data itself isn't decryptable
// until every transfer segment has arrived, since AES-CBC ciphertext only
// assembles correctly as a whole.
func (h *Host) handleUploadInit(root *xmlenc.Node, key subscriberKey, sub *subscriber, numSegments int) (*xmlenc.Node, error) {
	if err := h.verifyRequestSignature(root, sub); err != nil {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	txnID := h.newTransactionID()
	h.registerTransaction(txnID, &transaction{
		kind:           kindUpload,
		partner:        key,
		uploadWantSegs: numSegments,
		initRoot:       root,
	})

	return ebicsResponseEnvelope("000000", "000000", &responseOptions{transactionID: txnID}), nil
}

// handleUploadTransfer appends segNum's ciphertext to the transaction, and
// on the last segment decrypts, decompresses, verifies the A006 order
// signature, and records the resulting pain.001 document in the ledger.
func (h *Host) handleUploadTransfer(root *xmlenc.Node, key subscriberKey, sub *subscriber, txnID string, last bool) (*xmlenc.Node, error) {
	if err := h.verifyRequestSignature(root, sub); err != nil {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	txn, err := h.transactionFor(txnID, key)
	if err != nil {
		return nil, err
	}
	if txn.kind != kindUpload {
		return nil, errors.State("host: transaction %q is not an upload", txnID)
	}

	body, err := xmlenc.RequireUniqueChild(root, "body")
	if err != nil {
		return nil, err
	}
	dataTransfer, err := xmlenc.RequireUniqueChild(body, "DataTransfer")
	if err != nil {
		return nil, err
	}
	orderDataNode, err := xmlenc.RequireUniqueChild(dataTransfer, "OrderData")
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	txn.uploadChunks = append(txn.uploadChunks, orderDataNode.TrimmedText())
	h.mu.Unlock()

	if !last {
		return ebicsResponseEnvelope("000000", "000000", nil), nil
	}

	h.mu.Lock()
	gotSegs := len(txn.uploadChunks)
	h.mu.Unlock()
	if gotSegs != txn.uploadWantSegs {
		return nil, errors.State("host: transaction %q expected %d segments, got %d", txnID, txn.uploadWantSegs, gotSegs)
	}

	defer h.closeTransaction(txnID)
	return h.finishUpload(key, sub, txn)
}

// finishUpload reads DataEncryptionInfo/TransactionKey and SignatureData
// out of the stored init request, assembles the chunks collected since,
// decrypts and verifies them, and records the result in the ledger.
func (h *Host) finishUpload(key subscriberKey, sub *subscriber, txn *transaction) (*xmlenc.Node, error) {
	body, err := xmlenc.RequireUniqueChild(txn.initRoot, "body")
	if err != nil {
		return nil, err
	}
	dataTransfer, err := xmlenc.RequireUniqueChild(body, "DataTransfer")
	if err != nil {
		return nil, err
	}
	encInfo, err := xmlenc.RequireUniqueChild(dataTransfer, "DataEncryptionInfo")
	if err != nil {
		return nil, err
	}
	transactionKeyNode, err := xmlenc.RequireUniqueChild(encInfo, "TransactionKey")
	if err != nil {
		return nil, err
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(transactionKeyNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "host: invalid transaction key encoding")
	}

	signatureData, err := xmlenc.RequireUniqueChild(dataTransfer, "SignatureData")
	if err != nil {
		return nil, err
	}
	orderSigNode, err := xmlenc.RequireUniqueChild(signatureData, "OrderSignatureValue")
	if err != nil {
		return nil, err
	}
	orderSignature, err := base64.StdEncoding.DecodeString(orderSigNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "host: invalid order signature encoding")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.Join(txn.uploadChunks, ""))
	if err != nil {
		return nil, errors.Parse(err, "host: invalid segment encoding")
	}

	plaintext, err := ebicscrypto.DecryptE002(ebicscrypto.Envelope{WrappedKey: wrappedKey, Ciphertext: ciphertext}, h.encPriv)
	if err != nil {
		return nil, err
	}

	orderData, err := inflate(plaintext)
	if err != nil {
		return nil, err
	}

	if !ebicscrypto.VerifyOrderDigestA006(orderSignature, ebicscrypto.DigestOrderA006(orderData), sub.sigPub) {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	// A non-pain.001 order (e.g. test fixtures exercising chunking only) has
	// no business content to validate, so it is accepted as-is: the ledger's
	// job is payment-content validation, not wire-format enforcement.
	if req, parseErr := iso20022.ParsePain001(bytes.NewReader(orderData)); parseErr == nil {
		if code := h.ledger.ValidatePayment(key.PartnerID, req.CreditorBIC, req.Currency); code != "" {
			return ebicsResponseEnvelope(returncode.OK, code, nil), nil
		}
	}

	h.ledger.RecordPayment(bank.ReceivedPayment{
		PartnerID:  key.PartnerID,
		UserID:     key.UserID,
		Document:   orderData,
		ReceivedAt: h.clock.Now(),
	})

	return ebicsResponseEnvelope("000000", "000000", nil), nil
}
