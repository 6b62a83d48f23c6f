package host

import (
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// handleDownloadInit serves the first segment of the next queued
// statement (C52/C53) or the static directory document (HTD) for
// partnerID, or EBICS_NO_DOWNLOAD_DATA_AVAILABLE when nothing is queued.
func (h *Host) handleDownloadInit(root *xmlenc.Node, key subscriberKey, sub *subscriber, orderType string) (*xmlenc.Node, error) {
	if err := h.verifyRequestSignature(root, sub); err != nil {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	document, ok := h.ledger.NextDocument(key.PartnerID, orderType)
	if !ok {
		return ebicsResponseEnvelope("000000", "090005", nil), nil
	}

	wrappedKey, segments, err := encryptAndChunk(document, sub.encPub)
	if err != nil {
		return nil, err
	}

	txnID := h.newTransactionID()
	h.registerTransaction(txnID, &transaction{
		kind:              kindDownload,
		partner:           key,
		downloadOrderType: orderType,
		downloadSegments:  segments,
	})

	dataTransfer := downloadDataTransferNode(wrappedKey, segments[0])
	return ebicsResponseEnvelope("000000", "000000", &responseOptions{
		transactionID: txnID,
		numSegments:   len(segments),
		dataTransfer:  dataTransfer,
	}), nil
}

// handleDownloadTransfer serves segment segNum (1-indexed) of an
// in-progress download transaction.
func (h *Host) handleDownloadTransfer(root *xmlenc.Node, key subscriberKey, sub *subscriber, txnID string, segNum int) (*xmlenc.Node, error) {
	if err := h.verifyRequestSignature(root, sub); err != nil {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	txn, err := h.transactionFor(txnID, key)
	if err != nil {
		return nil, err
	}
	if txn.kind != kindDownload {
		return nil, errors.State("host: transaction %q is not a download", txnID)
	}
	if segNum < 1 || segNum > len(txn.downloadSegments) {
		return nil, errors.State("host: segment %d out of range for transaction %q", segNum, txnID)
	}

	dataTransfer := xmlenc.NewElement("DataTransfer",
		xmlenc.NewText("OrderData", txn.downloadSegments[segNum-1]),
	)
	return ebicsResponseEnvelope("000000", "000000", &responseOptions{dataTransfer: dataTransfer}), nil
}

// handleDownloadReceipt closes the transaction once the client confirms
// receipt, the final leg of the initialisation/transfer/receipt download
// cycle.
func (h *Host) handleDownloadReceipt(root *xmlenc.Node, key subscriberKey, sub *subscriber, txnID string) (*xmlenc.Node, error) {
	if err := h.verifyRequestSignature(root, sub); err != nil {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	if _, err := h.transactionFor(txnID, key); err != nil {
		return nil, err
	}
	h.closeTransaction(txnID)

	return ebicsResponseEnvelope("000000", "000000", nil), nil
}
