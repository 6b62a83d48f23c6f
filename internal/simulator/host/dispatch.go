package host

import (
	"strconv"

	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// handleRequest dispatches a signed ebicsRequest by its TransactionPhase.
// Initialisation requests carry PartnerID/UserID/OrderType and start a new
// transaction; Transfer and Receipt requests carry only a TransactionID,
// so the subscriber they belong to is recovered from the transaction the
// Initialisation phase registered.
func (h *Host) handleRequest(root *xmlenc.Node) (*xmlenc.Node, error) {
	header, err := xmlenc.RequireUniqueChild(root, "header")
	if err != nil {
		return nil, err
	}
	static, err := xmlenc.RequireUniqueChild(header, "static")
	if err != nil {
		return nil, err
	}
	mutable, err := xmlenc.RequireUniqueChild(header, "mutable")
	if err != nil {
		return nil, err
	}
	phaseNode, err := xmlenc.RequireUniqueChild(mutable, "TransactionPhase")
	if err != nil {
		return nil, err
	}

	switch phaseNode.TrimmedText() {
	case "Initialisation":
		return h.handleInit(root, static)
	case "Transfer":
		return h.handleTransfer(root, static, mutable)
	case "Receipt":
		return h.handleReceipt(root, static)
	default:
		return nil, errors.Parse(nil, "host: unknown transaction phase %q", phaseNode.TrimmedText())
	}
}

func (h *Host) handleInit(root, static *xmlenc.Node) (*xmlenc.Node, error) {
	partnerNode, err := xmlenc.RequireUniqueChild(static, "PartnerID")
	if err != nil {
		return nil, err
	}
	userNode, err := xmlenc.RequireUniqueChild(static, "UserID")
	if err != nil {
		return nil, err
	}
	key := subscriberKey{PartnerID: partnerNode.TrimmedText(), UserID: userNode.TrimmedText()}

	sub := h.subscriberFor(key)
	if !sub.ready() {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	orderDetails, err := xmlenc.RequireUniqueChild(static, "OrderDetails")
	if err != nil {
		return nil, err
	}
	orderTypeNode, err := xmlenc.RequireUniqueChild(orderDetails, "OrderType")
	if err != nil {
		return nil, err
	}

	switch orderType := orderTypeNode.TrimmedText(); orderType {
	case "HPB":
		return h.handleHPB(root, sub)
	case "CCT":
		numSegNode, err := xmlenc.RequireUniqueChild(static, "NumSegments")
		if err != nil {
			return nil, err
		}
		numSegments, err := strconv.Atoi(numSegNode.TrimmedText())
		if err != nil {
			return nil, errors.Parse(err, "host: invalid NumSegments")
		}
		return h.handleUploadInit(root, key, sub, numSegments)
	case "C52", "C53", "HTD":
		return h.handleDownloadInit(root, key, sub, orderType)
	default:
		return nil, errors.Parse(nil, "host: unsupported order type %q", orderType)
	}
}

func (h *Host) handleTransfer(root, static, mutable *xmlenc.Node) (*xmlenc.Node, error) {
	txnIDNode, err := xmlenc.RequireUniqueChild(static, "TransactionID")
	if err != nil {
		return nil, err
	}
	txnID := txnIDNode.TrimmedText()

	txn, err := h.transactionByID(txnID)
	if err != nil {
		return nil, err
	}
	sub := h.subscriberFor(txn.partner)
	if !sub.ready() {
		return nil, errors.State("host: transaction %q belongs to an unregistered subscriber", txnID)
	}

	switch txn.kind {
	case kindUpload:
		lastNode, err := xmlenc.RequireUniqueChild(mutable, "LastSegment")
		if err != nil {
			return nil, err
		}
		return h.handleUploadTransfer(root, txn.partner, sub, txnID, lastNode.TrimmedText() == "true")
	case kindDownload:
		segNumNode, err := xmlenc.RequireUniqueChild(mutable, "SegmentNumber")
		if err != nil {
			return nil, err
		}
		segNum, err := strconv.Atoi(segNumNode.TrimmedText())
		if err != nil {
			return nil, errors.Parse(err, "host: invalid SegmentNumber")
		}
		return h.handleDownloadTransfer(root, txn.partner, sub, txnID, segNum)
	default:
		return nil, errors.State("host: transaction %q has an unknown kind", txnID)
	}
}

func (h *Host) handleReceipt(root, static *xmlenc.Node) (*xmlenc.Node, error) {
	txnIDNode, err := xmlenc.RequireUniqueChild(static, "TransactionID")
	if err != nil {
		return nil, err
	}
	txnID := txnIDNode.TrimmedText()

	txn, err := h.transactionByID(txnID)
	if err != nil {
		return nil, err
	}
	sub := h.subscriberFor(txn.partner)
	return h.handleDownloadReceipt(root, txn.partner, sub, txnID)
}

// transactionByID looks up a transaction without requiring the caller to
// already know its owning subscriber — Transfer and Receipt requests
// carry only a TransactionID, so ownership flows from the transaction
// rather than into it.
func (h *Host) transactionByID(id string) (*transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	txn, ok := h.txns[id]
	if !ok {
		return nil, errors.State("host: unknown transaction %q", id)
	}
	return txn, nil
}
