package host

import (
	"bytes"
	"encoding/base64"

	"github.com/paynet/ebics-gateway/internal/ebics/envelope"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// handleHEV answers the unsigned version probe with the single (H004,
// 2.5) pair this simulator speaks.
func (h *Host) handleHEV(root *xmlenc.Node) (*xmlenc.Node, error) {
	return xmlenc.NewElement("ebicsHEVResponse",
		xmlenc.NewElement("SystemReturnCode",
			xmlenc.NewText("ReturnCode", "000000"),
			xmlenc.NewText("ReportText", "EBICS_OK"),
		),
		xmlenc.NewElement("VersionNumber", xmlenc.NewText("VersionNumber", "2.5")).WithAttr("ProtocolVersion", "H004"),
	), nil
}

// handleUnsecured processes INI and HIA, the single-shot unsigned public-
// key uploads, and registers the uploaded keys against the (PartnerID,
// UserID) pair in the request.
func (h *Host) handleUnsecured(root *xmlenc.Node) (*xmlenc.Node, error) {
	header, err := xmlenc.RequireUniqueChild(root, "header")
	if err != nil {
		return nil, err
	}
	static, err := xmlenc.RequireUniqueChild(header, "static")
	if err != nil {
		return nil, err
	}
	partnerNode, err := xmlenc.RequireUniqueChild(static, "PartnerID")
	if err != nil {
		return nil, err
	}
	userNode, err := xmlenc.RequireUniqueChild(static, "UserID")
	if err != nil {
		return nil, err
	}
	orderDetails, err := xmlenc.RequireUniqueChild(static, "OrderDetails")
	if err != nil {
		return nil, err
	}
	orderTypeNode, err := xmlenc.RequireUniqueChild(orderDetails, "OrderType")
	if err != nil {
		return nil, err
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
	compressed, err := base64.StdEncoding.DecodeString(orderDataNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "host: invalid order data encoding")
	}
	orderData, err := inflate(compressed)
	if err != nil {
		return nil, err
	}

	key := subscriberKey{PartnerID: partnerNode.TrimmedText(), UserID: userNode.TrimmedText()}

	switch orderTypeNode.TrimmedText() {
	case "INI":
		err = h.registerSignatureKey(key, orderData)
	case "HIA":
		err = h.registerAuthEncKeys(key, orderData)
	default:
		err = errors.Parse(nil, "host: unexpected unsecured order type %q", orderTypeNode.TrimmedText())
	}
	if err != nil {
		return keyManagementResponse("091002", "091002"), nil
	}

	return keyManagementResponse("000000", "000000"), nil
}

func (h *Host) registerSignatureKey(key subscriberKey, orderData []byte) error {
	root, err := xmlenc.Parse(bytes.NewReader(orderData))
	if err != nil {
		return errors.Parse(err, "host: malformed SignaturePubKeyOrderData")
	}
	info, err := xmlenc.RequireUniqueChild(root, "SignaturePubKeyInfo")
	if err != nil {
		return err
	}
	pub, err := envelope.ParsePubKeyValueInfo(info)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sub := h.subscribers[key]
	if sub == nil {
		sub = &subscriber{}
		h.subscribers[key] = sub
	}
	sub.sigPub = pub
	return nil
}

func (h *Host) registerAuthEncKeys(key subscriberKey, orderData []byte) error {
	root, err := xmlenc.Parse(bytes.NewReader(orderData))
	if err != nil {
		return errors.Parse(err, "host: malformed HIARequestOrderData")
	}
	authInfo, err := xmlenc.RequireUniqueChild(root, "AuthenticationPubKeyInfo")
	if err != nil {
		return err
	}
	authPub, err := envelope.ParsePubKeyValueInfo(authInfo)
	if err != nil {
		return err
	}
	encInfo, err := xmlenc.RequireUniqueChild(root, "EncryptionPubKeyInfo")
	if err != nil {
		return err
	}
	encPub, err := envelope.ParsePubKeyValueInfo(encInfo)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sub := h.subscribers[key]
	if sub == nil {
		sub = &subscriber{}
		h.subscribers[key] = sub
	}
	sub.authPub = authPub
	sub.encPub = encPub
	return nil
}

// handleHPB verifies the signed download request and returns the host's
// own authentication and encryption public keys, E002-encrypted to the
// subscriber's registered encryption key.
func (h *Host) handleHPB(root *xmlenc.Node, sub *subscriber) (*xmlenc.Node, error) {
	if err := h.verifyRequestSignature(root, sub); err != nil {
		return ebicsResponseEnvelope("091002", "091002", nil), nil
	}

	orderData := xmlenc.NewElement("HPBRequestOrderData",
		xmlenc.NewElement("AuthenticationPubKeyInfo",
			envelope.PubKeyValueNode(&h.authPriv.PublicKey),
			xmlenc.NewText("AuthenticationVersion", "X002"),
		),
		xmlenc.NewElement("EncryptionPubKeyInfo",
			envelope.PubKeyValueNode(&h.encPriv.PublicKey),
			xmlenc.NewText("EncryptionVersion", "E002"),
		),
	)

	wrappedKey, segments, err := encryptAndChunk(xmlenc.Serialize(orderData), sub.encPub)
	if err != nil {
		return nil, err
	}

	dataTransfer := downloadDataTransferNode(wrappedKey, segments[0])
	return ebicsResponseEnvelope("000000", "000000", &responseOptions{dataTransfer: dataTransfer}), nil
}

// verifyRequestSignature checks a signed ebicsRequest's AuthSignature
// against sub's registered X002 authentication key.
func (h *Host) verifyRequestSignature(root *xmlenc.Node, sub *subscriber) error {
	sigBytes, err := envelope.ExtractSignatureValue(root)
	if err != nil {
		return err
	}
	ok := xmlenc.Verify(root, sigBytes, func(sig, data []byte) bool {
		return ebicscrypto.VerifyX002(sig, data, sub.authPub)
	})
	if !ok {
		return errors.Protocol("091002", "091002", "host: invalid request signature")
	}
	return nil
}
