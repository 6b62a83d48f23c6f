package keyexchange

import (
	"bytes"
	"compress/zlib"
	"crypto/rsa"
	"encoding/base64"
	"io"

	"github.com/paynet/ebics-gateway/internal/ebics/envelope"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

func signaturePubKeyOrderData(sub Subscriber, sigPub *rsa.PublicKey) []byte {
	doc := xmlenc.NewElement("SignaturePubKeyOrderData",
		xmlenc.NewElement("SignaturePubKeyInfo",
			envelope.PubKeyValueNode(sigPub),
			xmlenc.NewText("SignatureVersion", "A006"),
		),
		xmlenc.NewText("PartnerID", sub.PartnerID),
		xmlenc.NewText("UserID", sub.UserID),
	)
	return xmlenc.Serialize(doc)
}

func hiaRequestOrderData(sub Subscriber, authPub, encPub *rsa.PublicKey) []byte {
	doc := xmlenc.NewElement("HIARequestOrderData",
		xmlenc.NewElement("AuthenticationPubKeyInfo",
			envelope.PubKeyValueNode(authPub),
			xmlenc.NewText("AuthenticationVersion", "X002"),
		),
		xmlenc.NewElement("EncryptionPubKeyInfo",
			envelope.PubKeyValueNode(encPub),
			xmlenc.NewText("EncryptionVersion", "E002"),
		),
		xmlenc.NewText("PartnerID", sub.PartnerID),
		xmlenc.NewText("UserID", sub.UserID),
	)
	return xmlenc.Serialize(doc)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Parse(err, "keyexchange: invalid zlib stream")
	}
	defer r.Close()
	return io.ReadAll(r)
}

// unsecuredRequest builds an ebicsUnsecuredRequest envelope carrying
// base64(zlib(orderData)) for the given order type.
func unsecuredRequest(sub Subscriber, orderType string, orderData []byte) ([]byte, error) {
	compressed, err := deflate(orderData)
	if err != nil {
		return nil, errors.Crypto(err, "keyexchange: compress order data")
	}

	doc := xmlenc.NewElement("ebicsUnsecuredRequest",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static",
				xmlenc.NewText("HostID", sub.HostID),
				xmlenc.NewText("PartnerID", sub.PartnerID),
				xmlenc.NewText("UserID", sub.UserID),
				xmlenc.NewElement("OrderDetails",
					xmlenc.NewText("OrderType", orderType),
					xmlenc.NewText("OrderAttribute", "DZNNN"),
				),
				xmlenc.NewText("SecurityMedium", "0000"),
			),
			xmlenc.NewElement("mutable"),
		),
		xmlenc.NewElement("body",
			xmlenc.NewElement("DataTransfer",
				xmlenc.NewText("OrderData", base64.StdEncoding.EncodeToString(compressed)),
			),
		),
	)

	return xmlenc.Serialize(doc), nil
}

// checkKeyManagementResponse validates the technical and business return
// codes of an ebicsKeyManagementResponse, both of which must equal
// EBICS_OK for the exchange to be considered accepted.
func checkKeyManagementResponse(root *xmlenc.Node) error {
	if err := xmlenc.RequireRoot(root, "ebicsKeyManagementResponse"); err != nil {
		return errors.Parse(err, "keyexchange: unexpected root element")
	}

	technicalCode, businessCode, err := envelope.TechnicalAndBusinessReturnCode(root)
	if err != nil {
		return err
	}
	if technicalCode != "000000" || businessCode != "000000" {
		return errors.Protocol(technicalCode, businessCode, "keyexchange: bank rejected request")
	}
	return nil
}
