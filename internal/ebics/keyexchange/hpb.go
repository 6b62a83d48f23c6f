package keyexchange

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"time"

	"github.com/paynet/ebics-gateway/internal/ebics/envelope"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// BankKeys are the two public keys learned from a successful HPB exchange.
type BankKeys struct {
	Authentication *rsa.PublicKey
	Encryption     *rsa.PublicKey
}

// HPB downloads the bank's authentication and encryption public keys.
// Called only once both INI and HIA have been accepted by the operator at
// the bank; on success the connection transitions to "ready".
func HPB(ctx context.Context, client *transport.Client, sub Subscriber, authPriv, ownEncPriv *rsa.PrivateKey, now time.Time) (BankKeys, error) {
	nonce, err := envelope.NonceHex()
	if err != nil {
		return BankKeys{}, err
	}

	request := xmlenc.NewElement("ebicsRequest",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static",
				xmlenc.NewText("HostID", sub.HostID),
				xmlenc.NewText("Nonce", nonce),
				xmlenc.NewText("Timestamp", now.UTC().Format(time.RFC3339)),
				xmlenc.NewText("PartnerID", sub.PartnerID),
				xmlenc.NewText("UserID", sub.UserID),
				xmlenc.NewElement("OrderDetails",
					xmlenc.NewText("OrderType", "HPB"),
					xmlenc.NewText("OrderAttribute", "DZHNN"),
				),
				xmlenc.NewText("SecurityMedium", "0000"),
			).WithAttr("authenticate", "true"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("TransactionPhase", "Initialisation"),
			).WithAttr("authenticate", "true"),
		),
		xmlenc.NewElement("body"),
	)

	sig, err := xmlenc.SignWithKey(request, authPriv, ebicscrypto.SignX002)
	if err != nil {
		return BankKeys{}, err
	}
	request.Children = append(request.Children, envelope.AuthSignatureNode(sig))

	respBody, err := client.Post(ctx, xmlenc.Serialize(request))
	if err != nil {
		return BankKeys{}, err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return BankKeys{}, err
	}
	if err := xmlenc.RequireRoot(root, "ebicsResponse"); err != nil {
		return BankKeys{}, errors.Parse(err, "hpb: unexpected root element")
	}

	technicalCode, businessCode, err := envelope.TechnicalAndBusinessReturnCode(root)
	if err != nil {
		return BankKeys{}, err
	}
	if technicalCode != "000000" || businessCode != "000000" {
		return BankKeys{}, errors.Protocol(technicalCode, businessCode, "hpb: bank rejected request")
	}

	body, err := xmlenc.RequireUniqueChild(root, "body")
	if err != nil {
		return BankKeys{}, err
	}
	dataTransfer, err := xmlenc.RequireUniqueChild(body, "DataTransfer")
	if err != nil {
		return BankKeys{}, err
	}

	encInfo, err := xmlenc.RequireUniqueChild(dataTransfer, "DataEncryptionInfo")
	if err != nil {
		return BankKeys{}, err
	}
	transactionKeyNode, err := xmlenc.RequireUniqueChild(encInfo, "TransactionKey")
	if err != nil {
		return BankKeys{}, err
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(transactionKeyNode.TrimmedText())
	if err != nil {
		return BankKeys{}, errors.Parse(err, "hpb: invalid transaction key encoding")
	}

	orderDataNode, err := xmlenc.RequireUniqueChild(dataTransfer, "OrderData")
	if err != nil {
		return BankKeys{}, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(orderDataNode.TrimmedText())
	if err != nil {
		return BankKeys{}, errors.Parse(err, "hpb: invalid order data encoding")
	}

	plaintext, err := ebicscrypto.DecryptE002(ebicscrypto.Envelope{WrappedKey: wrappedKey, Ciphertext: ciphertext}, ownEncPriv)
	if err != nil {
		return BankKeys{}, err
	}

	orderData, err := inflate(plaintext)
	if err != nil {
		return BankKeys{}, err
	}

	return parseHPBOrderData(orderData)
}

func parseHPBOrderData(data []byte) (BankKeys, error) {
	root, err := xmlenc.Parse(bytes.NewReader(data))
	if err != nil {
		return BankKeys{}, errors.Parse(err, "hpb: malformed order data")
	}

	authInfo, err := xmlenc.RequireUniqueChild(root, "AuthenticationPubKeyInfo")
	if err != nil {
		return BankKeys{}, err
	}
	authPub, err := envelope.ParsePubKeyValueInfo(authInfo)
	if err != nil {
		return BankKeys{}, err
	}

	encInfo, err := xmlenc.RequireUniqueChild(root, "EncryptionPubKeyInfo")
	if err != nil {
		return BankKeys{}, err
	}
	encPub, err := envelope.ParsePubKeyValueInfo(encInfo)
	if err != nil {
		return BankKeys{}, err
	}

	return BankKeys{Authentication: authPub, Encryption: encPub}, nil
}
