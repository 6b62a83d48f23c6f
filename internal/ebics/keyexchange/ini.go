package keyexchange

import (
	"bytes"
	"context"
	"crypto/rsa"

	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
)

// INI uploads the subscriber's signature public key as an unsigned
// ebicsUnsecuredRequest, order type INI. The caller sets ini_state := sent
// on a nil return.
func INI(ctx context.Context, client *transport.Client, sub Subscriber, sigPub *rsa.PublicKey) error {
	orderData := signaturePubKeyOrderData(sub, sigPub)

	body, err := unsecuredRequest(sub, "INI", orderData)
	if err != nil {
		return err
	}

	respBody, err := client.Post(ctx, body)
	if err != nil {
		return err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return err
	}
	return checkKeyManagementResponse(root)
}
