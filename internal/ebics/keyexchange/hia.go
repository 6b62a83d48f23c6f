package keyexchange

import (
	"bytes"
	"context"
	"crypto/rsa"

	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
)

// HIA uploads the subscriber's authentication and encryption public keys
// as an unsigned ebicsUnsecuredRequest, order type HIA. The caller sets
// hia_state := sent on a nil return.
func HIA(ctx context.Context, client *transport.Client, sub Subscriber, authPub, encPub *rsa.PublicKey) error {
	orderData := hiaRequestOrderData(sub, authPub, encPub)

	body, err := unsecuredRequest(sub, "HIA", orderData)
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
