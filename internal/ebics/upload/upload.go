// Package upload implements the EBICS upload transaction state machine
// (initialisation → transfer) for the CCT order type carrying a pain.001
// credit-transfer initiation.
package upload

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/paynet/ebics-gateway/internal/ebics/envelope"
	"github.com/paynet/ebics-gateway/internal/ebics/returncode"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

var tracer = otel.Tracer("ebics-gateway/upload")

// segmentSize is the chunk size for transfer-phase segments: 1MB chunks
// of the base64 text of the already-encrypted ciphertext.
const segmentSize = 1 << 20

// Subscriber identifies who is uploading and the keys the exchange signs,
// and the bank's encryption key the session key is wrapped to.
type Subscriber struct {
	HostID     string
	PartnerID  string
	UserID     string
	SigPriv    *rsa.PrivateKey
	AuthPriv   *rsa.PrivateKey
	BankEncPub *rsa.PublicKey
}

// Submit uploads orderData (a serialized pain.001 document) as a CCT order
// and returns once the bank has acknowledged the final segment.
func Submit(ctx context.Context, client *transport.Client, sub Subscriber, orderData []byte, now time.Time) error {
	ctx, span := tracer.Start(ctx, "upload.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("ebics.host_id", sub.HostID),
		attribute.String("ebics.partner_id", sub.PartnerID),
		attribute.Int("ebics.order_data_bytes", len(orderData)),
	)

	orderSignature, err := ebicscrypto.SignOrderDigestA006(ebicscrypto.DigestOrderA006(orderData), sub.SigPriv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing order digest failed")
		return err
	}

	compressed, err := deflate(orderData)
	if err != nil {
		err = errors.Crypto(err, "upload: compress order data")
		span.RecordError(err)
		span.SetStatus(codes.Error, "compression failed")
		return err
	}

	env, err := ebicscrypto.EncryptE002(compressed, sub.BankEncPub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encryption failed")
		return err
	}

	ciphertextB64 := base64.StdEncoding.EncodeToString(env.Ciphertext)
	segments := chunk(ciphertextB64, segmentSize)
	span.SetAttributes(attribute.Int("ebics.num_segments", len(segments)))

	transactionID, err := sendInit(ctx, client, sub, env, orderSignature, len(segments), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialisation failed")
		return err
	}

	for i, seg := range segments {
		segNum := i + 1
		last := segNum == len(segments)
		if err := sendTransfer(ctx, client, sub, transactionID, segNum, last, seg, now); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transfer segment failed")
			return err
		}
	}

	return nil
}

func sendInit(ctx context.Context, client *transport.Client, sub Subscriber, env ebicscrypto.Envelope, orderSignature []byte, numSegments int, now time.Time) (string, error) {
	nonce, err := envelope.NonceHex()
	if err != nil {
		return "", err
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
					xmlenc.NewText("OrderType", "CCT"),
					xmlenc.NewText("OrderAttribute", "OZHNN"),
				),
				xmlenc.NewText("SecurityMedium", "0000"),
				xmlenc.NewText("NumSegments", formatInt(numSegments)),
			).WithAttr("authenticate", "true"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("TransactionPhase", "Initialisation"),
			).WithAttr("authenticate", "true"),
		),
		xmlenc.NewElement("body",
			xmlenc.NewElement("DataTransfer",
				xmlenc.NewElement("DataEncryptionInfo",
					xmlenc.NewText("TransactionKey", base64.StdEncoding.EncodeToString(env.WrappedKey)),
				),
				xmlenc.NewElement("SignatureData",
					xmlenc.NewText("OrderSignatureValue", base64.StdEncoding.EncodeToString(orderSignature)),
					xmlenc.NewText("SignatureVersion", "A006"),
				),
			),
		),
	)

	sig, err := xmlenc.SignWithKey(request, sub.AuthPriv, ebicscrypto.SignX002)
	if err != nil {
		return "", err
	}
	request.Children = append(request.Children, envelope.AuthSignatureNode(sig))

	respBody, err := client.Post(ctx, xmlenc.Serialize(request))
	if err != nil {
		return "", err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return "", err
	}
	if err := xmlenc.RequireRoot(root, "ebicsResponse"); err != nil {
		return "", errors.Parse(err, "upload: unexpected root element")
	}

	technicalCode, businessCode, err := envelope.TechnicalAndBusinessReturnCode(root)
	if err != nil {
		return "", err
	}
	if !returncode.IsOK(technicalCode) || !returncode.IsOK(businessCode) {
		return "", errors.Protocol(technicalCode, businessCode, "upload: bank rejected CCT initialisation")
	}

	header, err := xmlenc.RequireUniqueChild(root, "header")
	if err != nil {
		return "", err
	}
	staticNode, err := xmlenc.RequireUniqueChild(header, "static")
	if err != nil {
		return "", err
	}
	transactionIDNode, err := xmlenc.RequireUniqueChild(staticNode, "TransactionID")
	if err != nil {
		return "", err
	}

	return transactionIDNode.TrimmedText(), nil
}

func sendTransfer(ctx context.Context, client *transport.Client, sub Subscriber, transactionID string, segNum int, last bool, segmentB64 string, now time.Time) error {
	request := xmlenc.NewElement("ebicsRequest",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static",
				xmlenc.NewText("HostID", sub.HostID),
				xmlenc.NewText("TransactionID", transactionID),
			).WithAttr("authenticate", "true"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("TransactionPhase", "Transfer"),
				xmlenc.NewText("SegmentNumber", formatInt(segNum)),
				xmlenc.NewText("LastSegment", formatBool(last)),
			).WithAttr("authenticate", "true"),
		),
		xmlenc.NewElement("body",
			xmlenc.NewElement("DataTransfer",
				xmlenc.NewText("OrderData", segmentB64),
			),
		),
	)

	sig, err := xmlenc.SignWithKey(request, sub.AuthPriv, ebicscrypto.SignX002)
	if err != nil {
		return err
	}
	request.Children = append(request.Children, envelope.AuthSignatureNode(sig))

	respBody, err := client.Post(ctx, xmlenc.Serialize(request))
	if err != nil {
		return err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return err
	}
	technicalCode, businessCode, err := envelope.TechnicalAndBusinessReturnCode(root)
	if err != nil {
		return err
	}
	if !returncode.IsOK(technicalCode) || !returncode.IsOK(businessCode) {
		return errors.Protocol(technicalCode, businessCode, "upload: bank rejected transfer segment %d", segNum)
	}
	return nil
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

func chunk(s string, size int) []string {
	if len(s) == 0 {
		return []string{""}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	out = append(out, s)
	return out
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
