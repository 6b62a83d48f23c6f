// Package download implements the EBICS download transaction state
// machine (initialisation → transfer → receipt) used for C52, C53, and
// HTD order types.
package download

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
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

var tracer = otel.Tracer("ebics-gateway/download")

// DateRange restricts a request to [Start, End]. Fetch sends a non-nil
// DateRange as given, whatever the order type; a nil *DateRange sends no
// range at all (the HTD callers pass nil).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Subscriber identifies who is downloading and the keys the exchange
// signs/decrypts with.
type Subscriber struct {
	HostID    string
	PartnerID string
	UserID    string
	AuthPriv  *rsa.PrivateKey
	EncPriv   *rsa.PrivateKey
}

// Result is the outcome of one download transaction.
type Result struct {
	// Empty is true when the bank reported EBICS_NO_DOWNLOAD_DATA_AVAILABLE;
	// Document is nil in that case and the caller should treat this as a
	// successful no-op.
	Empty    bool
	Document []byte
}

// Fetch runs a full initialisation→transfer→receipt cycle for orderType
// (C52, C53, or HTD) and returns the decompressed payload exactly as the
// bank sent it. It does not unpack archives: a C5x payload that arrives
// as a zip archive is returned as that archive, while ledger ingestion
// parses every C52/C53 payload as a single camt XML document.
func Fetch(ctx context.Context, client *transport.Client, sub Subscriber, orderType string, dateRange *DateRange, now time.Time) (Result, error) {
	ctx, span := tracer.Start(ctx, "download.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("ebics.order_type", orderType),
		attribute.String("ebics.host_id", sub.HostID),
		attribute.String("ebics.partner_id", sub.PartnerID),
	)

	initResp, transactionID, numSegments, wrappedKey, err := sendInit(ctx, client, sub, orderType, dateRange, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialisation failed")
		return Result{}, err
	}
	if initResp.empty {
		span.SetAttributes(attribute.Bool("ebics.empty_download", true))
		return Result{Empty: true}, nil
	}

	segments := [][]byte{initResp.segmentData}
	for segNum := 2; segNum <= numSegments; segNum++ {
		data, err := sendTransfer(ctx, client, sub, transactionID, segNum, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transfer segment failed")
			return Result{}, err
		}
		segments = append(segments, data)
	}
	span.SetAttributes(attribute.Int("ebics.num_segments", numSegments))

	if err := sendReceipt(ctx, client, sub, transactionID, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "receipt failed")
		return Result{}, err
	}

	document, err := assemble(segments, wrappedKey, sub.EncPriv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembling document failed")
		return Result{}, err
	}

	return Result{Document: document}, nil
}

type initResponse struct {
	empty       bool
	segmentData []byte
}

func sendInit(ctx context.Context, client *transport.Client, sub Subscriber, orderType string, dateRange *DateRange, now time.Time) (initResponse, string, int, []byte, error) {
	nonce, err := envelope.NonceHex()
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}

	orderDetails := []*xmlenc.Node{
		xmlenc.NewText("OrderType", orderType),
		xmlenc.NewText("OrderAttribute", "DZHNN"),
	}
	if dateRange != nil {
		orderDetails = append(orderDetails, xmlenc.NewElement("OrderParams",
			xmlenc.NewElement("DateRange",
				xmlenc.NewText("Start", dateRange.Start.UTC().Format("2006-01-02")),
				xmlenc.NewText("End", dateRange.End.UTC().Format("2006-01-02")),
			),
		))
	}

	request := xmlenc.NewElement("ebicsRequest",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static",
				xmlenc.NewText("HostID", sub.HostID),
				xmlenc.NewText("Nonce", nonce),
				xmlenc.NewText("Timestamp", now.UTC().Format(time.RFC3339)),
				xmlenc.NewText("PartnerID", sub.PartnerID),
				xmlenc.NewText("UserID", sub.UserID),
				xmlenc.NewElement("OrderDetails", orderDetails...),
				xmlenc.NewText("SecurityMedium", "0000"),
			).WithAttr("authenticate", "true"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("TransactionPhase", "Initialisation"),
			).WithAttr("authenticate", "true"),
		),
		xmlenc.NewElement("body"),
	)

	sig, err := xmlenc.SignWithKey(request, sub.AuthPriv, ebicscrypto.SignX002)
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	request.Children = append(request.Children, envelope.AuthSignatureNode(sig))

	respBody, err := client.Post(ctx, xmlenc.Serialize(request))
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	if err := xmlenc.RequireRoot(root, "ebicsResponse"); err != nil {
		return initResponse{}, "", 0, nil, errors.Parse(err, "download: unexpected root element")
	}

	technicalCode, businessCode, err := envelope.TechnicalAndBusinessReturnCode(root)
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	if returncode.IsEmptyDownload(businessCode) {
		return initResponse{empty: true}, "", 0, nil, nil
	}
	if !returncode.IsOK(technicalCode) || !returncode.IsOK(businessCode) {
		return initResponse{}, "", 0, nil, errors.Protocol(technicalCode, businessCode, "download: bank rejected %s initialisation", orderType)
	}

	staticResp, err := xmlenc.RequireUniqueChild(root, "header")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	staticNode, err := xmlenc.RequireUniqueChild(staticResp, "static")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	transactionIDNode, err := xmlenc.RequireUniqueChild(staticNode, "TransactionID")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	numSegmentsNode, err := xmlenc.RequireUniqueChild(staticNode, "NumSegments")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	numSegments, err := parseInt(numSegmentsNode.TrimmedText())
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}

	body, err := xmlenc.RequireUniqueChild(root, "body")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	dataTransfer, err := xmlenc.RequireUniqueChild(body, "DataTransfer")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	encInfo, err := xmlenc.RequireUniqueChild(dataTransfer, "DataEncryptionInfo")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	transactionKeyNode, err := xmlenc.RequireUniqueChild(encInfo, "TransactionKey")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(transactionKeyNode.TrimmedText())
	if err != nil {
		return initResponse{}, "", 0, nil, errors.Parse(err, "download: invalid transaction key encoding")
	}

	orderDataNode, err := xmlenc.RequireUniqueChild(dataTransfer, "OrderData")
	if err != nil {
		return initResponse{}, "", 0, nil, err
	}

	return initResponse{segmentData: []byte(orderDataNode.TrimmedText())}, transactionIDNode.TrimmedText(), numSegments, wrappedKey, nil
}

func sendTransfer(ctx context.Context, client *transport.Client, sub Subscriber, transactionID string, segNum int, now time.Time) ([]byte, error) {
	request := xmlenc.NewElement("ebicsRequest",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static",
				xmlenc.NewText("HostID", sub.HostID),
				xmlenc.NewText("TransactionID", transactionID),
			).WithAttr("authenticate", "true"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("TransactionPhase", "Transfer"),
				xmlenc.NewText("SegmentNumber", formatInt(segNum)),
			).WithAttr("authenticate", "true"),
		),
		xmlenc.NewElement("body"),
	)

	sig, err := xmlenc.SignWithKey(request, sub.AuthPriv, ebicscrypto.SignX002)
	if err != nil {
		return nil, err
	}
	request.Children = append(request.Children, envelope.AuthSignatureNode(sig))

	respBody, err := client.Post(ctx, xmlenc.Serialize(request))
	if err != nil {
		return nil, err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return nil, err
	}
	technicalCode, businessCode, err := envelope.TechnicalAndBusinessReturnCode(root)
	if err != nil {
		return nil, err
	}
	if !returncode.IsOK(technicalCode) || !returncode.IsOK(businessCode) {
		return nil, errors.Protocol(technicalCode, businessCode, "download: bank rejected transfer segment %d", segNum)
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

	return []byte(orderDataNode.TrimmedText()), nil
}

func sendReceipt(ctx context.Context, client *transport.Client, sub Subscriber, transactionID string, now time.Time) error {
	request := xmlenc.NewElement("ebicsRequest",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static",
				xmlenc.NewText("HostID", sub.HostID),
				xmlenc.NewText("TransactionID", transactionID),
			).WithAttr("authenticate", "true"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("TransactionPhase", "Receipt"),
				xmlenc.NewText("ReceiptCode", "0"),
			).WithAttr("authenticate", "true"),
		),
		xmlenc.NewElement("body"),
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
		return errors.Protocol(technicalCode, businessCode, "download: bank rejected receipt")
	}
	return nil
}

// assemble concatenates the base64 segment texts in order, decodes the
// whole, E002-decrypts it, and zlib-inflates the result.
func assemble(base64Segments [][]byte, wrappedKey []byte, ownEncPriv *rsa.PrivateKey) ([]byte, error) {
	var joined bytes.Buffer
	for _, s := range base64Segments {
		joined.Write(s)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(joined.String())
	if err != nil {
		return nil, errors.Parse(err, "download: invalid segment encoding")
	}

	plaintext, err := ebicscrypto.DecryptE002(ebicscrypto.Envelope{WrappedKey: wrappedKey, Ciphertext: ciphertext}, ownEncPriv)
	if err != nil {
		return nil, err
	}

	return inflate(plaintext)
}
