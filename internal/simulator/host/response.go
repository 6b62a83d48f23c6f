package host

import (
	"crypto/rsa"
	"encoding/base64"
	"strconv"

	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// responseOptions carries the fields that vary across ebicsResponse
// messages: the init-phase TransactionID/NumSegments pair, and an optional
// DataTransfer payload for key-download and document-download responses.
type responseOptions struct {
	transactionID string
	numSegments   int
	dataTransfer  *xmlenc.Node
}

// ebicsResponseEnvelope builds a minimal but wire-correct ebicsResponse:
// technicalCode in header/mutable/ReturnCode, businessCode and any data
// payload in body, following EBICS's separate technical/business
// return-code pair.
func ebicsResponseEnvelope(technicalCode, businessCode string, opts *responseOptions) *xmlenc.Node {
	var static []*xmlenc.Node
	if opts != nil {
		if opts.transactionID != "" {
			static = append(static, xmlenc.NewText("TransactionID", opts.transactionID))
		}
		if opts.numSegments > 0 {
			static = append(static, xmlenc.NewText("NumSegments", strconv.Itoa(opts.numSegments)))
		}
	}

	var bodyChildren []*xmlenc.Node
	if opts != nil && opts.dataTransfer != nil {
		bodyChildren = append(bodyChildren, opts.dataTransfer)
	}
	bodyChildren = append(bodyChildren, xmlenc.NewText("ReturnCode", businessCode), xmlenc.NewText("ReportText", reportText(businessCode)))

	return xmlenc.NewElement("ebicsResponse",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static", static...),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("ReturnCode", technicalCode),
				xmlenc.NewText("ReportText", reportText(technicalCode)),
			),
		),
		xmlenc.NewElement("body", bodyChildren...),
	)
}

// keyManagementResponse builds the ebicsKeyManagementResponse shape INI,
// HIA, and their rejections use: the same two-return-code structure as
// ebicsResponse, under a different root name and no TransactionID.
func keyManagementResponse(technicalCode, businessCode string) *xmlenc.Node {
	return xmlenc.NewElement("ebicsKeyManagementResponse",
		xmlenc.NewElement("header",
			xmlenc.NewElement("static"),
			xmlenc.NewElement("mutable",
				xmlenc.NewText("ReturnCode", technicalCode),
				xmlenc.NewText("ReportText", reportText(technicalCode)),
			),
		),
		xmlenc.NewElement("body",
			xmlenc.NewText("ReturnCode", businessCode),
			xmlenc.NewText("ReportText", reportText(businessCode)),
		),
	)
}

func reportText(code string) string {
	switch code {
	case "000000":
		return "EBICS_OK"
	case "090003":
		return "EBICS_AUTHORISATION_ORDER_IDENTIFIER_FAILED"
	case "090004":
		return "EBICS_PROCESSING_ERROR"
	case "090005":
		return "EBICS_NO_DOWNLOAD_DATA_AVAILABLE"
	case "091002":
		return "EBICS_INVALID_REQUEST_CONTENT"
	default:
		return "EBICS_PROCESSING_ERROR"
	}
}

// encryptAndChunk compresses document, E002-encrypts it under
// recipientPub, and splits the base64 ciphertext into segmentSize chunks.
// It returns the wrapped session key alongside the chunks so the caller
// can build both the init response's DataEncryptionInfo and the transfer
// segments that follow it.
func encryptAndChunk(document []byte, recipientPub *rsa.PublicKey) (wrappedKey []byte, segments []string, err error) {
	compressed, err := deflate(document)
	if err != nil {
		return nil, nil, errors.Crypto(err, "host: compress order data")
	}

	env, err := ebicscrypto.EncryptE002(compressed, recipientPub)
	if err != nil {
		return nil, nil, err
	}

	ciphertextB64 := base64.StdEncoding.EncodeToString(env.Ciphertext)
	return env.WrappedKey, chunk(ciphertextB64, segmentSize), nil
}

// downloadDataTransferNode renders the body/DataTransfer element an init-
// phase download response carries: the wrapped session key and the first
// ciphertext segment.
func downloadDataTransferNode(wrappedKey []byte, firstSegment string) *xmlenc.Node {
	return xmlenc.NewElement("DataTransfer",
		xmlenc.NewElement("DataEncryptionInfo",
			xmlenc.NewText("TransactionKey", base64.StdEncoding.EncodeToString(wrappedKey)),
		),
		xmlenc.NewText("OrderData", firstSegment),
	)
}
