// Package envelope holds the EBICS wire-format helpers shared by the
// key-exchange, download, and upload state machines: nonce generation,
// AuthSignature wire encoding, and RSA public-key (de)serialization in the
// PubKeyValue/RSAKeyValue shape EBICS uses.
package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"math/big"

	"github.com/paynet/ebics-gateway/internal/ebics/noncecache"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// usedNonces guards against a single process reusing a nonce it already
// sent, across every transaction it initiates for the lifetime of the
// process.
var usedNonces = noncecache.New()

// NonceHex returns a fresh 16-byte random nonce, hex-encoded, for use in an
// EBICS request's header/static/Nonce element. The returned nonce is
// recorded so a later collision (vanishingly unlikely for 128 bits of
// entropy, but checked anyway) is rejected rather than sent twice.
func NonceHex() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Crypto(err, "generate nonce")
	}
	nonce := hex.EncodeToString(buf)
	if err := usedNonces.Record(nonce); err != nil {
		return "", err
	}
	return nonce, nil
}

// AuthSignatureNode renders sig as the wire-format AuthSignature element.
// Only SignatureValue travels on the wire; the verifying side recomputes
// SignedInfo itself from the authenticate="true" elements it receives, so
// there is nothing else to encode.
func AuthSignatureNode(sig xmlenc.AuthSignature) *xmlenc.Node {
	return xmlenc.NewElement("AuthSignature",
		xmlenc.NewText("SignatureValue", base64.StdEncoding.EncodeToString(sig.SignatureValue)),
	)
}

// ExtractSignatureValue reads the base64 SignatureValue out of a received
// document's AuthSignature element.
func ExtractSignatureValue(root *xmlenc.Node) ([]byte, error) {
	authSig, err := xmlenc.RequireUniqueChild(root, "AuthSignature")
	if err != nil {
		return nil, err
	}
	sigValueNode, err := xmlenc.RequireUniqueChild(authSig, "SignatureValue")
	if err != nil {
		return nil, err
	}
	sig, err := base64.StdEncoding.DecodeString(sigValueNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "envelope: invalid signature value encoding")
	}
	return sig, nil
}

// PubKeyValueNode renders pub in the PubKeyValue/RSAKeyValue shape EBICS
// uses for INI/HIA order data and HPB responses.
func PubKeyValueNode(pub *rsa.PublicKey) *xmlenc.Node {
	modulus, exponent := ModulusExponent(pub)
	return xmlenc.NewElement("PubKeyValue",
		xmlenc.NewElement("RSAKeyValue",
			xmlenc.NewText("Modulus", base64.StdEncoding.EncodeToString(modulus)),
			xmlenc.NewText("Exponent", base64.StdEncoding.EncodeToString(exponent)),
		),
	)
}

// ParsePubKeyValueInfo reads a PubKeyValue child out of infoNode (e.g.
// AuthenticationPubKeyInfo, EncryptionPubKeyInfo, SignaturePubKeyInfo).
func ParsePubKeyValueInfo(infoNode *xmlenc.Node) (*rsa.PublicKey, error) {
	pubKeyValue, err := xmlenc.RequireUniqueChild(infoNode, "PubKeyValue")
	if err != nil {
		return nil, err
	}
	rsaKeyValue, err := xmlenc.RequireUniqueChild(pubKeyValue, "RSAKeyValue")
	if err != nil {
		return nil, err
	}
	modulusNode, err := xmlenc.RequireUniqueChild(rsaKeyValue, "Modulus")
	if err != nil {
		return nil, err
	}
	exponentNode, err := xmlenc.RequireUniqueChild(rsaKeyValue, "Exponent")
	if err != nil {
		return nil, err
	}

	modulus, err := base64.StdEncoding.DecodeString(modulusNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "envelope: invalid modulus encoding")
	}
	exponent, err := base64.StdEncoding.DecodeString(exponentNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "envelope: invalid exponent encoding")
	}

	return RebuildPublicKey(modulus, exponent), nil
}

// ModulusExponent renders pub's modulus and exponent as minimal big-endian
// byte strings, for PubKeyValue encoding.
func ModulusExponent(pub *rsa.PublicKey) (modulus, exponent []byte) {
	return pub.N.Bytes(), big.NewInt(int64(pub.E)).Bytes()
}

// RebuildPublicKey inverts ModulusExponent.
func RebuildPublicKey(modulus, exponent []byte) *rsa.PublicKey {
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(new(big.Int).SetBytes(exponent).Int64()),
	}
}

// TechnicalAndBusinessReturnCode reads the technical code from
// header/mutable/ReturnCode and the business code from body/ReturnCode of
// an ebicsResponse or ebicsKeyManagementResponse. It does not check their
// values; callers decide what a non-EBICS_OK code means. An error is
// returned only when one of the elements is missing.
func TechnicalAndBusinessReturnCode(root *xmlenc.Node) (technical, business string, err error) {
	header, err := xmlenc.RequireUniqueChild(root, "header")
	if err != nil {
		return "", "", err
	}
	mutable, err := xmlenc.RequireUniqueChild(header, "mutable")
	if err != nil {
		return "", "", err
	}
	technicalNode, err := xmlenc.RequireUniqueChild(mutable, "ReturnCode")
	if err != nil {
		return "", "", err
	}

	body, err := xmlenc.RequireUniqueChild(root, "body")
	if err != nil {
		return "", "", err
	}
	businessNode, err := xmlenc.RequireUniqueChild(body, "ReturnCode")
	if err != nil {
		return "", "", err
	}

	return technicalNode.TrimmedText(), businessNode.TrimmedText(), nil
}
