package ebicscrypto

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// pssOptions fixes the A006 profile: SHA-256, MGF1-SHA256, salt length 32,
// trailer field 1 (the RSASSA-PSS default, which is all crypto/rsa
// supports — EBICS's trailer-1 requirement is satisfied automatically).
var pssOptions = &rsa.PSSOptions{
	SaltLength: 32,
	Hash:       crypto.SHA256,
}

// SignA006 signs data's SHA-256 digest under priv using RSA-PSS per the
// A006 profile.
func SignA006(data []byte, priv *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errors.Crypto(err, "sign_a006")
	}
	return sig, nil
}

// VerifyA006 reports whether sig is a valid A006 signature of data under pub.
func VerifyA006(sig, data []byte, pub *rsa.PublicKey) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions) == nil
}

// SignOrderDigestA006 signs an already-computed SHA-256 digest (as
// produced by DigestOrderA006) under priv using RSA-PSS per the A006
// profile, without re-hashing it. Order-data signing uses this rather
// than SignA006 because the order digest is the fixed CR/LF/SUB-stripped
// SHA-256, not the raw order bytes.
func SignOrderDigestA006(digest [32]byte, priv *rsa.PrivateKey) ([]byte, error) {
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errors.Crypto(err, "sign_a006")
	}
	return sig, nil
}

// VerifyOrderDigestA006 reports whether sig is a valid A006 signature of
// digest (as produced by DigestOrderA006) under pub.
func VerifyOrderDigestA006(sig []byte, digest [32]byte, pub *rsa.PublicKey) bool {
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions) == nil
}

// orderStripBytes are the three control bytes digest_order_a006 strips
// before hashing: CR, LF, SUB. This canonicalization must match byte-for-
// byte or the bank's signature verification of uploaded order data fails.
var orderStripBytes = [3]byte{0x0D, 0x0A, 0x1A}

// DigestOrderA006 returns SHA-256 of orderBytes with every occurrence of
// 0x0D, 0x0A, and 0x1A removed.
func DigestOrderA006(orderBytes []byte) [32]byte {
	stripped := make([]byte, 0, len(orderBytes))
	for _, b := range orderBytes {
		if bytes.IndexByte(orderStripBytes[:], b) >= 0 {
			continue
		}
		stripped = append(stripped, b)
	}
	return sha256.Sum256(stripped)
}
