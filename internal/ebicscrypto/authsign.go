package ebicscrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// SignX002 signs data's SHA-256 digest under priv using standard
// RSASSA-PKCS1-v1_5, the EBICS X002 authentication-signature profile used
// for the ds:SignedInfo over an envelope's AuthSignature — RSA-SHA256,
// distinct from A006's RSA-PSS order signing.
func SignX002(data []byte, priv *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, errors.Crypto(err, "sign_x002")
	}
	return sig, nil
}

// VerifyX002 reports whether sig is a valid X002 signature of data under pub.
func VerifyX002(sig, data []byte, pub *rsa.PublicKey) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}
