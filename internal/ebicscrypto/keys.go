package ebicscrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// KeyBits is the only RSA modulus size the gateway generates.
const KeyBits = 2048

// GenerateRSA generates a fresh RSA key pair of KeyBits size.
func GenerateRSA() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, errors.Crypto(err, "generate rsa key")
	}
	return priv, nil
}

// MarshalPKCS8 encodes priv as a PKCS#8 DER blob, the format subscriber
// keys are persisted and backed up in.
func MarshalPKCS8(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Crypto(err, "marshal pkcs8 private key")
	}
	return der, nil
}

// ParsePKCS8 decodes a PKCS#8 DER blob back into an RSA private key.
func ParsePKCS8(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Crypto(err, "parse pkcs8 private key")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Crypto(nil, "pkcs8 blob does not contain an RSA private key")
	}
	return rsaKey, nil
}

// MarshalPublicPKIX encodes pub as an X.509 SubjectPublicKeyInfo DER blob.
func MarshalPublicPKIX(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Crypto(err, "marshal pkix public key")
	}
	return der, nil
}

// ParsePublicPKIX decodes an X.509 SubjectPublicKeyInfo DER blob back into
// an RSA public key.
func ParsePublicPKIX(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Crypto(err, "parse pkix public key")
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Crypto(nil, "pkix blob does not contain an RSA public key")
	}
	return rsaKey, nil
}
