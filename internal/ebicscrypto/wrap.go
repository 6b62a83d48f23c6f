package ebicscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/paynet/ebics-gateway/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	wrapSaltBytes   = 16
	wrapIVBytes     = 16
	wrapPBKDF2Iters = 200_000
	wrapKeyBytes    = 32 // AES-256
)

// WrapPrivateKey encrypts priv's PKCS#8 encoding under a key derived from
// passphrase via PBKDF2, for user-invoked key backup export.
// Output layout: salt(16) || iv(16) || ciphertext.
func WrapPrivateKey(priv *rsa.PrivateKey, passphrase string) ([]byte, error) {
	der, err := MarshalPKCS8(priv)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, wrapSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Crypto(err, "generate backup salt")
	}

	key := pbkdf2.Key([]byte(passphrase), salt, wrapPBKDF2Iters, wrapKeyBytes, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Crypto(err, "new aes cipher for backup")
	}

	iv := make([]byte, wrapIVBytes)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Crypto(err, "generate backup iv")
	}

	ciphertext := make([]byte, len(pkcs7Pad(der, block.BlockSize())))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, pkcs7Pad(der, block.BlockSize()))

	out := make([]byte, 0, len(salt)+len(iv)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// UnwrapPrivateKey inverts WrapPrivateKey.
func UnwrapPrivateKey(wrapped []byte, passphrase string) (*rsa.PrivateKey, error) {
	if len(wrapped) < wrapSaltBytes+wrapIVBytes {
		return nil, errors.Crypto(nil, "wrapped key blob too short")
	}
	salt := wrapped[:wrapSaltBytes]
	iv := wrapped[wrapSaltBytes : wrapSaltBytes+wrapIVBytes]
	ciphertext := wrapped[wrapSaltBytes+wrapIVBytes:]

	key := pbkdf2.Key([]byte(passphrase), salt, wrapPBKDF2Iters, wrapKeyBytes, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Crypto(err, "new aes cipher for backup")
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.Crypto(nil, "backup ciphertext is not a multiple of the block size")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	der, err := pkcs7Unpad(plaintext)
	if err != nil {
		return nil, errors.Crypto(err, "invalid backup passphrase or corrupted blob")
	}

	return ParsePKCS8(der)
}
