package ebicscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// aesKeyBytes is the E002 session-key size: 128 bits.
const aesKeyBytes = 16

// Envelope is the output of an E002 hybrid encryption: an AES key wrapped
// under the recipient's RSA encryption key, plus the AES-CBC ciphertext it
// unlocks.
type Envelope struct {
	WrappedKey         []byte
	RecipientKeyDigest [32]byte
	Ciphertext         []byte
}

// EncryptE002 hybrid-encrypts plaintext to bankEncPub: a fresh AES-128 key
// encrypts plaintext under AES-CBC/PKCS#7 with an all-zero IV (EBICS's E002
// profile fixes the IV rather than transmitting one), and that AES key is
// wrapped under bankEncPub with RSAES-PKCS1-v1_5.
func EncryptE002(plaintext []byte, bankEncPub *rsa.PublicKey) (Envelope, error) {
	key := make([]byte, aesKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return Envelope{}, errors.Crypto(err, "generate e002 session key")
	}

	ciphertext, err := aesCBCEncryptPKCS7(key, plaintext)
	if err != nil {
		return Envelope{}, err
	}

	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, bankEncPub, key)
	if err != nil {
		return Envelope{}, errors.Crypto(err, "wrap e002 session key")
	}

	return Envelope{
		WrappedKey:         wrapped,
		RecipientKeyDigest: EBICSKeyFingerprint(bankEncPub),
		Ciphertext:         ciphertext,
	}, nil
}

// DecryptE002 inverts EncryptE002 using the subscriber's own encryption
// private key.
func DecryptE002(env Envelope, ownEncPriv *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptPKCS1v15(rand.Reader, ownEncPriv, env.WrappedKey)
	if err != nil {
		return nil, errors.Crypto(err, "unwrap e002 session key")
	}
	return aesCBCDecryptPKCS7(key, env.Ciphertext)
}

func aesCBCEncryptPKCS7(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Crypto(err, "new aes cipher")
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize()) // all-zero IV per the E002 profile

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func aesCBCDecryptPKCS7(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Crypto(err, "new aes cipher")
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.Crypto(nil, "ciphertext is not a multiple of the block size")
	}

	iv := make([]byte, block.BlockSize())
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Crypto(nil, "cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.Crypto(nil, "invalid pkcs7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.Crypto(nil, "invalid pkcs7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
