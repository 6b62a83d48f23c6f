package ebicscrypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyA006RoundTrip(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	msg := []byte("pain.001 order data")
	sig, err := SignA006(msg, priv)
	require.NoError(t, err)

	assert.True(t, VerifyA006(sig, msg, &priv.PublicKey))
	assert.False(t, VerifyA006(sig, []byte("a different message"), &priv.PublicKey))
}

func TestDigestOrderA006StripsControlBytes(t *testing.T) {
	input := []byte{'a', 0x0D, 'b', 0x0A, 'c', 0x1A, 'd'}
	want := sha256.Sum256([]byte("abcd"))

	assert.Equal(t, want, DigestOrderA006(input))
}

func TestDigestOrderA006EmptyAndNoStripBytes(t *testing.T) {
	assert.Equal(t, sha256.Sum256(nil), DigestOrderA006(nil))

	input := []byte("hello world")
	assert.Equal(t, sha256.Sum256(input), DigestOrderA006(input))
}

func TestSignVerifyOrderDigestA006RoundTrip(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	digest := DigestOrderA006([]byte("<CstmrCdtTrfInitn>...</CstmrCdtTrfInitn>"))
	sig, err := SignOrderDigestA006(digest, priv)
	require.NoError(t, err)

	assert.True(t, VerifyOrderDigestA006(sig, digest, &priv.PublicKey))

	otherDigest := DigestOrderA006([]byte("tampered"))
	assert.False(t, VerifyOrderDigestA006(sig, otherDigest, &priv.PublicKey))
}

func TestEncryptDecryptE002RoundTrip(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	plaintext := []byte("<ZIPped camt.053 document>")
	env, err := EncryptE002(plaintext, &priv.PublicKey)
	require.NoError(t, err)

	got, err := DecryptE002(env, priv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptE002RecipientKeyDigestMatchesFingerprint(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	env, err := EncryptE002([]byte("x"), &priv.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, EBICSKeyFingerprint(&priv.PublicKey), env.RecipientKeyDigest)
}

func TestEBICSKeyFingerprintDeterministic(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	a := EBICSKeyFingerprint(&priv.PublicKey)
	b := EBICSKeyFingerprint(&priv.PublicKey)
	assert.Equal(t, a, b)
}

func TestWrapUnwrapPrivateKeyRoundTrip(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	blob, err := WrapPrivateKey(priv, "correct horse battery staple")
	require.NoError(t, err)

	got, err := UnwrapPrivateKey(blob, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, priv.D, got.D)
	assert.Equal(t, priv.N, got.N)
}

func TestUnwrapPrivateKeyWrongPassphraseFails(t *testing.T) {
	priv, err := GenerateRSA()
	require.NoError(t, err)

	blob, err := WrapPrivateKey(priv, "correct horse battery staple")
	require.NoError(t, err)

	_, err = UnwrapPrivateKey(blob, "wrong passphrase")
	assert.Error(t, err)
}
