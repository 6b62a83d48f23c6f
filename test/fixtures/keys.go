// Package fixtures provides ready-to-use test data built on top of
// test/builders, for the setup every EBICS-flow test needs: a connection
// with real RSA key material on both sides of the handshake.
package fixtures

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
)

// GenerateKeyTriple generates a fresh subscriber key triple, failing the
// test immediately if key generation errors.
func GenerateKeyTriple(t *testing.T) connection.KeyTriple {
	t.Helper()

	sig, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	auth, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	enc, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	return connection.KeyTriple{
		Signature:      sig,
		Authentication: auth,
		Encryption:     enc,
	}
}

// GenerateBankKeys generates a fresh bank key pair, as if learned via HPB.
func GenerateBankKeys(t *testing.T) connection.BankKeys {
	t.Helper()

	auth, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	enc, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	return connection.BankKeys{
		Authentication: &auth.PublicKey,
		Encryption:     &enc.PublicKey,
	}
}
