package fixtures

import (
	"testing"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/test/builders"
)

// ReadyConnection returns a connection that has completed INI/HIA/HPB: real
// subscriber keys, real bank keys, status ready. The common starting point
// for submission/ingestion tests that need Ready() to hold.
func ReadyConnection(t *testing.T, url string) connection.Connection {
	t.Helper()

	return builders.NewConnection().
		WithURL(url).
		WithKeys(GenerateKeyTriple(t)).
		WithBankKeys(GenerateBankKeys(t)).
		WithReady().
		Build()
}
