// Package builders provides fluent builders for domain entities used across
// this repo's tests, with sensible defaults that a test overrides only for
// the fields it cares about.
package builders

import (
	"time"

	"github.com/paynet/ebics-gateway/internal/connection"
)

// ConnectionBuilder builds connection.Connection test fixtures.
type ConnectionBuilder struct {
	conn connection.Connection
}

// NewConnection returns a ConnectionBuilder seeded with a not-ready
// connection and no key material. Tests that need the handshake state to
// pass Ready() must supply keys via WithKeys/WithBankKeys explicitly.
func NewConnection() *ConnectionBuilder {
	now := time.Now()
	return &ConnectionBuilder{
		conn: connection.Connection{
			ID:        "test-connection-id",
			URL:       "https://bank.example.com/ebics",
			HostID:    "TESTHOST",
			PartnerID: "TESTPARTNER",
			UserID:    "TESTUSER",
			SystemID:  "",
			INIState:  connection.KeyStateNotSent,
			HIAState:  connection.KeyStateNotSent,
			Status:    connection.StatusNotReady,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *ConnectionBuilder) WithID(id string) *ConnectionBuilder {
	b.conn.ID = id
	return b
}

func (b *ConnectionBuilder) WithURL(url string) *ConnectionBuilder {
	b.conn.URL = url
	return b
}

func (b *ConnectionBuilder) WithHostID(hostID string) *ConnectionBuilder {
	b.conn.HostID = hostID
	return b
}

func (b *ConnectionBuilder) WithPartnerID(partnerID string) *ConnectionBuilder {
	b.conn.PartnerID = partnerID
	return b
}

func (b *ConnectionBuilder) WithUserID(userID string) *ConnectionBuilder {
	b.conn.UserID = userID
	return b
}

// WithKeys sets the subscriber's own key triple.
func (b *ConnectionBuilder) WithKeys(keys connection.KeyTriple) *ConnectionBuilder {
	b.conn.Keys = keys
	return b
}

// WithBankKeys sets the bank's public keys, as learned via HPB.
func (b *ConnectionBuilder) WithBankKeys(keys connection.BankKeys) *ConnectionBuilder {
	b.conn.BankKeys = keys
	return b
}

// WithReady marks the connection ready, as if INI/HIA/HPB all succeeded.
// The caller is still responsible for supplying bank keys via WithBankKeys
// if the test exercises anything that calls Ready().
func (b *ConnectionBuilder) WithReady() *ConnectionBuilder {
	b.conn.INIState = connection.KeyStateSent
	b.conn.HIAState = connection.KeyStateSent
	b.conn.Status = connection.StatusReady
	return b
}

// WithError marks the connection in its error state.
func (b *ConnectionBuilder) WithError(reason string) *ConnectionBuilder {
	b.conn.Status = connection.StatusError
	b.conn.LastError = reason
	return b
}

// Build returns the constructed Connection.
func (b *ConnectionBuilder) Build() connection.Connection {
	return b.conn
}
