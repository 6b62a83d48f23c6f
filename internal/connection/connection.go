// Package connection models a bank connection: its protocol, its owned key
// material, and the INI/HIA/HPB handshake state that gates data exchange.
package connection

import (
	"crypto/rsa"
	"time"
)

// KeyState is the INI/HIA acceptance state of one subscriber key upload.
type KeyState string

const (
	KeyStateUnknown KeyState = "unknown"
	KeyStateNotSent KeyState = "not_sent"
	KeyStateSent    KeyState = "sent"
)

// Status is the overall lifecycle state of a connection.
type Status string

const (
	StatusNotReady Status = "not_ready" // keys created, INI/HIA/HPB not all done
	StatusReady    Status = "ready"     // HPB succeeded, bank public keys on file
	StatusError    Status = "error"     // a non-retryable protocol or crypto error occurred
)

// KeyTriple is the three RSA private keys a connection owns, one per
// EBICS signing/encryption/authentication profile.
type KeyTriple struct {
	Signature      *rsa.PrivateKey
	Authentication *rsa.PrivateKey
	Encryption     *rsa.PrivateKey
}

// BankKeys are the bank's public keys, learned via HPB.
type BankKeys struct {
	Authentication *rsa.PublicKey
	Encryption     *rsa.PublicKey
}

// Connection is a named EBICS bank connection, owning its subscriber key
// material and handshake state exclusively: no other connection may read
// or write another's key material or subscriber state.
type Connection struct {
	ID        string
	URL       string
	HostID    string
	PartnerID string
	UserID    string
	SystemID  string

	Keys     KeyTriple
	BankKeys BankKeys

	INIState KeyState
	HIAState KeyState
	Status   Status

	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ready reports whether the connection has completed the handshake and may
// submit or fetch data.
func (c *Connection) Ready() bool {
	return c.Status == StatusReady && c.BankKeys.Authentication != nil && c.BankKeys.Encryption != nil
}

// MarkINISent records a successful INI upload.
func (c *Connection) MarkINISent(now time.Time) {
	c.INIState = KeyStateSent
	c.UpdatedAt = now
}

// MarkHIASent records a successful HIA upload.
func (c *Connection) MarkHIASent(now time.Time) {
	c.HIAState = KeyStateSent
	c.UpdatedAt = now
}

// MarkReady records a successful HPB: the connection now owns the bank's
// public keys and transitions to StatusReady.
func (c *Connection) MarkReady(bankKeys BankKeys, now time.Time) {
	c.BankKeys = bankKeys
	c.Status = StatusReady
	c.LastError = ""
	c.UpdatedAt = now
}

// MarkError records a non-retryable failure (fatal protocol or crypto
// error). The connection stays whatever Status it had for retryable
// failures — only the caller decides fatality and calls this explicitly.
func (c *Connection) MarkError(reason string, now time.Time) {
	c.Status = StatusError
	c.LastError = reason
	c.UpdatedAt = now
}

// RotateKeys replaces the subscriber's owned key triple and resets
// handshake state, requiring INI/HIA/HPB to run again.
func (c *Connection) RotateKeys(keys KeyTriple, now time.Time) {
	c.Keys = keys
	c.INIState = KeyStateNotSent
	c.HIAState = KeyStateNotSent
	c.BankKeys = BankKeys{}
	c.Status = StatusNotReady
	c.UpdatedAt = now
}
