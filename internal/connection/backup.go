package connection

import (
	"crypto/rsa"
	"encoding/json"
	"time"

	"github.com/paynet/ebics-gateway/internal/ebics/envelope"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// backupKeyTriple is the passphrase-wrapped form of KeyTriple, safe to
// serialize: each field is WrapPrivateKey's salt||iv||ciphertext output.
type backupKeyTriple struct {
	Signature      []byte `json:"signature"`
	Authentication []byte `json:"authentication"`
	Encryption     []byte `json:"encryption"`
}

// backupBankKeys carries the bank's public keys in the same modulus/exponent
// shape envelope already uses for the wire, skipped entirely for a
// connection that hasn't completed HPB yet.
type backupBankKeys struct {
	AuthModulus  []byte `json:"auth_modulus,omitempty"`
	AuthExponent []byte `json:"auth_exponent,omitempty"`
	EncModulus   []byte `json:"enc_modulus,omitempty"`
	EncExponent  []byte `json:"enc_exponent,omitempty"`
}

// backup is the on-disk/wire shape of an exported connection: everything
// needed to recreate it on another gateway instance, with the subscriber's
// private keys encrypted under an operator-supplied passphrase rather than
// ever traveling in the clear.
type backup struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	HostID    string          `json:"host_id"`
	PartnerID string          `json:"partner_id"`
	UserID    string          `json:"user_id"`
	SystemID  string          `json:"system_id"`
	Keys      backupKeyTriple `json:"keys"`
	BankKeys  backupBankKeys  `json:"bank_keys"`
	INIState  KeyState        `json:"ini_state"`
	HIAState  KeyState        `json:"hia_state"`
	Status    Status          `json:"status"`
}

// ExportBackup encrypts c's private key material under passphrase and
// renders the result as a JSON blob suitable for offline storage or
// transfer to another gateway instance via ImportBackup.
func ExportBackup(c *Connection, passphrase string) ([]byte, error) {
	sig, err := ebicscrypto.WrapPrivateKey(c.Keys.Signature, passphrase)
	if err != nil {
		return nil, err
	}
	auth, err := ebicscrypto.WrapPrivateKey(c.Keys.Authentication, passphrase)
	if err != nil {
		return nil, err
	}
	enc, err := ebicscrypto.WrapPrivateKey(c.Keys.Encryption, passphrase)
	if err != nil {
		return nil, err
	}

	b := backup{
		ID:        c.ID,
		URL:       c.URL,
		HostID:    c.HostID,
		PartnerID: c.PartnerID,
		UserID:    c.UserID,
		SystemID:  c.SystemID,
		Keys:      backupKeyTriple{Signature: sig, Authentication: auth, Encryption: enc},
		INIState:  c.INIState,
		HIAState:  c.HIAState,
		Status:    c.Status,
	}
	if c.BankKeys.Authentication != nil {
		b.BankKeys.AuthModulus, b.BankKeys.AuthExponent = envelope.ModulusExponent(c.BankKeys.Authentication)
	}
	if c.BankKeys.Encryption != nil {
		b.BankKeys.EncModulus, b.BankKeys.EncExponent = envelope.ModulusExponent(c.BankKeys.Encryption)
	}

	out, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Internal("connection: marshal backup: %v", err)
	}
	return out, nil
}

// ImportBackup inverts ExportBackup, rebuilding a Connection from data and
// passphrase. now is stamped as both CreatedAt and UpdatedAt: the imported
// connection is new to this repository even if it already existed
// elsewhere.
func ImportBackup(data []byte, passphrase string, now time.Time) (*Connection, error) {
	var b backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Parse(err, "connection: malformed backup document")
	}

	sig, err := ebicscrypto.UnwrapPrivateKey(b.Keys.Signature, passphrase)
	if err != nil {
		return nil, err
	}
	auth, err := ebicscrypto.UnwrapPrivateKey(b.Keys.Authentication, passphrase)
	if err != nil {
		return nil, err
	}
	enc, err := ebicscrypto.UnwrapPrivateKey(b.Keys.Encryption, passphrase)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		ID:        b.ID,
		URL:       b.URL,
		HostID:    b.HostID,
		PartnerID: b.PartnerID,
		UserID:    b.UserID,
		SystemID:  b.SystemID,
		Keys:      KeyTriple{Signature: sig, Authentication: auth, Encryption: enc},
		INIState:  b.INIState,
		HIAState:  b.HIAState,
		Status:    b.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(b.BankKeys.AuthModulus) > 0 {
		c.BankKeys.Authentication = rebuildBankKey(b.BankKeys.AuthModulus, b.BankKeys.AuthExponent)
	}
	if len(b.BankKeys.EncModulus) > 0 {
		c.BankKeys.Encryption = rebuildBankKey(b.BankKeys.EncModulus, b.BankKeys.EncExponent)
	}

	return c, nil
}

func rebuildBankKey(modulus, exponent []byte) *rsa.PublicKey {
	return envelope.RebuildPublicKey(modulus, exponent)
}
