package ebicscrypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

// EBICSKeyFingerprint computes the bank-verification fingerprint of an
// RSA public key: the exponent and modulus formatted as lowercase
// hexadecimal big-endian byte strings (minimal two's-complement encoding —
// no leading 0x00 padding byte even when the high bit is set), joined by a
// single ASCII space, then hashed with SHA-256.
//
// This must match byte-for-byte what every other EBICS implementation
// computes, or HPB bank-key verification fails.
func EBICSKeyFingerprint(pub *rsa.PublicKey) [32]byte {
	expHex := minimalHex(big.NewInt(int64(pub.E)))
	modHex := minimalHex(pub.N)
	return sha256.Sum256([]byte(expHex + " " + modHex))
}

// minimalHex renders n's absolute value as lowercase hex using the fewest
// bytes needed — i.e. big.Int.Bytes(), which never carries a leading
// all-zero padding byte the way a fixed-width encoding would.
func minimalHex(n *big.Int) string {
	return hex.EncodeToString(n.Bytes())
}
