// Package ebicscrypto implements the fixed cryptographic profiles EBICS 2.5
// mandates: A006 (RSA-PSS-SHA256 signing), E002 (AES-CBC + RSA-PKCS#1v1.5
// hybrid encryption), the EBICS public-key fingerprint used to verify HPB
// downloads, and password-based private-key wrapping for backup export.
//
// There is no retrieval-pack library for RSA-PKCS#1/PSS in an EBICS-shaped
// profile (the pack's crypto dependencies are all elliptic-curve, for
// Ethereum/Bitcoin style wallets), so this package is built directly on
// crypto/rsa, crypto/aes, crypto/cipher, crypto/x509, and crypto/sha256 —
// see DESIGN.md for the full justification.
package ebicscrypto
