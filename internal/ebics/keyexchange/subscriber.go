// Package keyexchange implements the three single-shot EBICS
// key-management exchanges: INI (upload signature public key) and HIA
// (upload authentication+encryption public keys), both sent unsigned, and
// HPB (download the bank's public keys), whose request is signed with the
// subscriber's authentication key.
package keyexchange

// Subscriber identifies the EBICS participant these exchanges act on
// behalf of.
type Subscriber struct {
	HostID    string
	PartnerID string
	UserID    string
}
