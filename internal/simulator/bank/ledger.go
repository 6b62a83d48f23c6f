// Package bank is the in-memory record-keeping side of the EBICS host
// simulator: the documents it hands back on download, and the payments it
// receives on upload. It has no opinion on EBICS wire format — that is
// internal/simulator/host's job — and exists so integration tests and a
// local cmd/simulator process can seed and inspect state without a real
// banking core.
package bank

import (
	"regexp"
	"sync"
	"time"

	"github.com/paynet/ebics-gateway/internal/ebics/returncode"
)

// bicPattern matches a syntactically valid SWIFT/BIC code: 4-letter bank
// code, 2-letter country code, 2-character location code, and an optional
// 3-character branch code.
var bicPattern = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)

// Statement is one queued C52 or C53 document for an account. Documents
// are served in FIFO order and each is consumed at most once, mirroring a
// real bank's "new data since last collection" semantics.
type Statement struct {
	OrderType string // "C52" or "C53"
	Document  []byte // serialized camt.052/053 XML
}

// ReceivedPayment is one CCT order the simulator accepted and decrypted.
type ReceivedPayment struct {
	PartnerID  string
	UserID     string
	Document   []byte // decompressed pain.001 XML
	ReceivedAt time.Time
}

// Ledger holds per-partner statement queues, a static HTD document per
// partner, and the history of accepted uploads. All methods are safe for
// concurrent use by the host's HTTP handlers.
type Ledger struct {
	mu                 sync.Mutex
	statements         map[string][]Statement
	htd                map[string][]byte
	payments           []ReceivedPayment
	acceptedCurrencies map[string]map[string]bool
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		statements:         make(map[string][]Statement),
		htd:                make(map[string][]byte),
		acceptedCurrencies: make(map[string]map[string]bool),
	}
}

// SetAcceptedCurrencies restricts partnerID to the given currency codes.
// Until called for a partner, ValidatePayment accepts any currency for it.
func (l *Ledger) SetAcceptedCurrencies(partnerID string, currencies ...string) {
	accepted := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		accepted[c] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.acceptedCurrencies[partnerID] = accepted
}

// ValidatePayment checks a CCT order's business content the way a real bank
// core would before crediting it: a syntactically valid creditor BIC, and a
// currency partnerID is configured to accept. It returns an EBICS business
// return code on failure, or "" when the payment may proceed.
func (l *Ledger) ValidatePayment(partnerID, creditorBIC, currency string) string {
	if creditorBIC != "" && !bicPattern.MatchString(creditorBIC) {
		return returncode.ProcessingError
	}

	l.mu.Lock()
	accepted, configured := l.acceptedCurrencies[partnerID]
	l.mu.Unlock()

	if configured && !accepted[currency] {
		return returncode.ProcessingError
	}
	return ""
}

// QueueStatement appends a statement to partnerID's download queue.
func (l *Ledger) QueueStatement(partnerID string, st Statement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statements[partnerID] = append(l.statements[partnerID], st)
}

// SetHTD sets the static directory document served for every HTD request
// from partnerID, until replaced by a later call.
func (l *Ledger) SetHTD(partnerID string, document []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.htd[partnerID] = document
}

// NextDocument returns the next document to serve for a download request
// of orderType from partnerID. HTD returns the static directory document
// every time; C52/C53 dequeue the oldest matching statement. ok is false
// when nothing is available, which the host surfaces as
// EBICS_NO_DOWNLOAD_DATA_AVAILABLE.
func (l *Ledger) NextDocument(partnerID, orderType string) (document []byte, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if orderType == "HTD" {
		doc, ok := l.htd[partnerID]
		return doc, ok
	}

	queue := l.statements[partnerID]
	for i, st := range queue {
		if st.OrderType != orderType {
			continue
		}
		l.statements[partnerID] = append(append([]Statement{}, queue[:i]...), queue[i+1:]...)
		return st.Document, true
	}
	return nil, false
}

// RecordPayment appends p to the accepted-upload history.
func (l *Ledger) RecordPayment(p ReceivedPayment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments = append(l.payments, p)
}

// Payments returns every payment accepted so far, oldest first.
func (l *Ledger) Payments() []ReceivedPayment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ReceivedPayment, len(l.payments))
	copy(out, l.payments)
	return out
}
