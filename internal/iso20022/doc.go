// Package iso20022 translates between the gateway's normalized transaction
// model and ISO 20022 XML: camt.052.001.02/camt.053.001.02 statements parse
// into NormalizedTransaction slices, and a PaymentRequest emits (and
// ParsePain001 recovers) a pain.001.001.03 credit-transfer initiation
// document.
package iso20022
