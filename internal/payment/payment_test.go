package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEligibleIsTrueOnlyWhenNeitherSubmittedNorInvalid(t *testing.T) {
	p := &PreparedPayment{}
	assert.True(t, p.Eligible())

	p.MarkSubmitted(time.Now())
	assert.False(t, p.Eligible())

	p2 := &PreparedPayment{}
	p2.MarkInvalid("bad BIC")
	assert.False(t, p2.Eligible())
}

func TestMarkSubmittedFreezesSubmissionTimestamp(t *testing.T) {
	p := &PreparedPayment{
		CreditorIBAN: "DE89370400440532013000",
		Amount:       decimal.RequireFromString("125.50"),
		Currency:     "EUR",
	}
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	p.MarkSubmitted(now)

	assert.True(t, p.Submitted)
	assert.False(t, p.Invalid)
	assert.Equal(t, now, *p.SubmissionTimestamp)
}

func TestMarkInvalidRecordsReasonAndExcludesFromSubmission(t *testing.T) {
	p := &PreparedPayment{}

	p.MarkInvalid("EBICS_ACCOUNT_AUTHORISATION_FAILED")

	assert.True(t, p.Invalid)
	assert.Equal(t, "EBICS_ACCOUNT_AUTHORISATION_FAILED", p.InvalidReason)
	assert.False(t, p.Eligible())
}
