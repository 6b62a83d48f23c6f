package bank_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/simulator/bank"
)

func TestNextDocumentDequeuesFIFOPerOrderType(t *testing.T) {
	l := bank.NewLedger()
	l.QueueStatement("P1", bank.Statement{OrderType: "C53", Document: []byte("first")})
	l.QueueStatement("P1", bank.Statement{OrderType: "C53", Document: []byte("second")})

	doc, ok := l.NextDocument("P1", "C53")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), doc)

	doc, ok = l.NextDocument("P1", "C53")
	require.True(t, ok)
	assert.Equal(t, []byte("second"), doc)

	_, ok = l.NextDocument("P1", "C53")
	assert.False(t, ok)
}

func TestNextDocumentFiltersByOrderType(t *testing.T) {
	l := bank.NewLedger()
	l.QueueStatement("P1", bank.Statement{OrderType: "C52", Document: []byte("intraday")})
	l.QueueStatement("P1", bank.Statement{OrderType: "C53", Document: []byte("eod")})

	doc, ok := l.NextDocument("P1", "C53")
	require.True(t, ok)
	assert.Equal(t, []byte("eod"), doc)

	doc, ok = l.NextDocument("P1", "C52")
	require.True(t, ok)
	assert.Equal(t, []byte("intraday"), doc)
}

func TestHTDIsStaticAndReusable(t *testing.T) {
	l := bank.NewLedger()
	l.SetHTD("P1", []byte("directory"))

	doc, ok := l.NextDocument("P1", "HTD")
	require.True(t, ok)
	assert.Equal(t, []byte("directory"), doc)

	doc, ok = l.NextDocument("P1", "HTD")
	require.True(t, ok)
	assert.Equal(t, []byte("directory"), doc)
}

func TestRecordPaymentAccumulatesHistory(t *testing.T) {
	l := bank.NewLedger()
	l.RecordPayment(bank.ReceivedPayment{PartnerID: "P1", Document: []byte("a")})
	l.RecordPayment(bank.ReceivedPayment{PartnerID: "P1", Document: []byte("b")})

	payments := l.Payments()
	require.Len(t, payments, 2)
	assert.Equal(t, []byte("a"), payments[0].Document)
	assert.Equal(t, []byte("b"), payments[1].Document)
}
