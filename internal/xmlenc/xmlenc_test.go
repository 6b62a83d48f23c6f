package xmlenc

import (
	"strings"
	"testing"

	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<?xml version="1.0"?>
<Document>
  <BkToCstmrStmt>
    <Stmt>
      <Acct><Id><IBAN>DE89370400440532013000</IBAN></Id></Acct>
      <Ntry><Amt Ccy="EUR">1.00</Amt></Ntry>
      <Ntry><Amt Ccy="EUR">5.00</Amt></Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

func TestParseAndDestructure(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.NoError(t, RequireRoot(root, "Document"))

	stmtDoc, err := RequireUniqueChild(root, "BkToCstmrStmt")
	require.NoError(t, err)

	stmt, err := RequireUniqueChild(stmtDoc, "Stmt")
	require.NoError(t, err)

	acct, err := RequireUniqueChild(stmt, "Acct")
	require.NoError(t, err)
	id, err := RequireUniqueChild(acct, "Id")
	require.NoError(t, err)
	iban, err := RequireUniqueChild(id, "IBAN")
	require.NoError(t, err)
	assert.Equal(t, "DE89370400440532013000", iban.TrimmedText())

	count := 0
	err = MapEachChild(stmt, "Ntry", func(n *Node) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, ok, err := MaybeUniqueChild(stmt, "NotThere")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequireRootRejectsWrongRoot(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	assert.Error(t, RequireRoot(root, "SomethingElse"))
}

func TestRequireUniqueChildFailsOnMultiple(t *testing.T) {
	root, err := Parse(strings.NewReader(`<a><b/><b/></a>`))
	require.NoError(t, err)
	_, err = RequireUniqueChild(root, "b")
	assert.Error(t, err)
}

func TestSignAndVerifyAuthSignature(t *testing.T) {
	priv, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	body := NewElement("Body", NewText("OrderDetails", "CCT").WithAttr("authenticate", "true"))
	doc := NewElement("ebicsRequest", body)

	sig, err := SignWithKey(doc, priv, ebicscrypto.SignX002)
	require.NoError(t, err)
	require.NotEmpty(t, sig.SignatureValue)

	ok := Verify(doc, sig.SignatureValue, func(s, data []byte) bool {
		return ebicscrypto.VerifyX002(s, data, &priv.PublicKey)
	})
	assert.True(t, ok)

	tampered := NewElement("ebicsRequest", NewElement("Body", NewText("OrderDetails", "HIA").WithAttr("authenticate", "true")))
	ok = Verify(tampered, sig.SignatureValue, func(s, data []byte) bool {
		return ebicscrypto.VerifyX002(s, data, &priv.PublicKey)
	})
	assert.False(t, ok)
}

func TestSerializeRoundTrip(t *testing.T) {
	doc := NewElement("Foo", NewText("Bar", "baz"))
	out := Serialize(doc)
	assert.Contains(t, string(out), "<Foo>")
	assert.Contains(t, string(out), "<Bar>baz</Bar>")

	parsed, err := Parse(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.NoError(t, RequireRoot(parsed, "Foo"))
	bar, err := RequireUniqueChild(parsed, "Bar")
	require.NoError(t, err)
	assert.Equal(t, "baz", bar.TrimmedText())
}
