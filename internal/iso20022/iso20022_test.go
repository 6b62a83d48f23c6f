package iso20022

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitPain001ThenParseFieldsRoundTrip(t *testing.T) {
	req := PaymentRequest{
		MessageID:              "MSG-0001",
		PaymentInformationID:   "PMT-0001",
		CreationDateTime:       time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC),
		RequestedExecutionDate: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		DebtorName:             "Acme GmbH",
		DebtorIBAN:             "DE89370400440532013000",
		DebtorBIC:              "COBADEFFXXX",
		CreditorName:           "Contoso Ltd",
		CreditorIBAN:           "DE02500105170137075030",
		CreditorBIC:            "INGBNL2A",
		Amount:                 decimal.RequireFromString("123.45"),
		Currency:               "EUR",
		Subject:                "invoice 2026-07",
		EndToEndID:             "E2E-0001",
	}

	rendered := EmitPain001(req)
	out := string(rendered)

	assert.Contains(t, out, "<MsgId>MSG-0001</MsgId>")
	assert.Contains(t, out, "<NbOfTxs>1</NbOfTxs>")
	assert.Contains(t, out, "<CtrlSum>123.45</CtrlSum>")
	assert.Contains(t, out, "<PmtMtd>TRF</PmtMtd>")
	assert.Contains(t, out, "<BtchBookg>true</BtchBookg>")
	assert.Contains(t, out, "<ChrgBr>SLEV</ChrgBr>")
	assert.Equal(t, 1, strings.Count(out, "<PmtInf>"))
	assert.Equal(t, 1, strings.Count(out, "<CdtTrfTxInf>"))

	parsed, err := ParsePain001(bytes.NewReader(rendered))
	require.NoError(t, err)

	assert.Equal(t, req.MessageID, parsed.MessageID)
	assert.Equal(t, req.PaymentInformationID, parsed.PaymentInformationID)
	assert.True(t, req.CreationDateTime.Equal(parsed.CreationDateTime))
	assert.True(t, req.RequestedExecutionDate.Equal(parsed.RequestedExecutionDate))
	assert.Equal(t, req.DebtorName, parsed.DebtorName)
	assert.Equal(t, req.DebtorIBAN, parsed.DebtorIBAN)
	assert.Equal(t, req.DebtorBIC, parsed.DebtorBIC)
	assert.Equal(t, req.CreditorName, parsed.CreditorName)
	assert.Equal(t, req.CreditorIBAN, parsed.CreditorIBAN)
	assert.Equal(t, req.CreditorBIC, parsed.CreditorBIC)
	assert.True(t, req.Amount.Equal(parsed.Amount))
	assert.Equal(t, req.Currency, parsed.Currency)
	assert.Equal(t, req.Subject, parsed.Subject)
	assert.Equal(t, req.EndToEndID, parsed.EndToEndID)
}

func TestParsePain001MissingEndToEndIDRoundTripsAsEmpty(t *testing.T) {
	req := PaymentRequest{
		MessageID:              "MSG-0002",
		PaymentInformationID:   "PMT-0002",
		CreationDateTime:       time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC),
		RequestedExecutionDate: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		DebtorIBAN:             "DE89370400440532013000",
		CreditorName:           "Contoso Ltd",
		CreditorIBAN:           "DE02500105170137075030",
		Amount:                 decimal.RequireFromString("1"),
		Currency:               "EUR",
	}

	parsed, err := ParsePain001(bytes.NewReader(EmitPain001(req)))
	require.NoError(t, err)

	assert.Empty(t, parsed.EndToEndID)
	assert.Empty(t, parsed.DebtorBIC)
	assert.Empty(t, parsed.CreditorBIC)
}

func TestEmitPain001MissingEndToEndIDDefaultsToNotProvided(t *testing.T) {
	req := PaymentRequest{
		MessageID:              "MSG-0002",
		PaymentInformationID:   "PMT-0002",
		CreationDateTime:       time.Now(),
		RequestedExecutionDate: time.Now(),
		DebtorIBAN:             "DE89370400440532013000",
		CreditorIBAN:           "DE02500105170137075030",
		Amount:                 decimal.RequireFromString("1"),
		Currency:               "EUR",
	}

	out := string(EmitPain001(req))
	assert.Contains(t, out, "<EndToEndId>NOTPROVIDED</EndToEndId>")
}

const camtTwoEntries = `<?xml version="1.0"?>
<Document>
  <BkToCstmrStmt>
    <Stmt>
      <Acct><Id><IBAN>DE89370400440532013000</IBAN></Id></Acct>
      <Bal>
        <Tp><CdOrPrtry><Cd>OPBD</Cd></CdOrPrtry></Tp>
        <Amt Ccy="EUR">100.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
      </Bal>
      <Bal>
        <Tp><CdOrPrtry><Cd>CLBD</Cd></CdOrPrtry></Tp>
        <Amt Ccy="EUR">106.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
      </Bal>
      <Ntry>
        <Amt Ccy="EUR">1.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <Sts>BOOK</Sts>
        <NtryRef>REF-1</NtryRef>
      </Ntry>
      <Ntry>
        <Amt Ccy="EUR">5.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <Sts>BOOK</Sts>
        <NtryRef>REF-2</NtryRef>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

func TestParseCamtTwoEntriesAndBalanceInvariant(t *testing.T) {
	stmt, err := ParseCamt(strings.NewReader(camtTwoEntries))
	require.NoError(t, err)

	assert.Equal(t, "DE89370400440532013000", stmt.AccountIBAN)
	require.Len(t, stmt.Transactions, 2)
	assert.True(t, stmt.Transactions[0].Amount.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, stmt.Transactions[1].Amount.Equal(decimal.RequireFromString("5.00")))

	require.NotNil(t, stmt.OpeningBalance)
	require.NotNil(t, stmt.ClosingBalance)

	credits, debits := SumCreditsDebits(stmt.Transactions)
	net := credits.Sub(debits)
	assert.True(t, stmt.ClosingBalance.Sub(*stmt.OpeningBalance).Equal(net),
		"closing - opening must equal net of entries")
}

const camtBatchedReturn = `<?xml version="1.0"?>
<Document>
  <BkToCstmrAcctRpt>
    <Rpt>
      <Acct><Id><IBAN>DE89370400440532013000</IBAN></Id></Acct>
      <Ntry>
        <Amt Ccy="EUR">15.00</Amt>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <Sts>BOOK</Sts>
        <BkTxCd>
          <Domn>
            <Cd>PMNT</Cd>
            <Fmly><Cd>ICDT</Cd><SubFmlyCd>RRTN</SubFmlyCd></Fmly>
          </Domn>
        </BkTxCd>
        <BtchBookg>true</BtchBookg>
        <NtryDtls>
          <TxDtls>
            <Refs><EndToEndId>E2E-A</EndToEndId></Refs>
            <RltdPties>
              <Cdtr><Nm>Payer One</Nm></Cdtr>
              <CdtrAcct><Id><IBAN>DE00000000000000000001</IBAN></Id></CdtrAcct>
            </RltdPties>
            <AmtDtls><TxAmt><Amt Ccy="EUR">10.00</Amt></TxAmt></AmtDtls>
            <RmtInf><Ustrd>part one</Ustrd></RmtInf>
          </TxDtls>
          <TxDtls>
            <Refs><EndToEndId>E2E-B</EndToEndId></Refs>
            <RltdPties>
              <Cdtr><Nm>Payer Two</Nm></Cdtr>
              <CdtrAcct><Id><IBAN>DE00000000000000000002</IBAN></Id></CdtrAcct>
            </RltdPties>
            <AmtDtls><TxAmt><Amt Ccy="EUR">5.00</Amt></TxAmt></AmtDtls>
            <RmtInf><Ustrd>part </Ustrd><Ustrd>two</Ustrd></RmtInf>
          </TxDtls>
        </NtryDtls>
      </Ntry>
    </Rpt>
  </BkToCstmrAcctRpt>
</Document>`

func TestParseCamtBatchedReturnExpandsDetailsAndConcatenatesRemittance(t *testing.T) {
	stmt, err := ParseCamt(strings.NewReader(camtBatchedReturn))
	require.NoError(t, err)

	require.Len(t, stmt.Transactions, 2)

	first, second := stmt.Transactions[0], stmt.Transactions[1]

	assert.True(t, first.IsBatch)
	assert.True(t, second.IsBatch)
	assert.False(t, first.BatchFlagMismatch)
	assert.False(t, second.BatchFlagMismatch)

	assert.Equal(t, "E2E-A", first.EndToEndID)
	assert.Equal(t, "Payer One", first.CounterpartName)
	assert.Equal(t, "DE00000000000000000001", first.CounterpartIBAN)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("-10.00")))
	assert.Equal(t, "part one", first.UnstructuredRemit)

	assert.Equal(t, "E2E-B", second.EndToEndID)
	assert.Equal(t, "part two", second.UnstructuredRemit)
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("-5.00")))

	assert.Equal(t, "PMNT/ICDT/RRTN", first.BankTxCode.ISO())
}

func TestParseCamtRejectsWrongRoot(t *testing.T) {
	_, err := ParseCamt(strings.NewReader(`<?xml version="1.0"?><Document><SomethingElse/></Document>`))
	assert.Error(t, err)
}

func TestParseCamtSingleEntryNoDetailsIsNotBatch(t *testing.T) {
	doc := `<?xml version="1.0"?>
<Document>
  <BkToCstmrStmt>
    <Stmt>
      <Acct><Id><IBAN>DE89370400440532013000</IBAN></Id></Acct>
      <Ntry>
        <Amt Ccy="EUR">42.00</Amt>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <Sts>BOOK</Sts>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

	stmt, err := ParseCamt(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 1)
	assert.False(t, stmt.Transactions[0].IsBatch)
	assert.True(t, stmt.Transactions[0].Amount.Equal(decimal.RequireFromString("-42.00")))
}
