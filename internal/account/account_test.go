package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/internal/ebics/download"
	"github.com/paynet/ebics-gateway/internal/storage/memory"
)

const htdFixture = `<?xml version="1.0"?>
<HTDResponseOrderData>
  <PartnerInfo>
    <AccountInfo>
      <AccountNumber>DE89370400440532013000</AccountNumber>
      <BankCode>COBADEFFXXX</BankCode>
      <AccountHolder>Acme GmbH</AccountHolder>
    </AccountInfo>
    <AccountInfo>
      <AccountNumber>DE02500105170137075030</AccountNumber>
      <BankCode>INGBNL2A</BankCode>
      <AccountHolder>Contoso Ltd</AccountHolder>
    </AccountInfo>
  </PartnerInfo>
</HTDResponseOrderData>`

func TestParseHTDExtractsEveryAccountInfo(t *testing.T) {
	accounts, err := account.ParseHTD([]byte(htdFixture))
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}

func TestParseHTDRejectsMissingPartnerInfo(t *testing.T) {
	_, err := account.ParseHTD([]byte(`<HTDResponseOrderData/>`))
	assert.Error(t, err)
}

func TestImportIsANoOpOnAnEmptyResult(t *testing.T) {
	repo := memory.NewAccountStore()
	imp := account.NewImporter(repo)

	accounts, err := imp.Import(context.Background(), "conn-1", download.Result{Empty: true}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, accounts)
}

func TestImportSavesEveryDiscoveredAccountWithAGeneratedID(t *testing.T) {
	repo := memory.NewAccountStore()
	imp := account.NewImporter(repo)
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	result := download.Result{Document: []byte(htdFixture)}
	discovered, err := imp.Import(context.Background(), "conn-1", result, now)
	require.NoError(t, err)
	require.Len(t, discovered, 2)

	for _, a := range discovered {
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "conn-1", a.ConnectionID)
		assert.Equal(t, now, a.CreatedAt)
		assert.Equal(t, now, a.UpdatedAt)
	}

	stored, err := repo.ListByConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestImportUpsertsAnExistingAccountByIBANInsteadOfDuplicating(t *testing.T) {
	repo := memory.NewAccountStore()
	imp := account.NewImporter(repo)
	firstRun := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	_, err := imp.Import(context.Background(), "conn-1", download.Result{Document: []byte(htdFixture)}, firstRun)
	require.NoError(t, err)

	secondRun := firstRun.Add(24 * time.Hour)
	_, err = imp.Import(context.Background(), "conn-1", download.Result{Document: []byte(htdFixture)}, secondRun)
	require.NoError(t, err)

	stored, err := repo.ListByConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	for _, a := range stored {
		assert.Equal(t, firstRun, a.CreatedAt)
		assert.Equal(t, secondRun, a.UpdatedAt)
	}
}

func TestImportRejectsMalformedHTDDocument(t *testing.T) {
	repo := memory.NewAccountStore()
	imp := account.NewImporter(repo)

	_, err := imp.Import(context.Background(), "conn-1", download.Result{Document: []byte(`<NotHTD/>`)}, time.Now())
	assert.Error(t, err)
}
