package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
)

func readyConnectionForBackup(t *testing.T) *Connection {
	t.Helper()
	sig, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	auth, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	enc, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	bankAuth, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)
	bankEnc, err := ebicscrypto.GenerateRSA()
	require.NoError(t, err)

	return &Connection{
		ID:        "conn-backup-1",
		URL:       "https://bank.example/ebics",
		HostID:    "HOST1",
		PartnerID: "PARTNER1",
		UserID:    "USER1",
		SystemID:  "SYS1",
		Keys:      KeyTriple{Signature: sig, Authentication: auth, Encryption: enc},
		BankKeys:  BankKeys{Authentication: &bankAuth.PublicKey, Encryption: &bankEnc.PublicKey},
		INIState:  KeyStateSent,
		HIAState:  KeyStateSent,
		Status:    StatusReady,
	}
}

func TestExportBackupThenImportBackupRestoresConnection(t *testing.T) {
	original := readyConnectionForBackup(t)

	data, err := ExportBackup(original, "correct horse battery staple")
	require.NoError(t, err)

	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	restored, err := ImportBackup(data, "correct horse battery staple", now)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.URL, restored.URL)
	assert.Equal(t, original.HostID, restored.HostID)
	assert.Equal(t, original.PartnerID, restored.PartnerID)
	assert.Equal(t, original.UserID, restored.UserID)
	assert.Equal(t, original.SystemID, restored.SystemID)
	assert.Equal(t, original.INIState, restored.INIState)
	assert.Equal(t, original.HIAState, restored.HIAState)
	assert.Equal(t, original.Status, restored.Status)
	assert.Equal(t, now, restored.CreatedAt)

	assert.True(t, original.Keys.Signature.Equal(restored.Keys.Signature))
	assert.True(t, original.Keys.Authentication.Equal(restored.Keys.Authentication))
	assert.True(t, original.Keys.Encryption.Equal(restored.Keys.Encryption))
	assert.True(t, original.BankKeys.Authentication.Equal(restored.BankKeys.Authentication))
	assert.True(t, original.BankKeys.Encryption.Equal(restored.BankKeys.Encryption))
}

func TestImportBackupRejectsWrongPassphrase(t *testing.T) {
	original := readyConnectionForBackup(t)

	data, err := ExportBackup(original, "correct horse battery staple")
	require.NoError(t, err)

	_, err = ImportBackup(data, "wrong passphrase", time.Now())
	assert.Error(t, err)
}

func TestExportBackupOmitsBankKeysBeforeHPB(t *testing.T) {
	original := readyConnectionForBackup(t)
	original.BankKeys = BankKeys{}
	original.Status = StatusNotReady

	data, err := ExportBackup(original, "pw")
	require.NoError(t, err)

	restored, err := ImportBackup(data, "pw", time.Now())
	require.NoError(t, err)
	assert.Nil(t, restored.BankKeys.Authentication)
	assert.Nil(t, restored.BankKeys.Encryption)
}
