package connection_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/simulator/host"
	"github.com/paynet/ebics-gateway/internal/storage/memory"
	"github.com/paynet/ebics-gateway/pkg/clock"
)

func newSimulatedHost(t *testing.T) string {
	t.Helper()
	h, err := host.New("SIMHOST", bank.NewLedger())
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHandshakeServiceDrivesFullINIHIAHPBCycleAgainstSimulatedHost(t *testing.T) {
	url := newSimulatedHost(t)

	repo := memory.NewConnectionStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	svc := connection.NewHandshakeService(repo, clock.NewFrozen(now))

	ctx := context.Background()
	c, err := svc.Create(ctx, "conn-1", url, "SIMHOST", "PARTNER1", "USER1", "")
	require.NoError(t, err)
	assert.Equal(t, connection.KeyStateNotSent, c.INIState)
	assert.Equal(t, connection.KeyStateNotSent, c.HIAState)
	assert.Equal(t, connection.StatusNotReady, c.Status)

	require.NoError(t, svc.SendINI(ctx, c.ID))
	require.NoError(t, svc.SendHIA(ctx, c.ID))
	require.NoError(t, svc.FetchHPB(ctx, c.ID))

	stored, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, connection.KeyStateSent, stored.INIState)
	assert.Equal(t, connection.KeyStateSent, stored.HIAState)
	assert.Equal(t, connection.StatusReady, stored.Status)
	require.NotNil(t, stored.BankKeys.Authentication)
	require.NotNil(t, stored.BankKeys.Encryption)
	assert.True(t, stored.Ready())
}

func TestFetchHPBFailsWhenINIOrHIANotYetSent(t *testing.T) {
	url := newSimulatedHost(t)

	repo := memory.NewConnectionStore()
	svc := connection.NewHandshakeService(repo, clock.System{})
	ctx := context.Background()

	c, err := svc.Create(ctx, "conn-2", url, "SIMHOST", "PARTNER1", "USER1", "")
	require.NoError(t, err)

	err = svc.FetchHPB(ctx, c.ID)
	assert.Error(t, err)

	stored, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.Ready())
}

func TestRotateResetsHandshakeStateAndGeneratesFreshKeys(t *testing.T) {
	url := newSimulatedHost(t)

	repo := memory.NewConnectionStore()
	svc := connection.NewHandshakeService(repo, clock.System{})
	ctx := context.Background()

	c, err := svc.Create(ctx, "conn-3", url, "SIMHOST", "PARTNER1", "USER1", "")
	require.NoError(t, err)
	require.NoError(t, svc.SendINI(ctx, c.ID))
	require.NoError(t, svc.SendHIA(ctx, c.ID))
	require.NoError(t, svc.FetchHPB(ctx, c.ID))

	before, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Rotate(ctx, c.ID))

	after, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, connection.KeyStateNotSent, after.INIState)
	assert.Equal(t, connection.KeyStateNotSent, after.HIAState)
	assert.Equal(t, connection.StatusNotReady, after.Status)
	assert.False(t, before.Keys.Signature.Equal(after.Keys.Signature))
}
