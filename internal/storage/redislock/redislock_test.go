package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/paynet/ebics-gateway/internal/storage/redislock"
)

func newTestClient(t *testing.T) *redislock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := redislock.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTryLockAcquiresAndBlocksSecondHolder(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	lock, ok, err := c.TryLock(ctx, "conn-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, lock)

	_, ok, err = c.TryLock(ctx, "conn-1", time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnlockReleasesForOtherHolders(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	lock, ok, err := c.TryLock(ctx, "conn-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Unlock(ctx))

	_, ok, err = c.TryLock(ctx, "conn-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnlockTwiceIsHarmless(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	lock, ok, err := c.TryLock(ctx, "conn-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Unlock(ctx))
	require.NoError(t, lock.Unlock(ctx))
}

func TestDifferentConnectionsLockIndependently(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.TryLock(ctx, "conn-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.TryLock(ctx, "conn-2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachedBankKeysMissesBeforeAnythingIsCached(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, _, _, _, found, err := c.CachedBankKeys(ctx, "conn-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCacheBankKeysThenCachedBankKeysRoundTrips(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	authMod, authExp := []byte{1, 2, 3}, []byte{1, 0, 1}
	encMod, encExp := []byte{4, 5, 6}, []byte{1, 0, 1}

	require.NoError(t, c.CacheBankKeys(ctx, "conn-1", authMod, authExp, encMod, encExp))

	gotAuthMod, gotAuthExp, gotEncMod, gotEncExp, found, err := c.CachedBankKeys(ctx, "conn-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, authMod, gotAuthMod)
	require.Equal(t, authExp, gotAuthExp)
	require.Equal(t, encMod, gotEncMod)
	require.Equal(t, encExp, gotEncExp)
}
