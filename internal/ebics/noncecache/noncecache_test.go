package noncecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAcceptsAFreshNonce(t *testing.T) {
	c := New()
	require.NoError(t, c.Record("abc123"))
}

func TestRecordRejectsAReplayedNonce(t *testing.T) {
	c := New()
	require.NoError(t, c.Record("abc123"))

	err := c.Record("abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used")
}

func TestRecordTreatsDistinctNoncesIndependently(t *testing.T) {
	c := New()
	require.NoError(t, c.Record("nonce-a"))
	require.NoError(t, c.Record("nonce-b"))

	assert.Error(t, c.Record("nonce-a"))
	assert.Error(t, c.Record("nonce-b"))
}
