// Package noncecache guards against replay of EBICS transaction nonces
// within a single process lifetime, backed by an in-process TTL cache so
// entries expire without an explicit sweep.
package noncecache

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

const (
	defaultTTL     = 24 * time.Hour
	cleanupTick    = 1 * time.Hour
	nonceKeyPrefix = "nonce:"
)

// Cache records nonces seen on outbound requests so a retried request
// cannot be mistaken for a bank-initiated replay.
type Cache struct {
	store *cache.Cache
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{store: cache.New(defaultTTL, cleanupTick)}
}

// Record registers nonce as used, returning a ProtocolError if it was
// already seen.
func (c *Cache) Record(nonce string) error {
	key := nonceKeyPrefix + nonce
	if _, found := c.store.Get(key); found {
		return errors.Protocol("", "", "ebics: nonce %s already used", nonce)
	}
	c.store.Set(key, struct{}{}, cache.DefaultExpiration)
	return nil
}
