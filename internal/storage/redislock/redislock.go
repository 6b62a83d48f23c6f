// Package redislock is the distributed complement to connection.Locker: a
// per-connection lock held in Redis so that more than one gateway instance
// never runs a connection's handshake, submission, or ingestion
// concurrently. It also caches each connection's bank public keys for a
// short TTL, so a second instance (or this one after a restart) can skip
// re-running HPB just to rediscover keys another instance already fetched.
package redislock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

const (
	keyPrefix     = "gateway:connlock:"
	bankKeyPrefix = "gateway:bankkeys:"
	defaultTTL    = 30 * time.Second
	bankKeyTTL    = 1 * time.Hour
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Client wraps a go-redis connection used for distributed locking and
// bank public-key caching.
type Client struct {
	rdb *redis.Client
}

// cachedBankKeys is the JSON shape stored under bankKeyPrefix+connectionID.
type cachedBankKeys struct {
	AuthModulus  []byte `json:"auth_modulus"`
	AuthExponent []byte `json:"auth_exponent"`
	EncModulus   []byte `json:"enc_modulus"`
	EncExponent  []byte `json:"enc_exponent"`
}

// CacheBankKeys stores connectionID's bank public keys for bankKeyTTL.
func (c *Client) CacheBankKeys(ctx context.Context, connectionID string, authModulus, authExponent, encModulus, encExponent []byte) error {
	data, err := json.Marshal(cachedBankKeys{
		AuthModulus: authModulus, AuthExponent: authExponent,
		EncModulus: encModulus, EncExponent: encExponent,
	})
	if err != nil {
		return errors.Internal("redislock: marshal bank keys: %v", err)
	}
	if err := c.rdb.Set(ctx, bankKeyPrefix+connectionID, data, bankKeyTTL).Err(); err != nil {
		return errors.Transport(err, "redislock: cache bank keys for %s", connectionID)
	}
	return nil
}

// CachedBankKeys returns connectionID's cached bank public keys, if a
// non-expired entry exists.
func (c *Client) CachedBankKeys(ctx context.Context, connectionID string) (authModulus, authExponent, encModulus, encExponent []byte, found bool, err error) {
	data, err := c.rdb.Get(ctx, bankKeyPrefix+connectionID).Bytes()
	if err == redis.Nil {
		return nil, nil, nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, nil, nil, false, errors.Transport(err, "redislock: read cached bank keys for %s", connectionID)
	}

	var cached cachedBankKeys
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil, nil, nil, false, errors.Internal("redislock: unmarshal cached bank keys: %v", err)
	}
	return cached.AuthModulus, cached.AuthExponent, cached.EncModulus, cached.EncExponent, true, nil
}

// New connects to the Redis instance at url (a redis:// or rediss:// URL).
func New(url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Internal("redislock: parse redis url: %v", err)
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Lock is a held distributed lock, released exactly once via Unlock.
type Lock struct {
	client *Client
	key    string
	token  string
}

// TryLock attempts to acquire the lock for connectionID, holding it for
// ttl. It returns ok=false (no error) if another instance already holds
// it — callers should treat that as "skip this tick", not a failure.
func (c *Client) TryLock(ctx context.Context, connectionID string, ttl time.Duration) (*Lock, bool, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key := keyPrefix + connectionID
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Transport(err, "redislock: acquire lock for %s", connectionID)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: c, key: key, token: token}, true, nil
}

// Unlock releases the lock if it is still held by this holder's token,
// a no-op if it already expired or is now held by another holder.
func (l *Lock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return errors.Transport(err, "redislock: release lock %s", l.key)
	}
	return nil
}
