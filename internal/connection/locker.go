package connection

import "sync"

// Locker hands out one *sync.Mutex per connection ID, so handshake,
// upload, download, and ledger mutations against a single connection never
// run concurrently. The in-memory mutex is a single-process complement to
// the Redis-backed distributed lock used across instances; see
// internal/storage/redislock.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocker builds an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

// For returns the mutex for connectionID, creating it on first use.
func (l *Locker) For(connectionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[connectionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[connectionID] = m
	}
	return m
}
