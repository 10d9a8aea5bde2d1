package distlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing or extending a lock this holder no
// longer owns.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a lock using the best available backend.
// If redisClient is non-nil, uses Redis so processes on different hosts
// exclude each other. Otherwise falls back to a process-local lock.
func NewLock(redisClient *redis.Client, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewLocalLock(key, ttl)
}

// =============================================================================
// Process-local lock (fallback when Redis is not configured)
// =============================================================================
// Keys are shared across every LocalLock in the process. A held key expires
// after its TTL so a crashed holder cannot wedge the key forever.

var (
	localMu   sync.Mutex
	localHeld = map[string]localEntry{}
)

type localEntry struct {
	owner   *LocalLock
	expires time.Time
}

// LocalLock implements DistLock inside a single process.
type LocalLock struct {
	key string
	ttl time.Duration
	now func() time.Time
}

// NewLocalLock creates a process-local lock for key.
func NewLocalLock(key string, ttl time.Duration) *LocalLock {
	return &LocalLock{key: key, ttl: ttl, now: time.Now}
}

// Acquire takes the key if it is free or its previous holder expired.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	localMu.Lock()
	defer localMu.Unlock()
	now := l.now()
	if e, ok := localHeld[l.key]; ok && e.owner != l && now.Before(e.expires) {
		return false, nil
	}
	localHeld[l.key] = localEntry{owner: l, expires: now.Add(l.ttl)}
	return true, nil
}

// Release frees the key if this lock still owns it.
func (l *LocalLock) Release(ctx context.Context) error {
	localMu.Lock()
	defer localMu.Unlock()
	if e, ok := localHeld[l.key]; ok && e.owner == l {
		delete(localHeld, l.key)
		return nil
	}
	return ErrNotHeld
}
