package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a single-process Locker with the same lease semantics as
// RedisLocker.  It backs local runs and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryEntry), now: time.Now}
}

// TryLock takes the lock when it is free or its lease ran out.
func (l *MemoryLocker) TryLock(_ context.Context, key, token string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.locks[key]; ok && now.Before(cur.expiresAt) {
		return false, nil
	}
	l.locks[key] = memoryEntry{token: token, expiresAt: now.Add(lease)}
	return true, nil
}

// Unlock releases the lock if token owns an unexpired lease.
func (l *MemoryLocker) Unlock(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[key]
	if !ok || cur.token != token {
		return false, nil
	}
	delete(l.locks, key)
	return l.now().Before(cur.expiresAt), nil
}
