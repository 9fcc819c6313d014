// internal/waitlist/keyedlock.go
package waitlist

import (
	"sync"

	"github.com/google/uuid"
)

// keyedLock hands out one mutex per key. Entries are reference counted and
// dropped when the last holder unlocks, so idle books cost nothing.
type keyedLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedLock) Lock(key uuid.UUID) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size is the number of keys currently held or awaited.
func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
