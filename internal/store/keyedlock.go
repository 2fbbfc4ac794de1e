package store

import (
	"sync"
	"time"
)

const defaultLockIdleWindow = time.Hour

// keyedLocks serializes operations per logical save file while letting
// unrelated files proceed in parallel. Entries are created lazily and
// reclaimed when they have been unheld and unused for idleAfter, so the
// registry stays bounded across a long-running watch process.
type keyedLocks struct {
	mu        sync.Mutex
	entries   map[string]*lockEntry
	idleAfter time.Duration
	now       func() time.Time
}

type lockEntry struct {
	mu sync.Mutex

	// holders counts goroutines waiting on or holding mu; both fields are
	// guarded by keyedLocks.mu so check-then-remove in reclaimIdle is
	// atomic with respect to a concurrent Acquire.
	holders  int
	lastUsed time.Time
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		entries:   make(map[string]*lockEntry),
		idleAfter: defaultLockIdleWindow,
		now:       time.Now,
	}
}

// Acquire blocks until the key's lock is held and returns the release
// function. Release is safe to call more than once; only the first call
// has effect, so deferred cleanup can coexist with explicit release.
func (kl *keyedLocks) Acquire(key string) func() {
	kl.mu.Lock()
	entry, ok := kl.entries[key]
	if !ok {
		entry = &lockEntry{}
		kl.entries[key] = entry
	}
	entry.holders++
	entry.lastUsed = kl.now()
	kl.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			kl.mu.Lock()
			entry.holders--
			entry.lastUsed = kl.now()
			kl.mu.Unlock()
		})
	}
}

// reclaimIdle drops registry entries that are unheld and past the idle
// window. It is called opportunistically from cleanup passes rather than a
// dedicated timer. Returns the number of entries removed.
func (kl *keyedLocks) reclaimIdle() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	cutoff := kl.now().Add(-kl.idleAfter)
	removed := 0
	for key, entry := range kl.entries {
		if entry.holders == 0 && entry.lastUsed.Before(cutoff) {
			delete(kl.entries, key)
			removed++
		}
	}
	return removed
}

func (kl *keyedLocks) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.entries)
}
