package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocksMutualExclusion(t *testing.T) {
	kl := newKeyedLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := kl.Acquire("Amazon.d2s")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedLocksDistinctKeysDoNotBlock(t *testing.T) {
	kl := newKeyedLocks()

	releaseA := kl.Acquire("Amazon.d2s")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := kl.Acquire("Sorc.d2s")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acquire on a distinct key blocked behind an unrelated held lock")
	}
}

func TestKeyedLocksReleaseIsIdempotent(t *testing.T) {
	kl := newKeyedLocks()

	release := kl.Acquire("Amazon.d2s")
	release()
	release()

	// A double release must not have unlocked the entry for someone else
	// twice; a fresh acquire must still work.
	release2 := kl.Acquire("Amazon.d2s")
	release2()
}

func TestKeyedLocksReclaimIdle(t *testing.T) {
	kl := newKeyedLocks()
	current := time.Now()
	kl.now = func() time.Time { return current }

	release := kl.Acquire("Amazon.d2s")
	release()
	release2 := kl.Acquire("Sorc.d2s")
	release2()
	require.Equal(t, 2, kl.size())

	// Inside the idle window nothing is reclaimed.
	assert.Equal(t, 0, kl.reclaimIdle())
	assert.Equal(t, 2, kl.size())

	current = current.Add(kl.idleAfter + time.Minute)
	assert.Equal(t, 2, kl.reclaimIdle())
	assert.Equal(t, 0, kl.size())
}

func TestKeyedLocksHeldEntriesSurviveReclaim(t *testing.T) {
	kl := newKeyedLocks()
	current := time.Now()
	kl.now = func() time.Time { return current }

	release := kl.Acquire("Amazon.d2s")
	current = current.Add(kl.idleAfter + time.Minute)

	assert.Equal(t, 0, kl.reclaimIdle())
	assert.Equal(t, 1, kl.size())

	release()
	current = current.Add(kl.idleAfter + time.Minute)
	assert.Equal(t, 1, kl.reclaimIdle())
	assert.Equal(t, 0, kl.size())
}

func TestKeyedLocksReacquireAfterReclaim(t *testing.T) {
	kl := newKeyedLocks()
	current := time.Now()
	kl.now = func() time.Time { return current }

	release := kl.Acquire("Amazon.d2s")
	release()
	current = current.Add(kl.idleAfter + time.Minute)
	require.Equal(t, 1, kl.reclaimIdle())

	// Reclaim must not leave the key unusable.
	release2 := kl.Acquire("Amazon.d2s")
	release2()
	assert.Equal(t, 1, kl.size())
}
