package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTripleLockSerializesSameTriple(t *testing.T) {
	locks := newTripleLock()

	var mu sync.Mutex
	var inCritical int
	var maxConcurrent int

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("stu-1", "crs-1", "inst-1")
			mu.Lock()
			inCritical++
			if inCritical > maxConcurrent {
				maxConcurrent = inCritical
			}
			mu.Unlock()

			mu.Lock()
			inCritical--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxConcurrent)
}

func TestTripleLockIndependentTriples(t *testing.T) {
	locks := newTripleLock()

	releaseA := locks.Lock("stu-1", "crs-1", "inst-1")
	done := make(chan struct{})
	go func() {
		release := locks.Lock("stu-2", "crs-1", "inst-1")
		release()
		close(done)
	}()
	<-done
	releaseA()
}

func TestTripleLockReleaseIsIdempotent(t *testing.T) {
	locks := newTripleLock()

	release := locks.Lock("stu-1", "crs-1", "inst-1")
	release()
	release()

	// The entry is gone once the last holder releases.
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
