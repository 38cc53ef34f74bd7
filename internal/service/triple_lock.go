package service

import (
	"fmt"
	"sync"
)

// tripleLock serializes certificate issuance per (student, course,
// institute) triple so the authoritative duplicate check and the insert
// run inside one critical section. Entries are reference counted and
// removed once the last holder releases them.
type tripleLock struct {
	mu    sync.Mutex
	locks map[string]*tripleLockEntry
}

type tripleLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newTripleLock() *tripleLock {
	return &tripleLock{locks: make(map[string]*tripleLockEntry)}
}

func tripleKey(studentID, courseID, instituteID string) string {
	return fmt.Sprintf("%s|%s|%s", studentID, courseID, instituteID)
}

// Lock acquires the mutex for the triple and returns its release func.
func (l *tripleLock) Lock(studentID, courseID, instituteID string) func() {
	key := tripleKey(studentID, courseID, instituteID)

	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &tripleLockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}
