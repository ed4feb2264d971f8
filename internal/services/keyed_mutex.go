package services

import "sync"

// keyedMutex serializes work per string key. Exam assembly locks the
// (userID, subjectName) pair around its read-modify-write of history so two
// concurrent requests for the same pair cannot lose each other's seen
// updates. Locks are never removed; the key space is bounded by active
// user/subject pairs.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns the
// matching unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
