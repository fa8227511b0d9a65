package session

import "sync"

// keyedLock serializes work per key. Entries are reference counted and
// removed once the last holder releases, so the map does not grow with
// the user population.
type keyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for key and returns the release function.
func (k *keyedLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// Size returns the number of keys currently tracked.
func (k *keyedLock) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
