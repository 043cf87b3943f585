package oauth

import "sync"

// lockTable hands out one mutex per key so refreshes for different users
// proceed independently while refreshes for the same user are single-flight.
// Entries are reference-counted and dropped once the last holder releases,
// keeping the table bounded by in-flight refreshes rather than by the user
// population.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until the key's lock is held. It reports whether the caller
// had to wait behind another holder.
func (t *lockTable) Acquire(key string) bool {
	t.mu.Lock()
	entry, ok := t.locks[key]
	if !ok {
		entry = &lockEntry{}
		t.locks[key] = entry
	}
	entry.refs++
	t.mu.Unlock()

	if entry.mu.TryLock() {
		return false
	}
	entry.mu.Lock()
	return true
}

// Release unlocks the key's lock and removes the entry once nobody holds or
// waits on it.
func (t *lockTable) Release(key string) {
	t.mu.Lock()
	entry := t.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()

	entry.mu.Unlock()
}
