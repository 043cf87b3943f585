package secrets

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and development. Values are
// not persisted and not encrypted; wrap with SealedStore when that matters.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, namespace, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[namespace+":"+account]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(_ context.Context, namespace, account, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[namespace+":"+account] = value
	return nil
}

func (m *MemoryStore) Has(_ context.Context, namespace, account string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.data[namespace+":"+account]
	return ok, nil
}
