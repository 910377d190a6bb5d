package testutil

import (
	"context"
	"sort"
	"sync"
)

// MockStore implements cache.Store for testing.
// Errors can be injected per operation.
type MockStore struct {
	entries   map[string][]byte
	GetErr    error
	SetErr    error
	DeleteErr error
	mu        sync.RWMutex
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[string][]byte),
	}
}

// Get returns the raw bytes stored under key.
func (m *MockStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set stores raw bytes under key.
func (m *MockStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (m *MockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.entries, key)
	return nil
}

// Has reports whether key is present, expired or not.
func (m *MockStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (m *MockStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
