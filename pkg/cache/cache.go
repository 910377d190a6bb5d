// Package cache provides an expiring key/value cache over a pluggable store.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// entry is the envelope written to the store for every cached value.
type entry struct {
	Expiration time.Time       `json:"expiration"`
	Data       json.RawMessage `json:"data"`
}

// Cache stores JSON-encodable values with a per-entry TTL.
// Reads never fail: store and decode errors are logged and reported as a miss.
// Expired entries are removed when they are read.
type Cache struct {
	store Store
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMemory creates a cache backed by a fresh in-memory store.
func NewMemory(opts ...Option) *Cache {
	return New(NewMemoryStore(), opts...)
}

// Get decodes the cached value for key into dst.
// It returns false if the key is missing, expired, or unreadable.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("Cache read failed, treating as miss", "component", "cache", "key", key, "error", err)
		return false
	}
	if !found {
		slog.Debug("Cache miss", "component", "cache", "key", key)
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Warn("Corrupt cache entry, removing", "component", "cache", "key", key, "error", err)
		c.Delete(ctx, key)
		return false
	}

	if !c.now().Before(e.Expiration) {
		slog.Debug("Cache expired", "component", "cache", "key", key, "expired_at", e.Expiration)
		c.Delete(ctx, key)
		return false
	}

	if err := json.Unmarshal(e.Data, dst); err != nil {
		slog.Warn("Failed to decode cached value", "component", "cache", "key", key, "error", err)
		return false
	}

	slog.Debug("Cache hit", "component", "cache", "key", key, "ttl_remaining", e.Expiration.Sub(c.now()))
	return true
}

// Set stores value under key for ttl. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to encode value for cache", "component", "cache", "key", key, "error", err)
		return
	}

	raw, err := json.Marshal(entry{
		Data:       data,
		Expiration: c.now().Add(ttl),
	})
	if err != nil {
		slog.Warn("Failed to encode cache entry", "component", "cache", "key", key, "error", err)
		return
	}

	if err := c.store.Set(ctx, key, raw); err != nil {
		slog.Warn("Cache write failed", "component", "cache", "key", key, "error", err)
		return
	}
	slog.Debug("Cache write", "component", "cache", "key", key, "ttl", ttl)
}

// Delete removes key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		slog.Warn("Cache delete failed", "component", "cache", "key", key, "error", err)
	}
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
	}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores a copy of value.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = v
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of stored keys, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
