package cache

import "context"

// Store is the persistent key/value substrate underneath a Cache.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Get returns the raw value for key. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
