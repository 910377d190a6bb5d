package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const (
	// cacheDirPerms is the permission for cache directories.
	cacheDirPerms = 0o700
	// cacheFilePerms is the permission for cache files.
	cacheFilePerms = 0o600
)

// diskRecord is the on-disk file format. The key is kept so that a hash
// collision reads as a miss instead of another key's value.
type diskRecord struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// DiskStore persists each key as a JSON file in a directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	cleanPath := filepath.Clean(dir)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("cache directory must be absolute path")
	}
	if err := os.MkdirAll(cleanPath, cacheDirPerms); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	slog.Debug("Disk cache ready", "component", "cache", "dir", cleanPath)
	return &DiskStore{dir: cleanPath}, nil
}

// Dir returns the directory backing the store.
func (d *DiskStore) Dir() string {
	return d.dir
}

// path returns the file path for key.
func (d *DiskStore) path(key string) string {
	return filepath.Join(d.dir, fmt.Sprintf("%016x.json", xxhash.Sum64String(key)))
}

// Get loads the value for key. Unreadable files are reported as misses.
func (d *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := d.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache file: %w", err)
	}

	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Debug("Failed to decode disk cache file", "component", "cache", "error", err, "path", path)
		return nil, false, nil
	}
	if rec.Key != key {
		slog.Debug("Disk cache key mismatch", "component", "cache", "want", key, "got", rec.Key)
		return nil, false, nil
	}
	return rec.Value, true, nil
}

// Set writes the value for key atomically.
func (d *DiskStore) Set(_ context.Context, key string, value []byte) error {
	data, err := json.Marshal(diskRecord{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("encoding cache data: %w", err)
	}

	path := d.path(key)

	// Each writer gets its own temp file so concurrent Sets of one key
	// never share a partially written file.
	tmp, err := os.CreateTemp(d.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Chmod(cacheFilePerms); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("setting cache file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Delete removes the file for key.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(d.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}
