package vireo

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache is the interface for caching query results.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// EncodeRows serializes result rows for storage in a Cache.
func EncodeRows(rows []map[string]Value) ([]byte, error) {
	return msgpack.Marshal(rows)
}

// DecodeRows deserializes rows previously encoded with EncodeRows.
func DecodeRows(data []byte) ([]map[string]Value, error) {
	var rows []map[string]Value
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// MemCache is a minimal in-process Cache backed by a map. It honors TTLs
// lazily on read and is safe for concurrent use. Intended for tests and
// single-process deployments.
type MemCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time // zero means no expiry
}

// NewMemCache returns an empty MemCache.
func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]memEntry)}
}

// Get implements Cache.
func (c *MemCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	return e.data, nil
}

// Set implements Cache.
func (c *MemCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{data: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.
func (c *MemCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memEntry)
	c.mu.Unlock()
	return nil
}
