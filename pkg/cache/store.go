package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a response cache backend.
//
// Implementations must be safe for concurrent use. Get must purge an
// entry that is expired at now and report ErrCacheMiss for it, as one
// atomic step with respect to other callers using the same key.
type Store interface {
	Get(ctx context.Context, key string, now time.Time) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	// Layer names the backend in metrics and logs.
	Layer() string
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string, now time.Time) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.IsExpired(now) {
		delete(m.entries, key)
		CacheExpired.Inc()
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set implements Store. The last writer for a key wins.
func (m *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Layer implements Store.
func (m *MemoryStore) Layer() string {
	return "memory"
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Contains reports whether key has an entry, expired or not.
func (m *MemoryStore) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
