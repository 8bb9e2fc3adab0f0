package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	ErrCacheNotFound = errors.New("cache entry not found")
	ErrCacheExpired  = errors.New("cache entry expired")
)

const defaultCleanupInterval = 5 * time.Minute

// cacheEntry represents a single cache entry with expiration
type cacheEntry struct {
	value     []byte // JSON-encoded value
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-memory implementation of the Cache interface
type MemoryCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex

	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates a new in-memory cache with background cleanup
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithInterval(defaultCleanupInterval)
}

// NewMemoryCacheWithInterval creates an in-memory cache sweeping expired
// entries every interval. A non-positive interval disables the sweeper.
func NewMemoryCacheWithInterval(interval time.Duration) *MemoryCache {
	cache := &MemoryCache{
		data:   make(map[string]*cacheEntry),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if interval > 0 {
		go cache.cleanup(interval)
	} else {
		close(cache.done)
	}

	return cache
}

// Set stores a value in the cache with the specified TTL.
// A zero TTL keeps the entry until it is deleted or cleared.
func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	entry := &cacheEntry{value: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = entry

	return nil
}

// Get retrieves a value from the cache and unmarshals it into dest
func (m *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return ErrCacheNotFound
	}

	if entry.expired(time.Now()) {
		m.mu.Lock()
		// Only drop it if nobody replaced it in between
		if cur, ok := m.data[key]; ok && cur == entry {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return ErrCacheExpired
	}

	return json.Unmarshal(entry.value, dest)
}

// Delete removes a single entry
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Clear drops all entries
func (m *MemoryCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]*cacheEntry)
	return nil
}

// Len returns the number of stored entries
func (m *MemoryCache) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

// Close stops the background sweeper
func (m *MemoryCache) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.done
	return nil
}

// cleanup runs periodically to remove expired entries
func (m *MemoryCache) cleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *MemoryCache) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := 0
	for key, entry := range m.data {
		if entry.expired(now) {
			delete(m.data, key)
			cleaned++
		}
	}
	return cleaned
}
