package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Cacher in process memory with TTL support
type MemoryCache struct {
	items   map[string]*memoryItem
	mu      sync.Mutex
	maxSize int
}

// memoryItem represents an item in memory cache
type memoryItem struct {
	value      interface{}
	expiration time.Time
	accessed   time.Time
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: maxSize,
	}
}

// SetHistory stores a benchmark history range
func (mc *MemoryCache) SetHistory(ctx context.Context, symbol string, start, end time.Time, closes []float64, expiration time.Duration) error {
	mc.set(historyKey(symbol, start, end), closes, expiration)
	return nil
}

// GetHistory retrieves a benchmark history range
func (mc *MemoryCache) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	value, ok := mc.get(historyKey(symbol, start, end))
	if !ok {
		return nil, ErrNotFound
	}
	closes, ok := value.([]float64)
	if !ok {
		return nil, ErrNotFound
	}
	return closes, nil
}

// AcquireLock acquires a named lock, returning false when already held
func (mc *MemoryCache) AcquireLock(ctx context.Context, name string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := lockKey(name)
	if item, exists := mc.items[key]; exists && time.Now().Before(item.expiration) {
		return false, nil
	}
	mc.items[key] = &memoryItem{
		value:      true,
		expiration: time.Now().Add(expiration),
		accessed:   time.Now(),
	}
	return true, nil
}

// ReleaseLock releases a named lock
func (mc *MemoryCache) ReleaseLock(ctx context.Context, name string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.items, lockKey(name))
	return nil
}

func (mc *MemoryCache) set(key string, value interface{}, expiration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.items) >= mc.maxSize {
		mc.evictLRU()
	}

	expirationTime := time.Now().Add(expiration)
	if expiration <= 0 {
		expirationTime = time.Now().Add(24 * time.Hour)
	}
	mc.items[key] = &memoryItem{
		value:      value,
		expiration: expirationTime,
		accessed:   time.Now(),
	}
}

func (mc *MemoryCache) get(key string) (interface{}, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, exists := mc.items[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(item.expiration) {
		delete(mc.items, key)
		return nil, false
	}
	item.accessed = time.Now()
	return item.value, true
}

// evictLRU removes the least recently accessed item, caller holds mu
func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldest) {
			oldestKey = key
			oldest = item.accessed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}
