package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent or expired
var ErrNotFound = errors.New("cache: key not found")

// Cacher defines the cache operations used by the pipeline: benchmark
// price history caching and the per-strategy promotion lock
type Cacher interface {
	// Benchmark history
	SetHistory(ctx context.Context, symbol string, start, end time.Time, closes []float64, expiration time.Duration) error
	GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]float64, error)

	// Locks
	AcquireLock(ctx context.Context, name string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

// Config represents cache configuration
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCacher creates a Redis cache when enabled, otherwise an in-memory one
func NewCacher(cfg *Config) (Cacher, error) {
	if cfg != nil && cfg.Enabled {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(0), nil
}

// historyKey builds the cache key for a benchmark history range
func historyKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("history:%s:%s:%s", symbol, start.Format("20060102"), end.Format("20060102"))
}

// lockKey builds the cache key for a named lock
func lockKey(name string) string {
	return "lock:" + name
}
