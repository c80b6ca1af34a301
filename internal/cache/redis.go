package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cacher on Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(cfg *Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// SetHistory stores a benchmark history range as JSON
func (r *RedisCache) SetHistory(ctx context.Context, symbol string, start, end time.Time, closes []float64, expiration time.Duration) error {
	data, err := json.Marshal(closes)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return r.client.Set(ctx, historyKey(symbol, start, end), data, expiration).Err()
}

// GetHistory retrieves a benchmark history range
func (r *RedisCache) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	data, err := r.client.Get(ctx, historyKey(symbol, start, end)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var closes []float64
	if err := json.Unmarshal(data, &closes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return closes, nil
}

// AcquireLock acquires a named lock via SETNX
func (r *RedisCache) AcquireLock(ctx context.Context, name string, expiration time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(name), "1", expiration).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases a named lock
func (r *RedisCache) ReleaseLock(ctx context.Context, name string) error {
	return r.client.Del(ctx, lockKey(name)).Err()
}

// Close closes the underlying client
func (r *RedisCache) Close() error {
	return r.client.Close()
}
