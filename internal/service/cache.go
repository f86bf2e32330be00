package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by GetInt for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// CounterCache is the explicit TTL cache injected into services that keep
// derived counters (unread badges). Callers own invalidation; the TTL bounds
// staleness when they get it wrong.
type CounterCache interface {
	GetInt(ctx context.Context, key string) (int, error)
	SetInt(ctx context.Context, key string, value int, ttl time.Duration) error
	// DecrClamped decrements by delta, clamped at zero. Absent keys stay
	// absent (the next read recomputes).
	DecrClamped(ctx context.Context, key string, delta int) error
	Delete(ctx context.Context, key string) error
}

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) GetInt(ctx context.Context, key string) (int, error) {
	v, err := c.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	return v, err
}

func (c *RedisCache) SetInt(ctx context.Context, key string, value int, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) DecrClamped(ctx context.Context, key string, delta int) error {
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return err
	}
	v, err := c.rdb.DecrBy(ctx, key, int64(delta)).Result()
	if err != nil {
		return err
	}
	if v < 0 {
		// Decrement raced a recompute; clamp rather than go negative.
		return c.rdb.Set(ctx, key, 0, redis.KeepTTL).Err()
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

// MemoryCache is the in-process implementation used in tests and single-node
// development.
type MemoryCache struct {
	mu      sync.Mutex
	values  map[string]int
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values:  make(map[string]int),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryCache) GetInt(ctx context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expires[key]; ok && c.now().After(exp) {
		delete(c.values, key)
		delete(c.expires, key)
	}
	v, ok := c.values[key]
	if !ok {
		return 0, ErrCacheMiss
	}
	return v, nil
}

func (c *MemoryCache) SetInt(ctx context.Context, key string, value int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	if ttl > 0 {
		c.expires[key] = c.now().Add(ttl)
	} else {
		delete(c.expires, key)
	}
	return nil
}

func (c *MemoryCache) DecrClamped(ctx context.Context, key string, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return nil
	}
	v -= delta
	if v < 0 {
		v = 0
	}
	c.values[key] = v
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.expires, key)
	return nil
}
