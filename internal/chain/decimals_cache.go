package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DecimalsCache stores mint decimals. Decimals never change after a mint is
// created, so entries do not expire.
type DecimalsCache interface {
	Get(ctx context.Context, mint string) (uint8, bool, error)
	Set(ctx context.Context, mint string, decimals uint8) error
}

// MemoryDecimalsCache is a process-local DecimalsCache.
type MemoryDecimalsCache struct {
	m sync.Map // mint -> uint8
}

// NewMemoryDecimalsCache creates an empty cache.
func NewMemoryDecimalsCache() *MemoryDecimalsCache {
	return &MemoryDecimalsCache{}
}

// Get returns cached decimals.
func (c *MemoryDecimalsCache) Get(_ context.Context, mint string) (uint8, bool, error) {
	v, ok := c.m.Load(mint)
	if !ok {
		return 0, false, nil
	}
	return v.(uint8), true, nil
}

// Set stores decimals.
func (c *MemoryDecimalsCache) Set(_ context.Context, mint string, decimals uint8) error {
	c.m.Store(mint, decimals)
	return nil
}

// RedisDecimalsCache shares decimals across restarts through Redis,
// fronted by an in-process map.
type RedisDecimalsCache struct {
	client redis.UniversalClient
	prefix string
	local  MemoryDecimalsCache
}

// NewRedisDecimalsCache creates a cache storing keys under "<prefix>:mint:decimals:".
func NewRedisDecimalsCache(client redis.UniversalClient, prefix string) *RedisDecimalsCache {
	return &RedisDecimalsCache{client: client, prefix: prefix}
}

func (c *RedisDecimalsCache) key(mint string) string {
	return fmt.Sprintf("%s:mint:decimals:%s", c.prefix, mint)
}

// Get checks the local map, then Redis.
func (c *RedisDecimalsCache) Get(ctx context.Context, mint string) (uint8, bool, error) {
	if d, ok, _ := c.local.Get(ctx, mint); ok {
		return d, true, nil
	}

	v, err := c.client.Get(ctx, c.key(mint)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get decimals: %w", err)
	}

	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached decimals %q: %w", v, err)
	}
	d := uint8(n)
	c.local.Set(ctx, mint, d)
	return d, true, nil
}

// Set writes to Redis and the local map.
func (c *RedisDecimalsCache) Set(ctx context.Context, mint string, decimals uint8) error {
	c.local.Set(ctx, mint, decimals)
	if err := c.client.Set(ctx, c.key(mint), strconv.Itoa(int(decimals)), 0).Err(); err != nil {
		return fmt.Errorf("redis set decimals: %w", err)
	}
	return nil
}
