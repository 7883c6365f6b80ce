package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keys of the books read-through cache.
const (
	CacheKeyAllBooks = "all_books"
	CacheKeyStats    = "stats"
)

func CacheKeyBook(id string) string {
	return "id:" + id
}

func CacheKeyAuthor(author string) string {
	return "author:" + author
}

// Ensure both caches implement BookCacher.
var (
	_ BookCacher = (*redisBookCache)(nil)
	_ BookCacher = (*noopBookCache)(nil)
)

// BookCacher describes the read-through cache placed in front of the storage.
// Get reports a miss with false and a nil error.
type BookCacher interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Purge(ctx context.Context) error
}

// redisBookCache stores json encoded entries under a common keys prefix.
type redisBookCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBookCache provides a redis-based cache. A zero ttl keeps entries until invalidation.
func NewRedisBookCache(client *redis.Client, prefix string, ttl time.Duration) BookCacher {
	return &redisBookCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *redisBookCache) key(k string) string {
	return c.prefix + k
}

// Get decodes the cached entry into dst.
func (c *redisBookCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: failed to get %s: %w", key, err)
	}
	if err = json.Unmarshal(val, dst); err != nil {
		return false, fmt.Errorf("cache: failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores the json encoded value.
func (c *redisBookCache) Set(ctx context.Context, key string, value interface{}) error {
	val, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to encode %s: %w", key, err)
	}
	if err = c.client.Set(ctx, c.key(key), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set %s: %w", key, err)
	}
	return nil
}

// Delete evicts the given entries.
func (c *redisBookCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete entries: %w", err)
	}
	return nil
}

// Purge evicts every entry under the cache prefix. Keys are found with SCAN
// and removed with UNLINK so that redis frees their memory asynchronously.
func (c *redisBookCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: failed to scan entries: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: failed to purge entries: %w", err)
	}
	return nil
}

// noopBookCache is used when caching is disabled. Every lookup misses.
type noopBookCache struct{}

func NewNoopBookCache() BookCacher {
	return &noopBookCache{}
}

func (noopBookCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (noopBookCache) Set(context.Context, string, interface{}) error { return nil }
func (noopBookCache) Delete(context.Context, ...string) error { return nil }
func (noopBookCache) Purge(context.Context) error { return nil }
