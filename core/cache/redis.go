package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/propflow/propflow/core/errs"
)

// RedisBackend stores entries in a Redis database, for workflows that
// share memoized results between processes. It is safe for concurrent
// use.
type RedisBackend struct {
	client *redis.Client
	ctx    context.Context
}

// RedisConfig configures a RedisBackend.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis database index. Use a dedicated index: the
	// backend assumes it owns the keyspace it writes.
	DB int
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping %s: %v: %w", cfg.Addr, err, errs.ErrBackend)
	}
	return &RedisBackend{client: client, ctx: ctx}, nil
}

// Close releases the client.
func (b *RedisBackend) Close() error { return b.client.Close() }

// Contains implements Backend.
func (b *RedisBackend) Contains(key string) (bool, error) {
	n, err := b.client.Exists(b.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %q: %v: %w", key, err, errs.ErrBackend)
	}
	return n > 0, nil
}

// Insert implements Backend.
func (b *RedisBackend) Insert(key string, value []byte) error {
	if err := b.client.Set(b.ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %q: %v: %w", key, err, errs.ErrBackend)
	}
	return nil
}

// At implements Backend.
func (b *RedisBackend) At(key string) ([]byte, error) {
	v, err := b.client.Get(b.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cache key %q: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %v: %w", key, err, errs.ErrBackend)
	}
	return v, nil
}

// Erase implements Backend.
func (b *RedisBackend) Erase(key string) error {
	if err := b.client.Del(b.ctx, key).Err(); err != nil {
		return fmt.Errorf("del %q: %v: %w", key, err, errs.ErrBackend)
	}
	return nil
}

// ErasePrefix implements Backend by scanning for matching keys.
func (b *RedisBackend) ErasePrefix(prefix string) error {
	iter := b.client.Scan(b.ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(b.ctx) {
		if err := b.client.Del(b.ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("del %q: %v: %w", iter.Val(), err, errs.ErrBackend)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %q: %v: %w", prefix, err, errs.ErrBackend)
	}
	return nil
}

// Backup implements Backend by asking the server for a background
// save.
func (b *RedisBackend) Backup() error {
	if err := b.client.BgSave(b.ctx).Err(); err != nil {
		return fmt.Errorf("bgsave: %v: %w", err, errs.ErrBackend)
	}
	return nil
}

// Dump implements Backend. The server owns the memory, so dumping is
// the same background save as Backup.
func (b *RedisBackend) Dump() error { return b.Backup() }
