package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// Redis is a KV backed by a Redis server. Every key is namespaced by prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a Redis KV.
type RedisOption func(*Redis)

// WithPrefix namespaces all keys.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "leadpulse:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}
	return NewRedis(client, opts...), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// DeleteMatching scans the prefix namespace. The substring is matched in Go
// rather than as a glob so callers never need to escape pattern characters.
func (r *Redis) DeleteMatching(ctx context.Context, substr string) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return n, err
		}
		var doomed []string
		for _, k := range keys {
			if strings.Contains(strings.TrimPrefix(k, r.prefix), substr) {
				doomed = append(doomed, k)
			}
		}
		if len(doomed) > 0 {
			removed, err := r.client.Del(ctx, doomed...).Result()
			if err != nil {
				return n, err
			}
			n += int(removed)
		}
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
