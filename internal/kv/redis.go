package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores keys as plain strings under a namespace.
type Redis struct {
	rdb       *redis.Client
	namespace string
}

// OpenRedis connects to the server at url (redis://...) and checks it answers.
func OpenRedis(ctx context.Context, url, namespace string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedis(rdb, namespace), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, namespace string) *Redis {
	return &Redis{rdb: rdb, namespace: namespace}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.namespace+key).Err(); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (r *Redis) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	full := r.namespace + prefix
	keys := make([]string, 0)
	iter := r.rdb.Scan(ctx, 0, scanPattern(full), 100).Iterator()
	for iter.Next(ctx) {
		if k := iter.Val(); strings.HasPrefix(k, full) {
			keys = append(keys, strings.TrimPrefix(k, r.namespace))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// scanPattern matches everything sharing the literal part of prefix. The
// exact prefix test happens client side, so glob characters in ids are safe.
func scanPattern(prefix string) string {
	if i := strings.IndexAny(prefix, `*?[]\`); i >= 0 {
		prefix = prefix[:i]
	}
	return prefix + "*"
}
