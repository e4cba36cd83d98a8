// Package kv is the string key-value storage the game persists to. Values are
// opaque strings, usually JSON documents. Backends: memory, SQLite, Redis and
// Postgres (see package db).
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store defines the persistence interface.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// ListKeys returns every key starting with prefix, sorted.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Pinger is implemented by backends that hold a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prefixed is a view of a Store under a fixed key prefix. Keys passed in and
// returned are relative to the prefix.
type Prefixed struct {
	store  Store
	prefix string
}

// WithPrefix scopes s to keys starting with prefix.
func WithPrefix(s Store, prefix string) *Prefixed {
	return &Prefixed{store: s, prefix: prefix}
}

// PlayerPrefix is the namespace holding one player's keys.
func PlayerPrefix(playerID string) string {
	return "player:" + playerID + ":"
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}

func (p *Prefixed) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.store.ListKeys(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, p.prefix))
	}
	return out, nil
}
