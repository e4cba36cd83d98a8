package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/dailytap/internal/kv"
)

var _ kv.Store = (*DB)(nil)

func (db *DB) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := db.pool.QueryRow(ctx,
		"SELECT value FROM kv WHERE key = $1",
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (db *DB) Set(ctx context.Context, key, value string) error {
	_, err := db.pool.Exec(ctx,
		"INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (db *DB) Remove(ctx context.Context, key string) error {
	if _, err := db.pool.Exec(ctx, "DELETE FROM kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (db *DB) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT key FROM kv WHERE left(key, char_length($1)) = $1 ORDER BY key",
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
