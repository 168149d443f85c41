package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mindbuzzer/internal/kv"
)

var _ kv.Store = (*DB)(nil)

func (d *DB) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT value FROM kv_entries WHERE namespace = ? AND entry_key = ?
	`), namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

func (d *DB) Set(ctx context.Context, namespace, key, value string) error {
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO kv_entries (namespace, entry_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, entry_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), namespace, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (d *DB) Delete(ctx context.Context, namespace, key string) error {
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		DELETE FROM kv_entries WHERE namespace = ? AND entry_key = ?
	`), namespace, key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (d *DB) Clear(ctx context.Context, namespace string) error {
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		DELETE FROM kv_entries WHERE namespace = ?
	`), namespace)
	if err != nil {
		return fmt.Errorf("clearing namespace: %w", err)
	}
	return nil
}

func (d *DB) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(`
		SELECT entry_key FROM kv_entries WHERE namespace = ? ORDER BY entry_key
	`), namespace)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
