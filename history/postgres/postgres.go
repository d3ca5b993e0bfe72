// Package postgres implements history.Backend on a PostgreSQL key-value table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend stores blobs as JSONB rows keyed by text.
type Backend struct {
	pool      *pgxpool.Pool
	tableName string
}

// Option configures the backend
type Option func(*Backend)

// WithTableName sets a custom table name
func WithTableName(name string) Option {
	return func(b *Backend) {
		b.tableName = name
	}
}

// New creates a new PostgreSQL backend
func New(pool *pgxpool.Pool, opts ...Option) *Backend {
	b := &Backend{
		pool:      pool,
		tableName: "taxhub_kv",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, b.tableName)

	var value []byte
	err := b.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, b.tableName)

	if _, err := b.pool.Exec(ctx, query, key, value, time.Now()); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, b.tableName)
	_, err := b.pool.Exec(ctx, query, key)
	return err
}

// Migrate creates the table if needed.
func (b *Backend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, Migration(b.tableName))
	return err
}

// Migration returns the SQL to create the key-value table
func Migration(tableName string) string {
	if tableName == "" {
		tableName = "taxhub_kv"
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, tableName)
}
