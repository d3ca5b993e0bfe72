// Package boltstore implements history.Backend on a BoltDB file.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultBucket holds the history blobs.
const DefaultBucket = "history"

// Backend stores blobs in one bucket of a BoltDB file.
type Backend struct {
	db     *bolt.DB
	bucket []byte
}

// Option configures the backend.
type Option func(*Backend)

// WithBucket sets a custom bucket name.
func WithBucket(name string) Option {
	return func(b *Backend) {
		b.bucket = []byte(name)
	}
}

// Open opens (or creates) the database file at path.
func Open(path string, opts ...Option) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	b := &Backend{db: db, bucket: []byte(DefaultBucket)}
	for _, opt := range opts {
		opt(b)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return b, nil
}

// Get returns the blob stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		// Bolt values are only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// Put replaces the blob stored under key.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), value)
	})
}

// Delete removes key. Deleting a missing key is a no-op.
func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

// Close releases the database file.
func (b *Backend) Close() error {
	return b.db.Close()
}
