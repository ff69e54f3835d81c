// Package boltstore implements store.Store on a local bbolt file. It backs
// the request-log archive so diagnostics survive agent restarts without any
// external dependency.
package boltstore

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

const defaultBucket = "archive"

// Store is a bbolt-backed store.Store. A single bucket holds all keys.
type Store struct {
	db     *bolt.DB
	bucket []byte
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithBucket overrides the bucket name. Useful when several archives share
// one database file.
func WithBucket(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.bucket = []byte(name)
		}
	}
}

// Open opens (creating if needed) a bbolt database at path. The open waits
// at most one second for the file lock so a second agent instance fails
// fast instead of hanging.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "boltstore", "Open", "database path")
	}

	s := &Store{bucket: []byte(defaultBucket)}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore", "Open", "open database")
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(s.bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "boltstore", "Open", "create bucket")
	}

	s.db = db
	return s, nil
}

// Put stores data under key, overwriting any existing value.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidKey, "boltstore", "Put", "validate key")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
	if err != nil {
		return errors.Wrap(err, "boltstore", "Put", "write key")
	}
	return nil
}

// Get retrieves the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return errors.ErrKeyNotFound
		}
		// bbolt values are only valid inside the transaction.
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "boltstore", "Get", "read key")
	}
	return out, nil
}

// List returns the keys with the given prefix, sorted. bbolt cursors
// iterate in key order, so no extra sort is needed.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	keys := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore", "List", "scan keys")
	}
	return keys, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrap(err, "boltstore", "Delete", "delete key")
	}
	return nil
}

// Close closes the database. Further calls on the store fail with
// ErrStoreClosed. Close is idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// ready rejects operations on a closed store or cancelled context before
// touching the database.
func (s *Store) ready(ctx context.Context) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
