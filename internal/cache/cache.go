// Package cache is a content-addressed store of encoded symbol location
// stores, shared by every index that points at the same directory.
//
// Storage layout:
//
//	loc/v1/{registryHash}/{language}/{xxh3(content)}  ->  envelope bytes
//
// The registry hash covers every query source, so editing a query makes the
// previous entries unreachable. Entries expire through badger's TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/zeebo/xxh3"
)

// DefaultTTL is the lifetime of a cached entry.
const DefaultTTL = 30 * 24 * time.Hour

const keyPrefix = "loc/v1/"

// Cache wraps a badger database. A nil *Cache is valid and always misses.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Zero or less keeps the default.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithLogger sets the logger used for hit and miss diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// Open opens the cache at dir. An empty dir opens an in-memory cache.
func Open(dir string, opts ...Option) (*Cache, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", dir, err)
	}
	c := &Cache{db: db, ttl: DefaultTTL, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Key returns the cache key of a file's contents analyzed with the given
// registry state and language.
func Key(registryHash, language string, src []byte) []byte {
	h := xxh3.New()
	_, _ = h.Write(src)
	return fmt.Appendf(nil, "%s%s/%s/%016x", keyPrefix, registryHash, language, h.Sum64())
}

// Get returns the payload stored under key. A miss returns (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var payload []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.logger.Debug("cache miss", "key", string(key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return payload, true, nil
}

// Put stores payload under key with the configured TTL.
func (c *Cache) Put(ctx context.Context, key, payload []byte) error {
	if c == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, payload).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Len counts live entries. Intended for diagnostics and tests.
func (c *Cache) Len() (int, error) {
	if c == nil {
		return 0, nil
	}
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
