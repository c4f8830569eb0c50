// Package cache keeps oracle recognition results across notes and across
// process restarts.
//
// A Store maps a key to an opaque string value. Three implementations are
// provided:
//   - memoryStore: in-memory only, used in tests and when no path is configured.
//   - boltStore:   embedded key-value store (bbolt), used in production.
//   - s3fifoStore: bounded S3-FIFO layer in front of either of the above.
//
// Keys are SHA-256 digests and values hold labels and offsets only, so no
// note text is ever written to disk.
package cache

import (
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"clinical-deid/internal/logger"
)

// Store is the recognition cache interface.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns the cached value for key, if present.
	Get(key string) (value string, ok bool)

	// Set stores key → value. Overwrites any existing entry silently.
	Set(key, value string)

	// Delete removes key. A no-op if the key is absent.
	Delete(key string)

	// Close releases any resources held by the store (e.g. file handles).
	Close() error
}

// Open returns the store described by path and capacity. An empty path
// gives an in-memory store. A positive capacity bounds the store with an
// S3-FIFO layer. If the bbolt file cannot be opened, Open logs a warning
// and falls back to memory rather than failing startup.
func Open(path string, capacity int, log *logger.Logger) Store {
	var backing Store = NewMemory()
	if path != "" {
		b, err := OpenBolt(path, log)
		if err != nil {
			log.Warnf("cache_open", "falling back to memory cache: %v", err)
		} else {
			backing = b
		}
	}
	if capacity > 0 {
		return NewS3FIFO(backing, capacity, log)
	}
	return backing
}

// --- memoryStore ---------------------------------------------------------

type memoryStore struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewMemory returns a thread-safe in-memory Store.
func NewMemory() Store {
	return &memoryStore{store: make(map[string]string)}
}

func (c *memoryStore) Get(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryStore) Set(key, value string) {
	c.mu.Lock()
	c.store[key] = value
	c.mu.Unlock()
}

func (c *memoryStore) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryStore) Close() error { return nil }

// --- boltStore -----------------------------------------------------------

const boltBucket = "oracle_spans"

type boltStore struct {
	db  *bolt.DB
	log *logger.Logger
}

// OpenBolt opens (or creates) the bbolt database at path and ensures the
// bucket exists.
func OpenBolt(path string, log *logger.Logger) (Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt cache %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bbolt bucket: %w", err)
	}

	log.Infof("cache_open", "persistent cache opened at %s", path)
	return &boltStore{db: db, log: log}, nil
}

func (c *boltStore) Get(key string) (string, bool) {
	var value string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		c.log.Warnf("cache_get", "bbolt get error: %v", err)
		return "", false
	}
	return value, value != ""
}

func (c *boltStore) Set(key, value string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", boltBucket)
		}
		return b.Put([]byte(key), []byte(value))
	}); err != nil {
		c.log.Warnf("cache_set", "bbolt set error: %v", err)
	}
}

func (c *boltStore) Delete(key string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		c.log.Debugf("cache_delete", "bbolt delete error: %v", err)
	}
}

func (c *boltStore) Close() error {
	return c.db.Close()
}
