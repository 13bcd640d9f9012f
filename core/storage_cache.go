// SPDX-License-Identifier: BUSL-1.1
//
// Write-through read cache in front of a Store, backed by
// hashicorp/golang-lru/v2: a cache hit returns immediately, a miss falls
// through to the backing Store and populates the entry, and every write
// invalidates (rather than updates) so a snapshot Commit can never leave a
// stale positive cached.
package core

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of entries kept resident by a CachedStore.
const DefaultCacheSize = 8192

// CachedStore wraps a Store with a bounded LRU read cache.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[string, []byte]
}

// NewCachedStore wraps backing with an LRU cache of the given size.
func NewCachedStore(backing Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backing: backing, cache: c}, nil
}

func (c *CachedStore) Get(key []byte) ([]byte, bool, error) {
	if v, ok := c.cache.Get(string(key)); ok {
		return v, v != nil, nil
	}
	v, ok, err := c.backing.Get(key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.cache.Add(string(key), v)
	} else {
		c.cache.Add(string(key), nil) // negative cache entry
	}
	return v, ok, nil
}

func (c *CachedStore) Contains(key []byte) (bool, error) {
	_, ok, err := c.Get(key)
	return ok, err
}

func (c *CachedStore) Put(key, value []byte) error {
	c.cache.Remove(string(key))
	return c.backing.Put(key, value)
}

func (c *CachedStore) Delete(key []byte) error {
	c.cache.Remove(string(key))
	return c.backing.Delete(key)
}

func (c *CachedStore) Seek(prefix []byte, dir SeekDirection) (Iterator, error) {
	return c.backing.Seek(prefix, dir) // range scans bypass the point cache
}

func (c *CachedStore) Snapshot() (*Snapshot, error) { return c.backing.Snapshot() }

// Commit applies snap to the backing store and invalidates every entry the
// snapshot touched, so the next Get re-populates from the now-durable value.
func (c *CachedStore) Commit(snap *Snapshot) error {
	if err := c.backing.Commit(snap); err != nil {
		return err
	}
	for _, e := range snap.dirtyEntries() {
		c.cache.Remove(e.key)
	}
	return nil
}

func (c *CachedStore) Close() error { return c.backing.Close() }
