// SPDX-License-Identifier: BUSL-1.1
//
// On-disk Store backend over syndtr/goleveldb. The storage model is a
// flat namespaced KV map, so the backend maps directly onto goleveldb's
// native batch and iterator types.
package core

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore wraps a goleveldb database opened at a single directory.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a LevelDB database at dir.
func OpenLevelDBStore(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", dir, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *LevelDBStore) Contains(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *LevelDBStore) Put(key, value []byte) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("storage: key length %d exceeds MaxKeySize", len(key))
	}
	return s.db.Put(key, value, nil)
}

func (s *LevelDBStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *LevelDBStore) Seek(prefix []byte, dir SeekDirection) (Iterator, error) {
	rng := util.BytesPrefix(prefix)
	it := s.db.NewIterator(rng, nil)
	return &levelIterator{it: it, dir: dir, started: false}, nil
}

// Snapshot takes a goleveldb-native snapshot and materializes every key in
// the database into the in-memory overlay Snapshot type, giving callers the same
// dirty-entry API regardless of backend.
func (s *LevelDBStore) Snapshot() (*Snapshot, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	base := make(map[string][]byte)
	it := snap.NewIterator(nil, nil)
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		base[string(k)] = v
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	return &Snapshot{base: base, dirty: make(map[string]*dirtyEntry)}, nil
}

func (s *LevelDBStore) Commit(snap *Snapshot) error {
	batch := new(leveldb.Batch)
	for _, e := range snap.dirtyEntries() {
		if e.state == entryDeleted {
			batch.Delete([]byte(e.key))
		} else {
			batch.Put([]byte(e.key), e.value)
		}
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

type levelIterator struct {
	it      iterator.Iterator
	dir     SeekDirection
	started bool
}

func (li *levelIterator) Next() bool {
	if li.dir == SeekBackward {
		if !li.started {
			li.started = true
			return li.it.Last()
		}
		return li.it.Prev()
	}
	return li.it.Next()
}

func (li *levelIterator) Key() []byte   { return li.it.Key() }
func (li *levelIterator) Value() []byte { return li.it.Value() }
func (li *levelIterator) Release()      { li.it.Release() }
func (li *levelIterator) Err() error    { return li.it.Error() }
