// SPDX-License-Identifier: BUSL-1.1
//
// Snapshot isolation over a Store. A Snapshot never mutates
// its backing store directly; every write accumulates in an in-memory
// dirty-entry overlay keyed by entryState (Unchanged/Added/Changed/Deleted)
// until the owner calls Store.Commit.
package core

import "sort"

type entryState byte

const (
	entryUnchanged entryState = iota
	entryAdded
	entryChanged
	entryDeleted
)

type dirtyEntry struct {
	key   string
	value []byte
	state entryState
}

// Snapshot is a point-in-time, copy-on-write view of a Store. Reads check
// the dirty overlay first, then fall through to the immutable base taken
// at snapshot creation.
type Snapshot struct {
	store *MemoryStore // the MemoryStore that created it; nil for LevelDB snapshots
	base  map[string][]byte
	dirty map[string]*dirtyEntry
}

func newSnapshot(store *MemoryStore, base map[string][]byte) *Snapshot {
	return &Snapshot{store: store, base: base, dirty: make(map[string]*dirtyEntry)}
}

// Get checks the dirty overlay before falling through to the snapshot's
// immutable base.
func (s *Snapshot) Get(key []byte) ([]byte, bool) {
	if e, ok := s.dirty[string(key)]; ok {
		if e.state == entryDeleted {
			return nil, false
		}
		return e.value, true
	}
	v, ok := s.base[string(key)]
	return v, ok
}

func (s *Snapshot) Contains(key []byte) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Snapshot) Put(key, value []byte) {
	k := string(key)
	state := entryChanged
	if _, existed := s.base[k]; !existed {
		state = entryAdded
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.dirty[k] = &dirtyEntry{key: k, value: v, state: state}
}

func (s *Snapshot) Delete(key []byte) {
	k := string(key)
	if _, existed := s.base[k]; !existed {
		delete(s.dirty, k) // never committed, never existed: no-op
		return
	}
	s.dirty[k] = &dirtyEntry{key: k, state: entryDeleted}
}

// Seek iterates keys with the given prefix across the merged view
// (base overlaid by dirty), in lexicographic or reverse order.
func (s *Snapshot) Seek(prefix []byte, dir SeekDirection) []KVPair {
	seen := make(map[string]bool)
	var out []KVPair
	for k, v := range s.base {
		if !hasBytePrefix(k, string(prefix)) {
			continue
		}
		seen[k] = true
		if e, ok := s.dirty[k]; ok {
			if e.state == entryDeleted {
				continue
			}
			out = append(out, KVPair{Key: []byte(k), Value: e.value})
			continue
		}
		out = append(out, KVPair{Key: []byte(k), Value: v})
	}
	for k, e := range s.dirty {
		if seen[k] || e.state == entryDeleted || !hasBytePrefix(k, string(prefix)) {
			continue
		}
		out = append(out, KVPair{Key: []byte(k), Value: e.value})
	}
	sort.Slice(out, func(i, j int) bool { return compareKeys(out[i].Key, out[j].Key) < 0 })
	if dir == SeekBackward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// dirtyEntries returns every non-Unchanged entry sorted by key, the order
// Store.Commit must apply them in.
func (s *Snapshot) dirtyEntries() []*dirtyEntry {
	out := make([]*dirtyEntry, 0, len(s.dirty))
	for _, e := range s.dirty {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Discard abandons every pending mutation without touching the store,
// verified by the "block-apply idempotence" property.
func (s *Snapshot) Discard() { s.dirty = make(map[string]*dirtyEntry) }

// Checkpoint captures the current dirty set so a nested unit of work (one
// transaction inside a block) can be rolled back without discarding the
// whole block's mutations. Entries are immutable once stored (Put replaces
// them), so a shallow map copy suffices.
func (s *Snapshot) Checkpoint() map[string]*dirtyEntry {
	saved := make(map[string]*dirtyEntry, len(s.dirty))
	for k, v := range s.dirty {
		saved[k] = v
	}
	return saved
}

// RollbackTo restores the dirty set captured by a Checkpoint, dropping
// every mutation made since.
func (s *Snapshot) RollbackTo(saved map[string]*dirtyEntry) { s.dirty = saved }
