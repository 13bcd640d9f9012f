// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"bytes"
	"fmt"
	"testing"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get([]byte("k1"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
	if err := s.Delete([]byte("k1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get([]byte("k1")); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestMemoryStoreSeekOrder(t *testing.T) {
	s := NewMemoryStore()
	keys := []string{"p/3", "p/1", "q/1", "p/2"}
	for _, k := range keys {
		if err := s.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	it, err := s.Seek([]byte("p/"), SeekForward)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	it.Release()
	want := []string{"p/1", "p/2", "p/3"}
	if len(got) != len(want) {
		t.Fatalf("seek returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("seek order %v, want %v", got, want)
		}
	}

	it, err = s.Seek([]byte("p/"), SeekBackward)
	if err != nil {
		t.Fatalf("reverse seek: %v", err)
	}
	got = got[:0]
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	it.Release()
	if got[0] != "p/3" || got[2] != "p/1" {
		t.Fatalf("reverse order %v", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put([]byte("k"), []byte("before")); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// A write to the backing store after the snapshot must be invisible.
	if err := s.Put([]byte("k"), []byte("after")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, _ := snap.Get([]byte("k")); string(v) != "before" {
		t.Fatalf("snapshot observed concurrent write: %q", v)
	}
	// A snapshot write is invisible to the store until commit.
	snap2, _ := s.Snapshot()
	snap2.Put([]byte("x"), []byte("pending"))
	if _, ok, _ := s.Get([]byte("x")); ok {
		t.Fatalf("uncommitted snapshot write leaked into the store")
	}
	snap2.Discard()
	if err := s.Commit(snap2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok, _ := s.Get([]byte("x")); ok {
		t.Fatalf("discarded write still committed")
	}
}

func TestSnapshotCommitFlushesDirtyEntries(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put([]byte("keep"), []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put([]byte("drop"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap, _ := s.Snapshot()
	snap.Put([]byte("keep"), []byte("new"))
	snap.Put([]byte("add"), []byte("v"))
	snap.Delete([]byte("drop"))
	if err := s.Commit(snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if v, _, _ := s.Get([]byte("keep")); string(v) != "new" {
		t.Fatalf("changed entry not flushed: %q", v)
	}
	if _, ok, _ := s.Get([]byte("add")); !ok {
		t.Fatalf("added entry not flushed")
	}
	if _, ok, _ := s.Get([]byte("drop")); ok {
		t.Fatalf("deleted entry survived commit")
	}
}

func TestSnapshotCheckpointRollback(t *testing.T) {
	s := NewMemoryStore()
	snap, _ := s.Snapshot()
	snap.Put([]byte("a"), []byte("1"))
	saved := snap.Checkpoint()
	snap.Put([]byte("b"), []byte("2"))
	snap.Delete([]byte("a"))
	snap.RollbackTo(saved)
	if v, ok := snap.Get([]byte("a")); !ok || string(v) != "1" {
		t.Fatalf("rollback lost pre-checkpoint write")
	}
	if _, ok := snap.Get([]byte("b")); ok {
		t.Fatalf("rollback kept post-checkpoint write")
	}
}

func TestSnapshotSeekMergesOverlay(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Put([]byte("p1"), []byte("base"))
	_ = s.Put([]byte("p2"), []byte("base"))
	snap, _ := s.Snapshot()
	snap.Put([]byte("p2"), []byte("dirty"))
	snap.Put([]byte("p3"), []byte("dirty"))
	snap.Delete([]byte("p1"))
	pairs := snap.Seek([]byte("p"), SeekForward)
	if len(pairs) != 2 {
		t.Fatalf("merged seek returned %d entries, want 2", len(pairs))
	}
	if string(pairs[0].Key) != "p2" || string(pairs[0].Value) != "dirty" {
		t.Fatalf("overlay did not win for p2: %q=%q", pairs[0].Key, pairs[0].Value)
	}
	if string(pairs[1].Key) != "p3" {
		t.Fatalf("added key missing from merged seek")
	}
}

func TestLevelDBStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLevelDBStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	for i := 0; i < 10; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		if err := s.Put(k, []byte{byte(i)}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Put([]byte("key-99"), []byte("z"))
	if err := s.Commit(snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, ok, err := s.Get([]byte("key-99"))
	if err != nil || !ok || !bytes.Equal(v, []byte("z")) {
		t.Fatalf("committed value missing: %q %v %v", v, ok, err)
	}
	it, err := s.Seek([]byte("key-0"), SeekForward)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	count := 0
	for it.Next() {
		count++
	}
	it.Release()
	if count != 10 {
		t.Fatalf("prefix scan found %d entries, want 10", count)
	}
}

func TestCachedStoreReadThrough(t *testing.T) {
	backing := NewMemoryStore()
	cached, err := NewCachedStore(backing, 16)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if err := cached.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, ok, _ := cached.Get([]byte("k")); !ok || string(v) != "v1" {
		t.Fatalf("read-through miss: %q %v", v, ok)
	}
	// A write must invalidate, not serve the stale cached value.
	if err := cached.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, _, _ := cached.Get([]byte("k")); string(v) != "v2" {
		t.Fatalf("stale cache entry served: %q", v)
	}
}
