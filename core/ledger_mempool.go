// SPDX-License-Identifier: BUSL-1.1
//
// Mempool: two indices over the same admitted-transaction set, a hash map
// for lookup and a slice kept sorted by (fee_per_byte desc, insertion_time
// asc) for eviction and block-candidate selection.
package core

import (
	"fmt"
	"sort"
	"sync"
)

// RemovalReason tags why a transaction left the mempool.
type RemovalReason byte

const (
	RemovalLowPriority RemovalReason = iota
	RemovalExpired
	RemovalConflict
	RemovalIncludedInBlock
	RemovalInvalidated
)

func (r RemovalReason) String() string {
	switch r {
	case RemovalLowPriority:
		return "LowPriority"
	case RemovalExpired:
		return "Expired"
	case RemovalConflict:
		return "Conflict"
	case RemovalIncludedInBlock:
		return "IncludedInBlock"
	case RemovalInvalidated:
		return "Invalidated"
	default:
		return "Unknown"
	}
}

// MempoolEvents receives the admission/eviction notifications. A
// NeoSystem wires a concrete implementation that forwards to its event bus;
// tests can pass a recording stub.
type MempoolEvents interface {
	TransactionAdded(tx *Transaction)
	TransactionRemoved(tx *Transaction, reason RemovalReason)
}

// noopMempoolEvents discards every notification; used when a caller doesn't
// need one (e.g. unit tests exercising only the ordering invariant).
type noopMempoolEvents struct{}

func (noopMempoolEvents) TransactionAdded(*Transaction)                 {}
func (noopMempoolEvents) TransactionRemoved(*Transaction, RemovalReason) {}

// StateVerifier re-verifies a transaction statefully against a read-only
// snapshot of the current chain: balances, policy
// attributes, valid_until_block window, witness verification. The
// blockchain/engine layer supplies the concrete implementation; the mempool
// only calls it through this seam so it stays independent of ApplicationEngine.
type StateVerifier interface {
	VerifyStateful(tx *Transaction, currentHeight uint32) error
}

// Mempool holds fully-validated, unconfirmed transactions ordered for block
// candidate selection.
type Mempool struct {
	mu       sync.Mutex
	capacity int
	byHash   map[U256]*MempoolEntry
	ordered  []*MempoolEntry // kept sorted by (fee_per_byte desc, insertion_time asc)
	events   MempoolEvents
	verifier StateVerifier
}

// NewMempool returns an empty pool bounded to capacity entries.
func NewMempool(capacity int, events MempoolEvents, verifier StateVerifier) *Mempool {
	if events == nil {
		events = noopMempoolEvents{}
	}
	return &Mempool{
		capacity: capacity,
		byHash:   make(map[U256]*MempoolEntry),
		events:   events,
		verifier: verifier,
	}
}

func entryLess(a, b *MempoolEntry) bool {
	if a.FeePerByte != b.FeePerByte {
		return a.FeePerByte > b.FeePerByte // descending fee
	}
	return a.InsertionTime < b.InsertionTime // ascending insertion time
}

// insertSorted inserts e into m.ordered keeping the total order, without a
// full re-sort of the slice.
func (m *Mempool) insertSorted(e *MempoolEntry) {
	i := sort.Search(len(m.ordered), func(i int) bool { return !entryLess(m.ordered[i], e) })
	m.ordered = append(m.ordered, nil)
	copy(m.ordered[i+1:], m.ordered[i:])
	m.ordered[i] = e
}

func (m *Mempool) removeFromOrdered(e *MempoolEntry) {
	for i, o := range m.ordered {
		if o == e {
			m.ordered = append(m.ordered[:i], m.ordered[i+1:]...)
			return
		}
	}
}

// minEntry returns the lowest-priority entry currently held (the tail of
// m.ordered), or nil if the pool is empty.
func (m *Mempool) minEntry() *MempoolEntry {
	if len(m.ordered) == 0 {
		return nil
	}
	return m.ordered[len(m.ordered)-1]
}

// conflictsWithPool reports whether tx conflicts, in either direction, with
// any transaction already admitted.
func (m *Mempool) conflictsWithPool(tx *Transaction) *MempoolEntry {
	for _, c := range tx.ConflictHashes() {
		if e, ok := m.byHash[c]; ok {
			return e
		}
	}
	for _, e := range m.ordered {
		for _, c := range e.Tx.ConflictHashes() {
			if c == tx.Hash() {
				return e
			}
		}
	}
	return nil
}

// TryAdd runs the full admission pipeline and, on success,
// inserts tx and fires TransactionAdded. currentHeight and nowMS are
// supplied by the caller (blockchain/consensus actor), never read from a
// wall clock inside the mempool itself.
func (m *Mempool) TryAdd(tx *Transaction, currentHeight uint32, nowMS int64) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	feePerByte, err := tx.FeePerByte()
	if err != nil {
		return err
	}
	h := tx.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[h]; exists {
		return fmt.Errorf("mempool: tx %s already present", h)
	}
	if tx.ValidUntilBlock <= currentHeight {
		return fmt.Errorf("mempool: tx %s already expired", h)
	}
	if conflict := m.conflictsWithPool(tx); conflict != nil {
		if feePerByte <= conflict.FeePerByte {
			return fmt.Errorf("mempool: tx %s conflicts with higher/equal-fee tx %s", h, conflict.Tx.Hash())
		}
		m.removeLocked(conflict, RemovalConflict)
	}
	if m.verifier != nil {
		if err := m.verifier.VerifyStateful(tx, currentHeight); err != nil {
			return fmt.Errorf("mempool: stateful verification failed: %w", err)
		}
	}

	if len(m.byHash) >= m.capacity {
		min := m.minEntry()
		if min != nil && feePerByte <= min.FeePerByte {
			return fmt.Errorf("mempool: full and tx %s does not outbid the minimum", h)
		}
		if min != nil {
			m.removeLocked(min, RemovalLowPriority)
		}
	}

	entry := &MempoolEntry{Tx: tx, InsertionTime: nowMS, FeePerByte: feePerByte}
	m.byHash[h] = entry
	m.insertSorted(entry)
	m.events.TransactionAdded(tx)
	return nil
}

func (m *Mempool) removeLocked(e *MempoolEntry, reason RemovalReason) {
	delete(m.byHash, e.Tx.Hash())
	m.removeFromOrdered(e)
	m.events.TransactionRemoved(e.Tx, reason)
}

// Remove drops tx (if present) and fires TransactionRemoved.
func (m *Mempool) Remove(hash U256, reason RemovalReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byHash[hash]; ok {
		m.removeLocked(e, reason)
	}
}

// Contains reports whether hash is currently admitted.
func (m *Mempool) Contains(hash U256) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byHash[hash]
	return ok
}

// Get returns the entry for hash, if present.
func (m *Mempool) Get(hash U256) (*MempoolEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byHash[hash]
	return e, ok
}

// Len returns the number of currently admitted transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// OnBlockPersisted evicts every tx now expired (valid_until_block at or
// below the new height) or included in the just-committed block.
func (m *Mempool) OnBlockPersisted(includedHashes map[U256]bool, currentHeight uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var toRemove []*MempoolEntry
	for _, e := range m.ordered {
		h := e.Tx.Hash()
		if includedHashes[h] {
			toRemove = append(toRemove, e)
			continue
		}
		if e.Tx.ValidUntilBlock <= currentHeight {
			toRemove = append(toRemove, e)
		}
	}
	for _, e := range toRemove {
		reason := RemovalExpired
		if includedHashes[e.Tx.Hash()] {
			reason = RemovalIncludedInBlock
		}
		m.removeLocked(e, reason)
	}
}

// SelectForBlock walks the ordered index from highest fee-per-byte,
// respecting maxSize (serialized bytes), maxCount, and maxSystemFee, and
// excluding any transaction whose Conflicts attribute names a candidate
// already picked.
func (m *Mempool) SelectForBlock(maxSize, maxCount int, maxSystemFee int64) ([]*Transaction, error) {
	m.mu.Lock()
	snapshot := make([]*MempoolEntry, len(m.ordered))
	copy(snapshot, m.ordered)
	m.mu.Unlock()

	var (
		picked       []*Transaction
		pickedHashes = make(map[U256]bool)
		totalSize    int
		totalFee     int64
	)
	for _, e := range snapshot {
		if len(picked) >= maxCount {
			break
		}
		tx := e.Tx
		h := tx.Hash()
		conflict := false
		for _, c := range tx.ConflictHashes() {
			if pickedHashes[c] {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		size, err := tx.Size()
		if err != nil {
			return nil, err
		}
		if totalSize+size > maxSize {
			continue
		}
		if totalFee+tx.SystemFee > maxSystemFee {
			continue
		}
		picked = append(picked, tx)
		pickedHashes[h] = true
		totalSize += size
		totalFee += tx.SystemFee
	}
	return picked, nil
}
