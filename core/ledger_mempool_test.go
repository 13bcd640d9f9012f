// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"math/rand"
	"testing"
)

// recordingEvents captures mempool notifications for assertions.
type recordingEvents struct {
	added   []U256
	removed []struct {
		hash   U256
		reason RemovalReason
	}
}

func (r *recordingEvents) TransactionAdded(tx *Transaction) {
	r.added = append(r.added, tx.Hash())
}

func (r *recordingEvents) TransactionRemoved(tx *Transaction, reason RemovalReason) {
	r.removed = append(r.removed, struct {
		hash   U256
		reason RemovalReason
	}{tx.Hash(), reason})
}

// testTx builds a minimal valid transaction whose fee-per-byte lands at
// feePerByte by scaling the network fee against the serialized size.
func testTx(t *testing.T, nonce uint32, feePerByte int64) *Transaction {
	t.Helper()
	tx := &Transaction{
		Version:         0,
		Nonce:           nonce,
		ValidUntilBlock: 1000,
		Signers:         []Signer{{Account: U160{byte(nonce)}, Scopes: ScopeGlobal}},
		Script:          []byte{byte(OpPUSH1), byte(OpRET)},
		Witnesses:       []Witness{{}},
	}
	size, err := tx.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	tx.NetworkFee = feePerByte * int64(size)
	// Adding the fee bytes may not change the serialized size (fixed-width
	// i64), so fee/size now floors to feePerByte exactly.
	got, err := tx.FeePerByte()
	if err != nil {
		t.Fatalf("fee per byte: %v", err)
	}
	if got != feePerByte {
		t.Fatalf("constructed fee-per-byte %d, want %d", got, feePerByte)
	}
	return tx
}

func TestMempoolEvictionUnderPressure(t *testing.T) {
	events := &recordingEvents{}
	pool := NewMempool(3, events, nil)

	fees := []int64{10, 20, 30}
	for i, fee := range fees {
		if err := pool.TryAdd(testTx(t, uint32(i), fee), 0, int64(i)); err != nil {
			t.Fatalf("admit fee %d: %v", fee, err)
		}
	}
	low := testTx(t, 0, 10) // rebuild hash of the fee-10 tx for the assertion below
	if err := pool.TryAdd(testTx(t, 3, 25), 0, 3); err != nil {
		t.Fatalf("admit fee 25 into full pool: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("pool size %d, want 3", pool.Len())
	}
	if pool.Contains(low.Hash()) {
		t.Fatalf("fee-10 tx still resident after eviction")
	}
	found := false
	for _, rm := range events.removed {
		if rm.hash == low.Hash() && rm.reason == RemovalLowPriority {
			found = true
		}
	}
	if !found {
		t.Fatalf("no TransactionRemoved{LowPriority} fired for the evicted tx")
	}

	// A candidate that does not outbid the minimum is rejected outright.
	if err := pool.TryAdd(testTx(t, 4, 20), 0, 4); err == nil {
		t.Fatalf("equal-fee candidate must not displace the minimum")
	}
}

func TestMempoolOrderingInvariant(t *testing.T) {
	pool := NewMempool(256, nil, nil)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		fee := int64(rng.Intn(50) + 1)
		if err := pool.TryAdd(testTx(t, uint32(i), fee), 0, int64(i)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	picked, err := pool.SelectForBlock(1<<30, 100, 1<<60)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var prevFee int64 = 1 << 62
	prevTime := int64(-1)
	for _, tx := range picked {
		entry, ok := pool.Get(tx.Hash())
		if !ok {
			t.Fatalf("selected tx not in pool")
		}
		if entry.FeePerByte > prevFee {
			t.Fatalf("fee order violated: %d after %d", entry.FeePerByte, prevFee)
		}
		if entry.FeePerByte == prevFee && entry.InsertionTime < prevTime {
			t.Fatalf("insertion-time order violated within equal fee")
		}
		prevFee, prevTime = entry.FeePerByte, entry.InsertionTime
	}
}

func TestMempoolRejectsDuplicatesAndExpired(t *testing.T) {
	pool := NewMempool(16, nil, nil)
	tx := testTx(t, 1, 10)
	if err := pool.TryAdd(tx, 0, 0); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if err := pool.TryAdd(tx, 0, 1); err == nil {
		t.Fatalf("duplicate admitted")
	}
	expired := testTx(t, 2, 10)
	if err := pool.TryAdd(expired, expired.ValidUntilBlock, 2); err == nil {
		t.Fatalf("expired tx admitted")
	}
}

func TestMempoolConflictHandling(t *testing.T) {
	pool := NewMempool(16, nil, nil)
	victim := testTx(t, 1, 10)
	if err := pool.TryAdd(victim, 0, 0); err != nil {
		t.Fatalf("admit victim: %v", err)
	}

	cheap := testTx(t, 2, 5)
	cheap.Attributes = []Attribute{{Type: AttrConflicts, ConflictHash: victim.Hash()}}
	if err := pool.TryAdd(cheap, 0, 1); err == nil {
		t.Fatalf("lower-fee conflicting tx admitted")
	}

	rich := testTx(t, 3, 50)
	rich.Attributes = []Attribute{{Type: AttrConflicts, ConflictHash: victim.Hash()}}
	if err := pool.TryAdd(rich, 0, 2); err != nil {
		t.Fatalf("higher-fee conflict override rejected: %v", err)
	}
	if pool.Contains(victim.Hash()) {
		t.Fatalf("victim survived a fee-superior conflict")
	}
}

func TestMempoolBlockPersistedCull(t *testing.T) {
	events := &recordingEvents{}
	pool := NewMempool(16, events, nil)
	includedTx := testTx(t, 1, 10)
	expiringTx := testTx(t, 2, 10)
	expiringTx.ValidUntilBlock = 5
	surviving := testTx(t, 3, 10)
	for i, tx := range []*Transaction{includedTx, expiringTx, surviving} {
		if err := pool.TryAdd(tx, 0, int64(i)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	pool.OnBlockPersisted(map[U256]bool{includedTx.Hash(): true}, 5)
	if pool.Len() != 1 || !pool.Contains(surviving.Hash()) {
		t.Fatalf("cull kept wrong set, len %d", pool.Len())
	}
}

func TestSelectForBlockRespectsBudgets(t *testing.T) {
	pool := NewMempool(64, nil, nil)
	for i := 0; i < 10; i++ {
		tx := testTx(t, uint32(i), int64(10+i))
		tx.SystemFee = 100
		if err := pool.TryAdd(tx, 0, int64(i)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	picked, err := pool.SelectForBlock(1<<30, 4, 1<<60)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(picked) != 4 {
		t.Fatalf("count budget ignored: picked %d, want 4", len(picked))
	}
	picked, err = pool.SelectForBlock(1<<30, 100, 250)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(picked) != 2 {
		t.Fatalf("system-fee budget ignored: picked %d, want 2", len(picked))
	}
}
