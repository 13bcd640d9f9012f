// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestVarIntSizeThresholds(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1}, {0xFC, 1},
		{0xFD, 3}, {0xFFFF, 3},
		{0x10000, 5}, {0xFFFFFFFF, 5},
		{0x100000000, 9}, {1 << 62, 9},
	}
	for _, c := range cases {
		if got := VarIntSize(c.v); got != c.want {
			t.Errorf("VarIntSize(%#x) = %d, want %d", c.v, got, c.want)
		}
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, c.v); err != nil {
			t.Fatalf("write %#x: %v", c.v, err)
		}
		if buf.Len() != c.want {
			t.Errorf("encoded length of %#x is %d, want %d", c.v, buf.Len(), c.want)
		}
		got, err := ReadVarInt(&buf)
		if err != nil || got != c.v {
			t.Errorf("round trip of %#x gave %#x (%v)", c.v, got, err)
		}
	}
}

func TestVarBytesRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 0xFC, 0xFD, 300, 70000} {
		data := make([]byte, n)
		rng.Read(data)
		var buf bytes.Buffer
		if err := WriteVarBytes(&buf, data); err != nil {
			t.Fatalf("write %d bytes: %v", n, err)
		}
		got, err := ReadVarBytes(&buf, n+1)
		if err != nil || !bytes.Equal(got, data) {
			t.Fatalf("round trip of %d bytes failed: %v", n, err)
		}
	}
}

func randomTransaction(rng *rand.Rand) *Transaction {
	script := make([]byte, rng.Intn(64)+1)
	rng.Read(script)
	var acct U160
	rng.Read(acct[:])
	tx := &Transaction{
		Version:         0,
		Nonce:           rng.Uint32(),
		SystemFee:       int64(rng.Intn(1_000_000)),
		NetworkFee:      int64(rng.Intn(1_000_000)),
		ValidUntilBlock: rng.Uint32(),
		Signers:         []Signer{{Account: acct, Scopes: ScopeCalledByEntry}},
		Script:          script,
		Witnesses: []Witness{{
			InvocationScript:   []byte{byte(OpPUSHDATA1), 2, 0xAB, 0xCD},
			VerificationScript: []byte{byte(OpPUSH1)},
		}},
	}
	if rng.Intn(2) == 0 {
		var conflict U256
		rng.Read(conflict[:])
		tx.Attributes = append(tx.Attributes, Attribute{Type: AttrConflicts, ConflictHash: conflict})
	}
	return tx
}

func TestTransactionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		tx := randomTransaction(rng)
		raw, err := tx.Serialize()
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		back, err := DeserializeTransaction(raw)
		if err != nil {
			t.Fatalf("deserialize: %v", err)
		}
		raw2, err := back.Serialize()
		if err != nil {
			t.Fatalf("re-serialize: %v", err)
		}
		if !bytes.Equal(raw, raw2) {
			t.Fatalf("round trip not byte-identical")
		}
		if tx.Hash() != back.Hash() {
			t.Fatalf("hash changed across round trip")
		}
	}
}

func TestTransactionHashIgnoresWitnesses(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	tx := randomTransaction(rng)
	before := tx.Hash()
	tx.Witnesses[0].InvocationScript = []byte{byte(OpPUSHDATA1), 1, 0xFF}
	if tx.Hash() != before {
		t.Fatalf("witness mutation changed the transaction hash")
	}
}

func TestBlockHeaderRoundTrip(t *testing.T) {
	h := &BlockHeader{
		Version:       0,
		PrevHash:      H256([]byte("prev")),
		MerkleRoot:    H256([]byte("root")),
		TimestampMS:   123456789,
		Nonce:         42,
		Index:         7,
		PrimaryIndex:  2,
		NextConsensus: H160([]byte("consensus")),
		Witness: Witness{
			InvocationScript:   []byte{byte(OpPUSHDATA1), 1, 0x01},
			VerificationScript: []byte{byte(OpPUSH1)},
		},
	}
	raw, err := h.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := DeserializeBlockHeader(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if back.Hash() != h.Hash() {
		t.Fatalf("header hash changed across round trip")
	}
	if back.TimestampMS != h.TimestampMS || back.Index != h.Index || back.NextConsensus != h.NextConsensus {
		t.Fatalf("header fields corrupted")
	}
}

func TestNEFRoundTripAndChecksum(t *testing.T) {
	nef := &NEF{
		Compiler: "neo-core-test",
		Source:   "test.src",
		Tokens: []MethodToken{{
			Hash:       H160([]byte("target")),
			Method:     "callee",
			ParamCount: 2,
			HasReturn:  true,
			CallFlags:  CallFlagReadOnly,
		}},
		Script: []byte{byte(OpPUSH1), byte(OpRET)},
	}
	raw, err := nef.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := DeserializeNEF(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if back.Compiler != nef.Compiler || back.Source != nef.Source || !bytes.Equal(back.Script, nef.Script) {
		t.Fatalf("NEF fields corrupted")
	}
	if len(back.Tokens) != 1 || back.Tokens[0].Method != "callee" {
		t.Fatalf("method tokens corrupted")
	}
	// Any body flip must invalidate the checksum.
	raw[8] ^= 0xFF
	if _, err := DeserializeNEF(raw); err == nil {
		t.Fatalf("tampered NEF accepted")
	}
}

func TestStackItemSerializationRoundTrip(t *testing.T) {
	m := NewMapItem()
	if err := m.mapSet(NewByteStringItem([]byte("k")), NewIntItemInt64(42)); err != nil {
		t.Fatalf("map set: %v", err)
	}
	item := NewArrayItem([]*StackItem{
		NewBoolItem(true),
		NewIntItemInt64(-7),
		NewByteStringItem([]byte("hello")),
		NewNullItem(),
		NewStructItem([]*StackItem{NewIntItemInt64(1)}),
		m,
	})
	raw, err := SerializeStackItem(item)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := DeserializeStackItem(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	arr, err := back.Array()
	if err != nil || len(arr) != 6 {
		t.Fatalf("array shape lost: %v", err)
	}
	if !arr[0].Bool() {
		t.Fatalf("bool lost")
	}
	v, err := arr[1].Int()
	if err != nil || v.Int64() != -7 {
		t.Fatalf("negative integer lost: %v", err)
	}
	if !arr[3].IsNull() {
		t.Fatalf("null lost")
	}
	mv, ok := arr[5].mapGet(NewByteStringItem([]byte("k")))
	if !ok {
		t.Fatalf("map entry lost")
	}
	if got, _ := mv.Int(); got.Int64() != 42 {
		t.Fatalf("map value corrupted")
	}
}
