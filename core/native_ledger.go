// SPDX-License-Identifier: BUSL-1.1
//
// LedgerContract: read-only chain queries exposed to contracts.
// Reads go straight to the engine's snapshot using the same namespaced
// layout the persistence driver writes.
package core

import (
	"bytes"
	"encoding/binary"
)

// Storage namespace prefixes. contract_id inside the contract
// storage namespace is big-endian so per-contract scans are contiguous.
const (
	prefixHeaderByHash    byte = 0x01
	prefixBlockByHash     byte = 0x02
	prefixBlockHashByIdx  byte = 0x03
	prefixTxStateByHash   byte = 0x04
	prefixContractStorage byte = 0x05
	prefixNativeState     byte = 0x06
	prefixCurrentIndex    byte = 0xF0
	prefixCurrentHash     byte = 0xF1
)

func blockHashKey(h U256) []byte  { return append([]byte{prefixBlockByHash}, h.Bytes()...) }
func headerHashKey(h U256) []byte { return append([]byte{prefixHeaderByHash}, h.Bytes()...) }
func txStateKey(h U256) []byte    { return append([]byte{prefixTxStateByHash}, h.Bytes()...) }

func blockIndexKey(index uint32) []byte {
	out := make([]byte, 5)
	out[0] = prefixBlockHashByIdx
	binary.LittleEndian.PutUint32(out[1:], index)
	return out
}

// snapshotCurrentIndex reads the persisted chain height from a snapshot.
func snapshotCurrentIndex(snap *Snapshot) (uint32, bool) {
	raw, ok := snap.Get([]byte{prefixCurrentIndex})
	if !ok || len(raw) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(raw), true
}

// snapshotCurrentHash reads the persisted tip hash from a snapshot.
func snapshotCurrentHash(snap *Snapshot) (U256, bool) {
	raw, ok := snap.Get([]byte{prefixCurrentHash})
	if !ok {
		return U256{}, false
	}
	h, err := U256FromBytes(raw)
	if err != nil {
		return U256{}, false
	}
	return h, true
}

// snapshotBlock loads a block by hash from a snapshot.
func snapshotBlock(snap *Snapshot, hash U256) (*Block, bool) {
	raw, ok := snap.Get(blockHashKey(hash))
	if !ok {
		return nil, false
	}
	b, err := deserializeBlock(raw)
	if err != nil {
		return nil, false
	}
	return b, true
}

// snapshotBlockByIndex resolves index to a hash, then loads the block.
func snapshotBlockByIndex(snap *Snapshot, index uint32) (*Block, bool) {
	raw, ok := snap.Get(blockIndexKey(index))
	if !ok {
		return nil, false
	}
	h, err := U256FromBytes(raw)
	if err != nil {
		return nil, false
	}
	return snapshotBlock(snap, h)
}

// snapshotTxState loads a transaction's stored state by hash: inclusion
// height, the tx itself, and the trailing execution log (ignored here).
func snapshotTxState(snap *Snapshot, hash U256) (*Transaction, uint32, bool) {
	raw, ok := snap.Get(txStateKey(hash))
	if !ok || len(raw) < 8 {
		return nil, 0, false
	}
	height := binary.LittleEndian.Uint32(raw[:4])
	txLen := int(binary.LittleEndian.Uint32(raw[4:8]))
	if 8+txLen > len(raw) {
		return nil, 0, false
	}
	tx, err := DeserializeTransaction(raw[8 : 8+txLen])
	if err != nil {
		return nil, 0, false
	}
	return tx, height, true
}

func deserializeBlock(raw []byte) (*Block, error) {
	r := bytes.NewReader(raw)
	br := NewBinaryReader(r)
	headerLen := int(br.ReadU32())
	headerRaw := br.ReadBytes(headerLen)
	if br.Err() != nil {
		return nil, br.Err()
	}
	header, err := DeserializeBlockHeader(headerRaw)
	if err != nil {
		return nil, err
	}
	b := &Block{Header: *header}
	var txErr error
	ReadArray(br, MaxTransactionsPerBlock, func() {
		txLen := int(br.ReadU32())
		txRaw := br.ReadBytes(txLen)
		if br.Err() != nil {
			return
		}
		tx, err := DeserializeTransaction(txRaw)
		if err != nil {
			txErr = err
			return
		}
		b.Transactions = append(b.Transactions, tx)
	})
	if txErr != nil {
		return nil, txErr
	}
	if br.Err() != nil {
		return nil, br.Err()
	}
	return b, nil
}

// serializeBlockRecord stores the header and each tx length-prefixed so the
// record decodes without re-scanning tx boundaries.
func serializeBlockRecord(b *Block) ([]byte, error) {
	headerRaw, err := b.Header.Serialize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU32(uint32(len(headerRaw)))
	bw.WriteBytes(headerRaw)
	bw.WriteVarInt(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txRaw, err := tx.Serialize()
		if err != nil {
			return nil, err
		}
		bw.WriteU32(uint32(len(txRaw)))
		bw.WriteBytes(txRaw)
	}
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	return buf.Bytes(), nil
}

// LedgerContract is the read-only chain-query native.
type LedgerContract struct {
	*NativeContract
}

// NewLedgerContract builds the ledger native.
func NewLedgerContract() *LedgerContract {
	l := &LedgerContract{NativeContract: newNativeContract(NativeIDLedger, "LedgerContract")}
	l.registerMethods()
	return l
}

// blockItem renders a block header for contract consumption.
func blockItem(b *Block) *StackItem {
	h := b.Hash()
	return NewArrayItem([]*StackItem{
		NewByteStringItem(h.Bytes()),
		NewIntItemInt64(int64(b.Header.Version)),
		NewByteStringItem(b.Header.PrevHash.Bytes()),
		NewByteStringItem(b.Header.MerkleRoot.Bytes()),
		NewIntItemInt64(int64(b.Header.TimestampMS)),
		NewIntItemInt64(int64(b.Header.Nonce)),
		NewIntItemInt64(int64(b.Header.Index)),
		NewIntItemInt64(int64(b.Header.PrimaryIndex)),
		NewByteStringItem(b.Header.NextConsensus.Bytes()),
		NewIntItemInt64(int64(len(b.Transactions))),
	})
}

func txItem(tx *Transaction) *StackItem {
	h := tx.Hash()
	return NewArrayItem([]*StackItem{
		NewByteStringItem(h.Bytes()),
		NewIntItemInt64(int64(tx.Version)),
		NewIntItemInt64(int64(tx.Nonce)),
		NewByteStringItem(tx.Signers[0].Account.Bytes()),
		NewIntItemInt64(tx.SystemFee),
		NewIntItemInt64(tx.NetworkFee),
		NewIntItemInt64(int64(tx.ValidUntilBlock)),
		NewByteStringItem(tx.Script),
	})
}

func (l *LedgerContract) registerMethods() {
	l.register(&NativeMethod{
		Name: "currentHash", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			h, ok := snapshotCurrentHash(e.Snapshot)
			if !ok {
				return NewNullItem(), nil
			}
			return NewByteStringItem(h.Bytes()), nil
		},
	})
	l.register(&NativeMethod{
		Name: "currentIndex", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			idx, ok := snapshotCurrentIndex(e.Snapshot)
			if !ok {
				return NewIntItemInt64(-1), nil
			}
			return NewIntItemInt64(int64(idx)), nil
		},
	})
	l.register(&NativeMethod{
		Name: "getBlock", ParamCount: 1, RequiredFlags: CallFlagReadStates, Price: 1 << 16,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			raw, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("getBlock: %v", err)
			}
			var (
				b  *Block
				ok bool
			)
			switch len(raw) {
			case 32:
				h, _ := U256FromBytes(raw)
				b, ok = snapshotBlock(e.Snapshot, h)
			default:
				idx, err := args[0].Int()
				if err != nil {
					return nil, newFault("getBlock: %v", err)
				}
				b, ok = snapshotBlockByIndex(e.Snapshot, uint32(idx.Uint64()))
			}
			if !ok {
				return NewNullItem(), nil
			}
			return blockItem(b), nil
		},
	})
	l.register(&NativeMethod{
		Name: "getTransaction", ParamCount: 1, RequiredFlags: CallFlagReadStates, Price: 1 << 16,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			raw, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("getTransaction: %v", err)
			}
			h, err := U256FromBytes(raw)
			if err != nil {
				return nil, newFault("getTransaction: %v", err)
			}
			tx, _, ok := snapshotTxState(e.Snapshot, h)
			if !ok {
				return NewNullItem(), nil
			}
			return txItem(tx), nil
		},
	})
	l.register(&NativeMethod{
		Name: "getTransactionHeight", ParamCount: 1, RequiredFlags: CallFlagReadStates, Price: 1 << 16,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			raw, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("getTransactionHeight: %v", err)
			}
			h, err := U256FromBytes(raw)
			if err != nil {
				return nil, newFault("getTransactionHeight: %v", err)
			}
			_, height, ok := snapshotTxState(e.Snapshot, h)
			if !ok {
				return NewIntItemInt64(-1), nil
			}
			return NewIntItemInt64(int64(height)), nil
		},
	})
}
