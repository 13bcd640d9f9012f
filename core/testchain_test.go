// SPDX-License-Identifier: BUSL-1.1
//
// Shared fixtures for chain-level tests: deterministic validator keys, a
// memory-backed chain with genesis applied, and witness builders.
package core

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"sort"
	"testing"
)

func deterministicKeyT(t *testing.T, seed string) *ecdsa.PrivateKey {
	t.Helper()
	scalar := sha256.Sum256([]byte("core-test/" + seed))
	for i := 0; i < 64; i++ {
		priv, err := PrivateKeyFromBytes(scalar[:])
		if err == nil {
			return priv
		}
		scalar = sha256.Sum256(scalar[:])
	}
	t.Fatalf("no valid scalar for seed %q", seed)
	return nil
}

func testProtocolConfigT(t *testing.T, n int) (*ProtocolConfig, []*ecdsa.PrivateKey) {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	points := make([]ECPoint, n)
	for i := 0; i < n; i++ {
		keys[i] = deterministicKeyT(t, "validator-"+string(rune('0'+i)))
		points[i] = PublicKeyOf(keys[i])
	}
	cfg := DefaultProtocolConfig()
	cfg.StandbyCommittee = points
	cfg.ValidatorsCount = n
	cfg.MsPerBlock = 1000
	cfg.MempoolCapacity = 128
	return cfg, keys
}

func newTestChainT(t *testing.T, n int) (*Blockchain, *NativeRegistry, *ProtocolConfig, []*ecdsa.PrivateKey) {
	t.Helper()
	cfg, keys := testProtocolConfigT(t, n)
	natives := NewNativeRegistry(cfg)
	chain, err := NewBlockchain(NewMemoryStore(), cfg, natives, nil, nil)
	if err != nil {
		t.Fatalf("chain bootstrap: %v", err)
	}
	return chain, natives, cfg, keys
}

// multisigWitness signs data with enough keys for an m-of-n witness over
// points, the signatures ordered to match the script's sorted key list.
func multisigWitness(t *testing.T, m int, keys []*ecdsa.PrivateKey, data []byte) Witness {
	t.Helper()
	points := make([]ECPoint, len(keys))
	for i, k := range keys {
		points[i] = PublicKeyOf(k)
	}
	verification, err := multisigVerificationScript(m, points)
	if err != nil {
		t.Fatalf("multisig script: %v", err)
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return bytes.Compare(points[order[a]].CompressedBytes(), points[order[b]].CompressedBytes()) < 0
	})
	var invocation []byte
	count := 0
	for _, idx := range order {
		if count == m {
			break
		}
		sig, err := SignMessage(keys[idx], data)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		invocation = append(invocation, byte(OpPUSHDATA1), byte(len(sig)))
		invocation = append(invocation, sig...)
		count++
	}
	return Witness{InvocationScript: invocation, VerificationScript: verification}
}

// committeeM is the committee multisig threshold for n members.
func committeeM(n int) int { return n - (n-1)/2 }

// validatorM is the consensus multisig threshold for n validators.
func validatorM(n int) int { return n - (n-1)/3 }

// committeeSignedTx builds a fee-paying transaction from the committee
// account, witnessed with the committee threshold.
func committeeSignedTx(t *testing.T, cfg *ProtocolConfig, keys []*ecdsa.PrivateKey, network uint32, nonce uint32, validUntil uint32) *Transaction {
	t.Helper()
	committee, err := cfg.CommitteeAddress()
	if err != nil {
		t.Fatalf("committee address: %v", err)
	}
	tx := &Transaction{
		Version:         0,
		Nonce:           nonce,
		SystemFee:       1_000_000,
		NetworkFee:      1_000_000,
		ValidUntilBlock: validUntil,
		Signers:         []Signer{{Account: committee, Scopes: ScopeGlobal}},
		Script:          []byte{byte(OpPUSH1), byte(OpRET)},
	}
	w := multisigWitness(t, committeeM(len(keys)), keys, SignData(network, tx.Hash()))
	tx.Witnesses = []Witness{w}
	return tx
}

// signedBlock assembles a block over txs extending chain's tip, witnessed
// by the validator threshold.
func signedBlock(t *testing.T, chain *Blockchain, cfg *ProtocolConfig, keys []*ecdsa.PrivateKey, txs []*Transaction, timestampMS uint64) *Block {
	t.Helper()
	merkle := U256Zero
	if len(txs) > 0 {
		hashes := make([]U256, len(txs))
		for i, tx := range txs {
			hashes[i] = tx.Hash()
		}
		root, err := MerkleRoot(hashes)
		if err != nil {
			t.Fatalf("merkle: %v", err)
		}
		merkle = root
	}
	nextConsensus, err := cfg.NextConsensusAddress(cfg.StandbyValidators())
	if err != nil {
		t.Fatalf("next consensus: %v", err)
	}
	block := &Block{
		Header: BlockHeader{
			Version:       0,
			PrevHash:      chain.CurrentHash(),
			MerkleRoot:    merkle,
			TimestampMS:   timestampMS,
			Nonce:         7,
			Index:         chain.CurrentIndex() + 1,
			PrimaryIndex:  0,
			NextConsensus: nextConsensus,
		},
		Transactions: txs,
	}
	block.Header.Witness = multisigWitness(t, validatorM(len(keys)), keys,
		SignData(cfg.Network, block.Header.Hash()))
	return block
}
