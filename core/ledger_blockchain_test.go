// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"math/big"
	"testing"
)

func TestGenesisBootstrap(t *testing.T) {
	chain, _, cfg, _ := newTestChainT(t, 1)
	if chain.CurrentIndex() != 0 {
		t.Fatalf("genesis height %d, want 0", chain.CurrentIndex())
	}
	genesis, err := chain.GetBlockByIndex(0)
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if !genesis.IsGenesis() {
		t.Fatalf("block 0 does not satisfy the genesis invariants")
	}
	if genesis.Header.PrevHash != U256Zero {
		t.Fatalf("genesis prev_hash not zero")
	}
	want, err := cfg.NextConsensusAddress(cfg.StandbyValidators())
	if err != nil {
		t.Fatalf("consensus address: %v", err)
	}
	if genesis.Header.NextConsensus != want {
		t.Fatalf("genesis next_consensus mismatch")
	}
}

func TestChainReopensFromStore(t *testing.T) {
	cfg, _ := testProtocolConfigT(t, 1)
	store := NewMemoryStore()
	natives := NewNativeRegistry(cfg)
	chain, err := NewBlockchain(store, cfg, natives, nil, nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	hash := chain.CurrentHash()
	reopened, err := NewBlockchain(store, cfg, NewNativeRegistry(cfg), nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.CurrentIndex() != 0 || reopened.CurrentHash() != hash {
		t.Fatalf("reopened chain lost its tip")
	}
}

func TestApplyEmptyBlock(t *testing.T) {
	chain, _, cfg, keys := newTestChainT(t, 1)
	block := signedBlock(t, chain, cfg, keys, nil, genesisTimestampMS+1000)
	if err := chain.ApplyBlock(block); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if chain.CurrentIndex() != 1 {
		t.Fatalf("height %d after apply, want 1", chain.CurrentIndex())
	}
	if chain.CurrentHash() != block.Hash() {
		t.Fatalf("tip hash not updated")
	}
}

func TestApplyBlockRejectsBadLinkage(t *testing.T) {
	chain, _, cfg, keys := newTestChainT(t, 1)
	block := signedBlock(t, chain, cfg, keys, nil, genesisTimestampMS+1000)

	wrongIndex := *block
	wrongIndex.Header.Index = 5
	wrongIndex.Header.Witness = multisigWitness(t, 1, keys, SignData(cfg.Network, wrongIndex.Header.Hash()))
	if err := chain.ApplyBlock(&wrongIndex); err == nil {
		t.Fatalf("non-sequential index accepted")
	}

	wrongPrev := *block
	wrongPrev.Header.PrevHash = H256([]byte("bogus"))
	wrongPrev.Header.Witness = multisigWitness(t, 1, keys, SignData(cfg.Network, wrongPrev.Header.Hash()))
	if err := chain.ApplyBlock(&wrongPrev); err == nil {
		t.Fatalf("wrong prev_hash accepted")
	}

	staleTime := *block
	staleTime.Header.TimestampMS = genesisTimestampMS
	staleTime.Header.Witness = multisigWitness(t, 1, keys, SignData(cfg.Network, staleTime.Header.Hash()))
	if err := chain.ApplyBlock(&staleTime); err == nil {
		t.Fatalf("non-monotonic timestamp accepted")
	}
}

func TestApplyBlockForgedWitnessRejected(t *testing.T) {
	chain, _, cfg, keys := newTestChainT(t, 1)
	block := signedBlock(t, chain, cfg, keys, nil, genesisTimestampMS+1000)
	// Re-witness with a key that is not the validator's: the script hash
	// no longer matches next_consensus.
	forger := deterministicKeyT(t, "forger")
	block.Header.Witness = multisigWitness(t, 1, append(keys[:0:0], forger),
		SignData(cfg.Network, block.Header.Hash()))
	if err := chain.ApplyBlock(block); err == nil {
		t.Fatalf("forged witness accepted")
	}
}

func TestApplyBlockWithTransaction(t *testing.T) {
	chain, natives, cfg, keys := newTestChainT(t, 1)
	committee, err := cfg.CommitteeAddress()
	if err != nil {
		t.Fatalf("committee: %v", err)
	}
	tx := committeeSignedTx(t, cfg, keys, cfg.Network, 1, 100)
	snapBefore, _ := chain.store.Snapshot()
	balanceBefore := natives.Gas.BalanceOf(snapBefore, committee)

	block := signedBlock(t, chain, cfg, keys, []*Transaction{tx}, genesisTimestampMS+1000)
	if err := chain.ApplyBlock(block); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if chain.CurrentIndex() != 1 {
		t.Fatalf("height %d, want 1", chain.CurrentIndex())
	}
	stored, height, err := chain.GetTransaction(tx.Hash())
	if err != nil || height != 1 {
		t.Fatalf("tx lookup: height %d err %v", height, err)
	}
	if stored.Hash() != tx.Hash() {
		t.Fatalf("stored tx hash mismatch")
	}
	if !chain.ContainsTransaction(tx.Hash()) {
		t.Fatalf("ContainsTransaction false for committed tx")
	}
	// Fees are burned from the sender whatever the script outcome.
	snapAfter, _ := chain.store.Snapshot()
	balanceAfter := natives.Gas.BalanceOf(snapAfter, committee)
	fees := big.NewInt(tx.SystemFee + tx.NetworkFee)
	if diff := new(big.Int).Sub(balanceBefore, balanceAfter); diff.Cmp(fees) != 0 {
		t.Fatalf("sender paid %s, want %s", diff, fees)
	}
	// Replay protection: the same block (or tx) cannot apply twice.
	if err := chain.ApplyBlock(block); err == nil {
		t.Fatalf("same block applied twice")
	}
}

func TestVerifyStatefulAdmission(t *testing.T) {
	chain, _, cfg, keys := newTestChainT(t, 1)
	tx := committeeSignedTx(t, cfg, keys, cfg.Network, 2, 100)
	if err := chain.VerifyStateful(tx, 0); err != nil {
		t.Fatalf("valid tx rejected: %v", err)
	}
	expired := committeeSignedTx(t, cfg, keys, cfg.Network, 3, 100)
	if err := chain.VerifyStateful(expired, 100); err == nil {
		t.Fatalf("expired tx accepted")
	}
	broke := committeeSignedTx(t, cfg, keys, cfg.Network, 4, 100)
	broke.SystemFee = cfg.InitialGasDistribution * 2
	// Re-witness after the fee change (the hash changed).
	broke.Witnesses = []Witness{multisigWitness(t, committeeM(len(keys)), keys,
		SignData(cfg.Network, broke.Hash()))}
	if err := chain.VerifyStateful(broke, 0); err == nil {
		t.Fatalf("fee beyond balance accepted")
	}
}
