package testutil

import (
	"testing"

	"neo-core/core"
)

func TestDeterministicKeysAreStable(t *testing.T) {
	k1, err := DeterministicKey("alpha")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := DeterministicKey("alpha")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if k1.D.Cmp(k2.D) != 0 {
		t.Fatalf("same seed produced different keys")
	}
	k3, err := DeterministicKey("beta")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if k1.D.Cmp(k3.D) == 0 {
		t.Fatalf("distinct seeds produced the same key")
	}
}

func TestNewTestChainBootstraps(t *testing.T) {
	chain, natives, cfg, keys, err := NewTestChain(4)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if chain.CurrentIndex() != 0 {
		t.Fatalf("height %d, want 0", chain.CurrentIndex())
	}
	if len(keys) != 4 || cfg.ValidatorsCount != 4 {
		t.Fatalf("validator set misconfigured")
	}
	if natives.Gas == nil || natives.Neo == nil {
		t.Fatalf("native registry incomplete")
	}
	committee, err := cfg.CommitteeAddress()
	if err != nil {
		t.Fatalf("committee: %v", err)
	}
	if core.EncodeAddress(committee) == "" {
		t.Fatalf("committee address did not encode")
	}
}
