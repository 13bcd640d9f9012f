// Package testutil provides shared test fixtures: isolated temp
// directories (sandbox.go), deterministic validator key pairs and a wired
// in-memory chain factory.
package testutil

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"neo-core/core"
)

// DeterministicKey derives a stable secp256r1 key pair from seed; the same
// seed always yields the same key, so test fixtures and their derived
// addresses stay byte-identical across runs.
func DeterministicKey(seed string) (*ecdsa.PrivateKey, error) {
	scalar := sha256.Sum256([]byte("neo-core/testutil/" + seed))
	for i := 0; i < 64; i++ {
		priv, err := core.PrivateKeyFromBytes(scalar[:])
		if err == nil {
			return priv, nil
		}
		scalar = sha256.Sum256(scalar[:])
	}
	return nil, fmt.Errorf("testutil: no valid scalar derived from %q", seed)
}

// ValidatorSet derives n deterministic validator keys and their public
// points, ordered by derivation index.
func ValidatorSet(n int) ([]*ecdsa.PrivateKey, []core.ECPoint, error) {
	keys := make([]*ecdsa.PrivateKey, n)
	points := make([]core.ECPoint, n)
	for i := 0; i < n; i++ {
		k, err := DeterministicKey(fmt.Sprintf("validator-%d", i))
		if err != nil {
			return nil, nil, err
		}
		keys[i] = k
		points[i] = core.PublicKeyOf(k)
	}
	return keys, points, nil
}

// TestProtocolConfig builds a small-committee protocol configuration
// suitable for unit tests: n validators, fast blocks, modest mempool.
func TestProtocolConfig(n int) (*core.ProtocolConfig, []*ecdsa.PrivateKey, error) {
	keys, points, err := ValidatorSet(n)
	if err != nil {
		return nil, nil, err
	}
	cfg := core.DefaultProtocolConfig()
	cfg.StandbyCommittee = points
	cfg.ValidatorsCount = n
	cfg.MsPerBlock = 1000
	cfg.MempoolCapacity = 1024
	return cfg, keys, nil
}

// NewTestChain wires a memory-backed blockchain with its native registry
// and genesis applied, returning everything a test needs to execute
// transactions or drive consensus.
func NewTestChain(n int) (*core.Blockchain, *core.NativeRegistry, *core.ProtocolConfig, []*ecdsa.PrivateKey, error) {
	cfg, keys, err := TestProtocolConfig(n)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	natives := core.NewNativeRegistry(cfg)
	chain, err := core.NewBlockchain(core.NewMemoryStore(), cfg, natives, nil, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return chain, natives, cfg, keys, nil
}
