// SPDX-License-Identifier: BUSL-1.1
package core

import "golang.org/x/crypto/sha3"

// Keccak256 implements CryptoLib.keccak256, the Ethereum-style Keccak
// variant (not NIST SHA3-256), needed for interoperability hashing in
// cross-chain-facing native methods.
func Keccak256(data []byte) U256 {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out U256
	copy(out[:], h.Sum(nil))
	return out
}

// Sha256 implements CryptoLib.sha256 as a single (non-doubled) SHA-256,
// the same digest H256 computes; the double hash is doubleSHA256.
func Sha256(data []byte) U256 { return H256(data) }

// Ripemd160 implements CryptoLib.ripemd160 as a single (non-chained)
// RIPEMD-160, distinct from H160's SHA-256-then-RIPEMD-160 chain.
func Ripemd160(data []byte) U160 {
	return h160RawRipemd(data)
}
