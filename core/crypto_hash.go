// SPDX-License-Identifier: BUSL-1.1
//
// Neo-core – Core ▸ Crypto ▸ fixed-width hashes
// ----------------------------------------------
// U160 and U256 are the two fixed-width hash/address types used throughout
// the ledger, VM and consensus layers. Both are little-endian on the wire
// and big-endian ("0x"-prefixed) in their string form
package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // still the canonical RIPEMD-160 implementation
)

// U160 is a 20-byte script hash / address.
type U160 [20]byte

// U256 is a 32-byte block/transaction hash or Merkle root.
type U256 [32]byte

var (
	// U160Zero is the all-zero script hash used for the genesis block's
	// previous-consensus placeholder and for unset signer accounts.
	U160Zero U160
	// U256Zero is the all-zero hash used as the genesis block's prev_hash.
	U256Zero U256
)

// Bytes returns the little-endian wire representation.
func (u U160) Bytes() []byte { b := make([]byte, 20); copy(b, u[:]); return b }
func (u U256) Bytes() []byte { b := make([]byte, 32); copy(b, u[:]); return b }

// reversed returns a copy of b with byte order reversed, used to flip
// between the wire's little-endian form and hex's big-endian display form.
func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// String renders the big-endian "0x"-prefixed hex form used for JSON and
// human display.
func (u U160) String() string { return "0x" + hex.EncodeToString(reversed(u[:])) }
func (u U256) String() string { return "0x" + hex.EncodeToString(reversed(u[:])) }

// Equals reports byte-wise equality.
func (u U160) Equals(o U160) bool { return u == o }
func (u U256) Equals(o U256) bool { return u == o }

// Less gives U160/U256 a total order over their little-endian byte
// representation, used by storage key comparisons and deterministic sets.
func (u U160) Less(o U160) bool { return bytes.Compare(u[:], o[:]) < 0 }
func (u U256) Less(o U256) bool { return bytes.Compare(u[:], o[:]) < 0 }

// U160FromBytes validates length and copies b into a new U160.
func U160FromBytes(b []byte) (U160, error) {
	var u U160
	if len(b) != 20 {
		return u, fmt.Errorf("u160: expected 20 bytes, got %d", len(b))
	}
	copy(u[:], b)
	return u, nil
}

// U256FromBytes validates length and copies b into a new U256.
func U256FromBytes(b []byte) (U256, error) {
	var u U256
	if len(b) != 32 {
		return u, fmt.Errorf("u256: expected 32 bytes, got %d", len(b))
	}
	copy(u[:], b)
	return u, nil
}

// U256FromHex parses a "0x"-prefixed or bare big-endian hex string.
func U256FromHex(s string) (U256, error) {
	s = trimHexPrefix(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return U256{}, fmt.Errorf("u256 hex: %w", err)
	}
	return U256FromBytes(reversed(raw))
}

// U160FromHex parses a "0x"-prefixed or bare big-endian hex string.
func U160FromHex(s string) (U160, error) {
	s = trimHexPrefix(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return U160{}, fmt.Errorf("u160 hex: %w", err)
	}
	return U160FromBytes(reversed(raw))
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// H256 computes SHA-256 over data and returns it as a U256.
func H256(data []byte) U256 {
	sum := sha256.Sum256(data)
	return U256(sum)
}

// doubleSHA256 is SHA-256 applied twice, used by the Merkle tree and by
// Base58Check (crypto_base58.go).
func doubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// H160 computes RIPEMD-160(SHA-256(data)) and returns it as a U160. This is
// the script-hash function used for witness accounts and contract hashes.
func H160(data []byte) U160 {
	sha := sha256.Sum256(data)
	return h160RawRipemd(sha[:])
}

// h160RawRipemd applies a single RIPEMD-160 pass with no preceding SHA-256,
// used directly by CryptoLib.ripemd160 (crypto_keccak.go) where H160 applies
// the chained SHA-256-then-RIPEMD-160 construction instead.
func h160RawRipemd(data []byte) U160 {
	r := ripemd160.New()
	_, _ = r.Write(data)
	sum := r.Sum(nil)
	var out U160
	copy(out[:], sum)
	return out
}
