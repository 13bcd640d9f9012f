// SPDX-License-Identifier: BUSL-1.1
//
// secp256r1 (NIST P-256) ECDSA, the curve witnesses and consensus
// payloads sign over. The stdlib P-256 implementation is the one
// cryptographically correct choice here; see DESIGN.md.
package core

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
)

// ECPoint is a compressed secp256r1 public key, as carried in verification
// scripts and native-contract committee/validator lists.
type ECPoint struct {
	X, Y *big.Int
}

// Curve is the curve every ECPoint lives on.
func Curve() elliptic.Curve { return elliptic.P256() }

// NewPrivateKey generates a fresh secp256r1 key pair.
func NewPrivateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

// PublicKeyOf extracts the ECPoint form of a private key's public half.
func PublicKeyOf(priv *ecdsa.PrivateKey) ECPoint {
	return ECPoint{X: priv.PublicKey.X, Y: priv.PublicKey.Y}
}

// CompressedBytes returns the SEC1-compressed 33-byte encoding of the point:
// a 0x02/0x03 parity prefix followed by the 32-byte big-endian X coordinate.
func (p ECPoint) CompressedBytes() []byte {
	out := make([]byte, 33)
	if p.Y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xb := p.X.Bytes()
	copy(out[33-len(xb):], xb)
	return out
}

// ParseCompressedECPoint decodes a 33-byte SEC1-compressed point.
func ParseCompressedECPoint(b []byte) (ECPoint, error) {
	if len(b) != 33 || (b[0] != 0x02 && b[0] != 0x03) {
		return ECPoint{}, fmt.Errorf("ecpoint: invalid compressed encoding")
	}
	curve := Curve().Params()
	x := new(big.Int).SetBytes(b[1:])
	y2 := new(big.Int).Exp(x, big.NewInt(3), curve.P)
	ax := new(big.Int).Mul(x, big.NewInt(3))
	y2.Sub(y2, ax)
	y2.Add(y2, curve.B)
	y2.Mod(y2, curve.P)
	y := new(big.Int).ModSqrt(y2, curve.P)
	if y == nil {
		return ECPoint{}, fmt.Errorf("ecpoint: point not on curve")
	}
	if (y.Bit(0) == 0) != (b[0] == 0x02) {
		y.Sub(curve.P, y)
	}
	return ECPoint{X: x, Y: y}, nil
}

// ScriptHash derives the "signature redeem script" hash for a single public
// key, i.e. the U160 a CheckWitness call resolves a standard-account
// signer to. Multisig accounts use ScriptHashForMultisig.
func (p ECPoint) ScriptHash() U160 {
	return H160(standardVerificationScript(p))
}

// standardVerificationScript builds the canonical single-sig verification
// script: PUSHDATA1 <pubkey> SYSCALL Crypto.CheckSig.
func standardVerificationScript(p ECPoint) []byte {
	pk := p.CompressedBytes()
	script := make([]byte, 0, 2+len(pk)+5)
	script = append(script, byte(OpPUSHDATA1), byte(len(pk)))
	script = append(script, pk...)
	script = append(script, byte(OpSYSCALL))
	script = append(script, syscallIDBytes(SyscallCryptoCheckSig)...)
	return script
}

// ScriptHashForMultisig builds the canonical m-of-n multisig account script
// hash from a sorted set of public keys.
func ScriptHashForMultisig(m int, points []ECPoint) (U160, error) {
	script, err := multisigVerificationScript(m, points)
	if err != nil {
		return U160{}, err
	}
	return H160(script), nil
}

func multisigVerificationScript(m int, points []ECPoint) ([]byte, error) {
	n := len(points)
	if m <= 0 || m > n || n == 0 || n > 16 {
		return nil, fmt.Errorf("multisig: invalid m=%d of n=%d", m, n)
	}
	sorted := make([]ECPoint, n)
	copy(sorted, points)
	sortECPoints(sorted)

	script := []byte{pushIntOpcode(m)}
	for _, p := range sorted {
		pk := p.CompressedBytes()
		script = append(script, byte(OpPUSHDATA1), byte(len(pk)))
		script = append(script, pk...)
	}
	script = append(script, pushIntOpcode(n))
	script = append(script, byte(OpSYSCALL))
	script = append(script, syscallIDBytes(SyscallCryptoCheckMultisig)...)
	return script, nil
}

// sortECPoints orders keys by their compressed encoding, the canonical order
// a multisig script's key list must use so every party derives the same hash.
func sortECPoints(points []ECPoint) {
	sort.Slice(points, func(i, j int) bool {
		return bytes.Compare(points[i].CompressedBytes(), points[j].CompressedBytes()) < 0
	})
}

func pushIntOpcode(v int) byte {
	return byte(int(OpPUSH0) + v) // callers guarantee 0 <= v <= 16
}

// CheckSig verifies an ECDSA signature over msg using the secp256r1 curve,
// returning false rather than raising on malformed input.
func CheckSig(pub ECPoint, msg, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	pk := &ecdsa.PublicKey{Curve: Curve(), X: pub.X, Y: pub.Y}
	digest := H256(msg)
	return ecdsa.Verify(pk, digest[:], r, s)
}

// SignMessage signs msg with priv, returning the raw (r ‖ s) 64-byte
// signature format used by witnesses and consensus payloads.
func SignMessage(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := H256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	out := make([]byte, 64)
	rb, sb := r.Bytes(), s.Bytes()
	copy(out[32-len(rb):32], rb)
	copy(out[64-len(sb):64], sb)
	return out, nil
}

// ECPointFromHex parses a hex-encoded compressed public key.
func ECPointFromHex(s string) (ECPoint, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return ECPoint{}, fmt.Errorf("ecpoint hex: %w", err)
	}
	return ParseCompressedECPoint(raw)
}

// PrivateKeyFromHex rebuilds a secp256r1 private key from its hex scalar.
func PrivateKeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return nil, fmt.Errorf("private key hex: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}

// PrivateKeyFromBytes rebuilds a secp256r1 private key from its big-endian
// scalar bytes.
func PrivateKeyFromBytes(raw []byte) (*ecdsa.PrivateKey, error) {
	d := new(big.Int).SetBytes(raw)
	params := Curve().Params()
	if d.Sign() <= 0 || d.Cmp(params.N) >= 0 {
		return nil, fmt.Errorf("private key scalar out of range")
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.PublicKey.Curve = Curve()
	priv.PublicKey.X, priv.PublicKey.Y = Curve().ScalarBaseMult(d.Bytes())
	return priv, nil
}
