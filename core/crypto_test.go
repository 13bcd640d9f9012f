// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"bytes"
	"crypto/sha256"
	"math/rand"
	"testing"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

// referenceMerkle recomputes the root with the straightforward pairwise
// construction the implementation must match.
func referenceMerkle(hashes []U256) U256 {
	level := make([][]byte, len(hashes))
	for i, h := range hashes {
		level[i] = h.Bytes()
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			joined := append(append([]byte{}, level[i]...), level[i+1]...)
			first := sha256.Sum256(joined)
			second := sha256.Sum256(first[:])
			next = append(next, second[:])
		}
		level = next
	}
	var out U256
	copy(out[:], level[0])
	return out
}

func TestMerkleRootMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, n := range []int{1, 2, 3, 4, 5, 8, 13} {
		hashes := make([]U256, n)
		for i := range hashes {
			rng.Read(hashes[i][:])
		}
		got, err := MerkleRoot(hashes)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if want := referenceMerkle(hashes); got != want {
			t.Fatalf("n=%d: root %s, want %s", n, got, want)
		}
	}
	if _, err := MerkleRoot(nil); err == nil {
		t.Fatalf("empty input must error")
	}
}

func TestMerkleRootSingleLeafIsIdentity(t *testing.T) {
	h := H256([]byte("only"))
	got, err := MerkleRoot([]U256{h})
	if err != nil || got != h {
		t.Fatalf("single-leaf root %s, want the leaf itself", got)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	var h U160
	for i := range h {
		h[i] = byte(i * 7)
	}
	addr := EncodeAddress(h)
	back, err := DecodeAddress(addr)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back != h {
		t.Fatalf("address round trip changed the hash")
	}
	// A corrupted character must fail the checksum.
	corrupted := []byte(addr)
	if corrupted[3] == 'A' {
		corrupted[3] = 'B'
	} else {
		corrupted[3] = 'A'
	}
	if _, err := DecodeAddress(string(corrupted)); err == nil {
		t.Fatalf("corrupted address accepted")
	}
}

func TestHashStringForms(t *testing.T) {
	h := H256([]byte("x"))
	s := h.String()
	if len(s) != 66 || s[:2] != "0x" {
		t.Fatalf("unexpected hex form %q", s)
	}
	back, err := U256FromHex(s)
	if err != nil || back != h {
		t.Fatalf("hex round trip failed: %v", err)
	}
}

func TestSignAndCheckSig(t *testing.T) {
	priv, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pub := PublicKeyOf(priv)
	msg := []byte("signed payload")
	sig, err := SignMessage(priv, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !CheckSig(pub, msg, sig) {
		t.Fatalf("valid signature rejected")
	}
	if CheckSig(pub, []byte("other payload"), sig) {
		t.Fatalf("signature accepted for the wrong message")
	}
	sig[10] ^= 0xFF
	if CheckSig(pub, msg, sig) {
		t.Fatalf("corrupted signature accepted")
	}
	if CheckSig(pub, msg, sig[:20]) {
		t.Fatalf("short signature accepted")
	}
}

func TestCompressedPointRoundTrip(t *testing.T) {
	for i := 0; i < 8; i++ {
		priv, err := NewPrivateKey()
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		pub := PublicKeyOf(priv)
		raw := pub.CompressedBytes()
		back, err := ParseCompressedECPoint(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if back.X.Cmp(pub.X) != 0 || back.Y.Cmp(pub.Y) != 0 {
			t.Fatalf("point round trip diverged")
		}
	}
	if _, err := ParseCompressedECPoint(append([]byte{0x02}, bytes.Repeat([]byte{0x01}, 32)...)); err == nil {
		t.Fatalf("off-curve point accepted")
	}
}

func TestMultisigHashIgnoresKeyOrder(t *testing.T) {
	var points []ECPoint
	for i := 0; i < 4; i++ {
		priv, err := NewPrivateKey()
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		points = append(points, PublicKeyOf(priv))
	}
	h1, err := ScriptHashForMultisig(3, points)
	if err != nil {
		t.Fatalf("multisig: %v", err)
	}
	shuffled := []ECPoint{points[2], points[0], points[3], points[1]}
	h2, err := ScriptHashForMultisig(3, shuffled)
	if err != nil {
		t.Fatalf("multisig: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("multisig hash depends on key presentation order")
	}
}

func TestDoubleHashAndKeccak(t *testing.T) {
	data := []byte("hash me")
	if H256(data) == Keccak256(data) {
		t.Fatalf("sha256 and keccak256 should differ")
	}
	if Sha256(data) != H256(data) {
		t.Fatalf("Sha256 must be single SHA-256")
	}
	if Ripemd160(data) == H160(data) {
		t.Fatalf("raw ripemd160 must differ from the chained H160")
	}
}

func TestBLSSignAggregateVerify(t *testing.T) {
	msg := []byte("aggregate me")
	kp1 := NewBLSKeyPair()
	kp2 := NewBLSKeyPair()
	kp3 := NewBLSKeyPair()

	s1 := BLSSign(&kp1.Secret, msg)
	s2 := BLSSign(&kp2.Secret, msg)
	s3 := BLSSign(&kp3.Secret, msg)
	if !BLSVerify(&kp1.Public, msg, s1) {
		t.Fatalf("single share rejected")
	}
	agg := AggregateBLSSignatures([]*bls.Sign{s1, s2, s3})
	keys := []*bls.PublicKey{&kp1.Public, &kp2.Public, &kp3.Public}
	if !VerifyAggregatedBLS(keys, msg, agg) {
		t.Fatalf("aggregate rejected")
	}
	if VerifyAggregatedBLS(keys[:2], msg, agg) {
		t.Fatalf("aggregate verified against the wrong key set")
	}
}
