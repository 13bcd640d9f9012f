// SPDX-License-Identifier: BUSL-1.1
//
// BLS12-381 signing, aggregation and group operations over
// github.com/herumi/bls-eth-go-binary, backing the CryptoLib native's
// bls12381* methods.
package core

import (
	"fmt"
	"sync"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

var blsInitOnce sync.Once

func ensureBLSInit() {
	blsInitOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic(fmt.Errorf("bls12-381 init: %w", err))
		}
		bls.SetETHmode(bls.EthModeDraft07)
	})
}

// BLSKeyPair is a validator's BLS12-381 signing key.
type BLSKeyPair struct {
	Secret bls.SecretKey
	Public bls.PublicKey
}

// NewBLSKeyPair generates a fresh validator signing key.
func NewBLSKeyPair() *BLSKeyPair {
	ensureBLSInit()
	var kp BLSKeyPair
	kp.Secret.SetByCSPRNG()
	kp.Public = *kp.Secret.GetPublicKey()
	return &kp
}

// BLSSign produces a signature share over msg.
func BLSSign(secret *bls.SecretKey, msg []byte) *bls.Sign {
	ensureBLSInit()
	return secret.SignByte(msg)
}

// BLSVerify checks a single signature share.
func BLSVerify(pub *bls.PublicKey, msg []byte, sig *bls.Sign) bool {
	ensureBLSInit()
	return sig.VerifyByte(pub, msg)
}

// AggregateBLSSignatures combines signature shares over the same message
// into one aggregate, the operation behind the CryptoLib native's
// bls12381AggregateSignatures method.
func AggregateBLSSignatures(sigs []*bls.Sign) *bls.Sign {
	ensureBLSInit()
	if len(sigs) == 0 {
		return nil
	}
	agg := *sigs[0]
	for _, s := range sigs[1:] {
		agg.Add(s)
	}
	return &agg
}

// VerifyAggregatedBLS verifies an aggregated signature against the
// corresponding set of public keys, all signing the same message.
func VerifyAggregatedBLS(pubs []*bls.PublicKey, msg []byte, agg *bls.Sign) bool {
	ensureBLSInit()
	if len(pubs) == 0 {
		return false
	}
	aggPub := *pubs[0]
	for _, p := range pubs[1:] {
		aggPub.Add(p)
	}
	return agg.VerifyByte(&aggPub, msg)
}

// BLS12381Add implements CryptoLib.bls12_381_add: point addition within the
// same group (G1 or G2), dispatched on the concrete type of a and b.
func BLS12381Add(a, b interface{}) (interface{}, error) {
	ensureBLSInit()
	switch av := a.(type) {
	case *bls.G1:
		bv, ok := b.(*bls.G1)
		if !ok {
			return nil, fmt.Errorf("bls12_381_add: mismatched group types")
		}
		var out bls.G1
		bls.G1Add(&out, av, bv)
		return &out, nil
	case *bls.G2:
		bv, ok := b.(*bls.G2)
		if !ok {
			return nil, fmt.Errorf("bls12_381_add: mismatched group types")
		}
		var out bls.G2
		bls.G2Add(&out, av, bv)
		return &out, nil
	default:
		return nil, fmt.Errorf("bls12_381_add: unsupported operand type %T", a)
	}
}

// BLS12381Mul implements CryptoLib.bls12_381_mul: scalar multiplication of a
// G1/G2 point by a Fr scalar.
func BLS12381Mul(point interface{}, scalar *bls.Fr) (interface{}, error) {
	ensureBLSInit()
	switch p := point.(type) {
	case *bls.G1:
		var out bls.G1
		bls.G1Mul(&out, p, scalar)
		return &out, nil
	case *bls.G2:
		var out bls.G2
		bls.G2Mul(&out, p, scalar)
		return &out, nil
	default:
		return nil, fmt.Errorf("bls12_381_mul: unsupported operand type %T", point)
	}
}

// BLS12381Pairing implements CryptoLib.bls12_381_pairing: e(g1, g2) -> GT.
func BLS12381Pairing(g1 *bls.G1, g2 *bls.G2) *bls.GT {
	ensureBLSInit()
	var out bls.GT
	bls.Pairing(&out, g1, g2)
	return &out
}
