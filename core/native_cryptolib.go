// SPDX-License-Identifier: BUSL-1.1
//
// CryptoLib: hashing and BLS12-381 group operations exposed to contracts
//, backed by crypto_hash.go / crypto_keccak.go / crypto_bls.go.
package core

import (
	bls "github.com/herumi/bls-eth-go-binary/bls"
)

// CryptoLib is the cryptographic helper native.
type CryptoLib struct {
	*NativeContract
}

// NewCryptoLib builds the cryptolib native.
func NewCryptoLib() *CryptoLib {
	c := &CryptoLib{NativeContract: newNativeContract(NativeIDCryptoLib, "CryptoLib")}
	c.registerMethods()
	return c
}

// blsPoint wraps a deserialized G1/G2/GT element as an interop handle.
type blsPoint struct {
	point any // *bls.G1, *bls.G2 or *bls.GT
}

func popBLSPoint(item *StackItem, what string) (*blsPoint, error) {
	p, ok := item.interop.(*blsPoint)
	if !ok {
		return nil, newFault("%s: operand is not a bls12-381 point", what)
	}
	return p, nil
}

func (c *CryptoLib) registerMethods() {
	hashMethod := func(name string, h NativeMethodHandler) {
		c.register(&NativeMethod{
			Name: name, ParamCount: 1, RequiredFlags: CallFlagNone, Price: 1 << 15,
			Handler: h,
		})
	}
	hashMethod("sha256", func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := args[0].Bytes()
		if err != nil {
			return nil, newFault("sha256: %v", err)
		}
		sum := Sha256(raw)
		return NewByteStringItem(sum.Bytes()), nil
	})
	hashMethod("ripemd160", func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := args[0].Bytes()
		if err != nil {
			return nil, newFault("ripemd160: %v", err)
		}
		sum := Ripemd160(raw)
		return NewByteStringItem(sum.Bytes()), nil
	})
	hashMethod("keccak256", func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := args[0].Bytes()
		if err != nil {
			return nil, newFault("keccak256: %v", err)
		}
		sum := Keccak256(raw)
		return NewByteStringItem(sum.Bytes()), nil
	})

	c.register(&NativeMethod{
		Name: "verifyWithECDsa", ParamCount: 3, RequiredFlags: CallFlagNone, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			msg, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("verifyWithECDsa: %v", err)
			}
			pubRaw, err := args[1].Bytes()
			if err != nil {
				return nil, newFault("verifyWithECDsa: %v", err)
			}
			sig, err := args[2].Bytes()
			if err != nil {
				return nil, newFault("verifyWithECDsa: %v", err)
			}
			pub, perr := ParseCompressedECPoint(pubRaw)
			if perr != nil {
				return NewBoolItem(false), nil
			}
			return NewBoolItem(CheckSig(pub, msg, sig)), nil
		},
	})

	c.register(&NativeMethod{
		Name: "bls12381Deserialize", ParamCount: 1, RequiredFlags: CallFlagNone, Price: 1 << 19,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			raw, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("bls12381Deserialize: %v", err)
			}
			ensureBLSInit()
			switch len(raw) {
			case 48:
				var g1 bls.G1
				if err := g1.Deserialize(raw); err != nil {
					return nil, newFault("bls12381Deserialize: %v", err)
				}
				return NewInteropItem(&blsPoint{point: &g1}), nil
			case 96:
				var g2 bls.G2
				if err := g2.Deserialize(raw); err != nil {
					return nil, newFault("bls12381Deserialize: %v", err)
				}
				return NewInteropItem(&blsPoint{point: &g2}), nil
			default:
				return nil, newFault("bls12381Deserialize: unexpected length %d", len(raw))
			}
		},
	})
	c.register(&NativeMethod{
		Name: "bls12381Serialize", ParamCount: 1, RequiredFlags: CallFlagNone, Price: 1 << 19,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			p, err := popBLSPoint(args[0], "bls12381Serialize")
			if err != nil {
				return nil, err
			}
			switch v := p.point.(type) {
			case *bls.G1:
				return NewByteStringItem(v.Serialize()), nil
			case *bls.G2:
				return NewByteStringItem(v.Serialize()), nil
			case *bls.GT:
				return NewByteStringItem(v.Serialize()), nil
			default:
				return nil, newFault("bls12381Serialize: unknown point kind")
			}
		},
	})
	c.register(&NativeMethod{
		Name: "bls12381Add", ParamCount: 2, RequiredFlags: CallFlagNone, Price: 1 << 19,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			a, err := popBLSPoint(args[0], "bls12381Add")
			if err != nil {
				return nil, err
			}
			b, err := popBLSPoint(args[1], "bls12381Add")
			if err != nil {
				return nil, err
			}
			out, err := BLS12381Add(a.point, b.point)
			if err != nil {
				return nil, newFault("%v", err)
			}
			return NewInteropItem(&blsPoint{point: out}), nil
		},
	})
	c.register(&NativeMethod{
		Name: "bls12381Mul", ParamCount: 2, RequiredFlags: CallFlagNone, Price: 1 << 21,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			p, err := popBLSPoint(args[0], "bls12381Mul")
			if err != nil {
				return nil, err
			}
			scalarRaw, err := args[1].Bytes()
			if err != nil {
				return nil, newFault("bls12381Mul: %v", err)
			}
			ensureBLSInit()
			var fr bls.Fr
			if err := fr.SetLittleEndianMod(scalarRaw); err != nil {
				return nil, newFault("bls12381Mul: %v", err)
			}
			out, err := BLS12381Mul(p.point, &fr)
			if err != nil {
				return nil, newFault("%v", err)
			}
			return NewInteropItem(&blsPoint{point: out}), nil
		},
	})
	c.register(&NativeMethod{
		Name: "bls12381AggregateSignatures", ParamCount: 1, RequiredFlags: CallFlagNone, Price: 1 << 19,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			arr, err := args[0].Array()
			if err != nil || len(arr) == 0 {
				return nil, newFault("bls12381AggregateSignatures: need a non-empty signature array")
			}
			ensureBLSInit()
			sigs := make([]*bls.Sign, 0, len(arr))
			for _, it := range arr {
				raw, err := it.Bytes()
				if err != nil {
					return nil, newFault("bls12381AggregateSignatures: %v", err)
				}
				var sig bls.Sign
				if err := sig.Deserialize(raw); err != nil {
					return nil, newFault("bls12381AggregateSignatures: %v", err)
				}
				sigs = append(sigs, &sig)
			}
			agg := AggregateBLSSignatures(sigs)
			return NewByteStringItem(agg.Serialize()), nil
		},
	})
	c.register(&NativeMethod{
		Name: "bls12381VerifyAggregate", ParamCount: 3, RequiredFlags: CallFlagNone, Price: 1 << 21,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			keysArr, err := args[0].Array()
			if err != nil {
				return nil, newFault("bls12381VerifyAggregate: %v", err)
			}
			msg, err := args[1].Bytes()
			if err != nil {
				return nil, newFault("bls12381VerifyAggregate: %v", err)
			}
			sigRaw, err := args[2].Bytes()
			if err != nil {
				return nil, newFault("bls12381VerifyAggregate: %v", err)
			}
			ensureBLSInit()
			pubs := make([]*bls.PublicKey, 0, len(keysArr))
			for _, it := range keysArr {
				raw, err := it.Bytes()
				if err != nil {
					return nil, newFault("bls12381VerifyAggregate: %v", err)
				}
				var pub bls.PublicKey
				if err := pub.Deserialize(raw); err != nil {
					return NewBoolItem(false), nil
				}
				pubs = append(pubs, &pub)
			}
			var agg bls.Sign
			if err := agg.Deserialize(sigRaw); err != nil {
				return NewBoolItem(false), nil
			}
			return NewBoolItem(VerifyAggregatedBLS(pubs, msg, &agg)), nil
		},
	})
	c.register(&NativeMethod{
		Name: "bls12381Pairing", ParamCount: 2, RequiredFlags: CallFlagNone, Price: 1 << 23,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			a, err := popBLSPoint(args[0], "bls12381Pairing")
			if err != nil {
				return nil, err
			}
			b, err := popBLSPoint(args[1], "bls12381Pairing")
			if err != nil {
				return nil, err
			}
			g1, ok := a.point.(*bls.G1)
			if !ok {
				return nil, newFault("bls12381Pairing: first operand must be G1")
			}
			g2, ok := b.point.(*bls.G2)
			if !ok {
				return nil, newFault("bls12381Pairing: second operand must be G2")
			}
			return NewInteropItem(&blsPoint{point: BLS12381Pairing(g1, g2)}), nil
		},
	})
}
