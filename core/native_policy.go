// SPDX-License-Identifier: BUSL-1.1
//
// PolicyContract: committee-tunable protocol parameters.
package core

import "math/big"

var (
	policyKeyFeePerByte        = []byte{0x0A}
	policyKeyMaxTxPerBlock     = []byte{0x17}
	policyKeyMaxBlockSize      = []byte{0x0C}
	policyKeyMaxBlockSystemFee = []byte{0x11}
	policyKeyExecFeeFactor     = []byte{0x12}
	policyKeyStoragePrice      = []byte{0x13}
	policyPrefixBlocked        = []byte{0x0F}
)

// Policy defaults, in force until the committee overrides them.
const (
	DefaultFeePerByte        int64 = 1_000
	DefaultMaxTxPerBlock     int64 = 512
	DefaultMaxBlockSizeBytes int64 = 262_144
	DefaultMaxBlockSystemFee int64 = 9_000 * gasFactor
)

// PolicyContract owns the tunables other components read each block.
type PolicyContract struct {
	*NativeContract
	cfg *ProtocolConfig
}

// NewPolicyContract builds the policy native.
func NewPolicyContract(cfg *ProtocolConfig) *PolicyContract {
	p := &PolicyContract{
		NativeContract: newNativeContract(NativeIDPolicy, "PolicyContract"),
		cfg:            cfg,
	}
	p.registerMethods()
	return p
}

// storedInt reads an integer parameter, falling back to def when unset.
func (p *PolicyContract) storedInt(snap *Snapshot, key []byte, def int64) int64 {
	raw, ok := nativeGet(snap, p.ID, key)
	if !ok {
		return def
	}
	return bytesToSignedInt(raw).Int64()
}

// FeePerByte is the minimum network fee per serialized transaction byte.
func (p *PolicyContract) FeePerByte(snap *Snapshot) int64 {
	return p.storedInt(snap, policyKeyFeePerByte, DefaultFeePerByte)
}

// ExecFeeFactor scales every opcode's base gas cost.
func (p *PolicyContract) ExecFeeFactor(snap *Snapshot) int64 {
	return p.storedInt(snap, policyKeyExecFeeFactor, DefaultExecFeeFactor)
}

// StoragePrice is the per-byte gas price of a storage write.
func (p *PolicyContract) StoragePrice(snap *Snapshot) int64 {
	return p.storedInt(snap, policyKeyStoragePrice, DefaultStoragePrice)
}

// MaxTransactionsPerBlock bounds block candidate selection.
func (p *PolicyContract) MaxTransactionsPerBlock(snap *Snapshot) int64 {
	return p.storedInt(snap, policyKeyMaxTxPerBlock, DefaultMaxTxPerBlock)
}

// MaxBlockSize bounds a candidate block's serialized size.
func (p *PolicyContract) MaxBlockSize(snap *Snapshot) int64 {
	return p.storedInt(snap, policyKeyMaxBlockSize, DefaultMaxBlockSizeBytes)
}

// MaxBlockSystemFee bounds the summed system fees of a block.
func (p *PolicyContract) MaxBlockSystemFee(snap *Snapshot) int64 {
	return p.storedInt(snap, policyKeyMaxBlockSystemFee, DefaultMaxBlockSystemFee)
}

func blockedKey(account U160) []byte {
	return append(append([]byte{}, policyPrefixBlocked...), account[:]...)
}

// IsBlocked reports whether account is on the blocked list; a transaction
// with a blocked signer fails stateful verification. Role designation does
// not consult the list.
func (p *PolicyContract) IsBlocked(snap *Snapshot, account U160) bool {
	_, ok := nativeGet(snap, p.ID, blockedKey(account))
	return ok
}

func (p *PolicyContract) checkCommittee(e *ApplicationEngine) error {
	addr, err := p.cfg.CommitteeAddress()
	if err != nil {
		return err
	}
	ok, err := e.CheckWitness(addr)
	if err != nil {
		return err
	}
	if !ok {
		return newFault("committee witness required")
	}
	return nil
}

func (p *PolicyContract) registerMethods() {
	getter := func(name string, read func(*Snapshot) int64) {
		p.register(&NativeMethod{
			Name: name, ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
			Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
				return NewIntItemInt64(read(e.Snapshot)), nil
			},
		})
	}
	getter("getFeePerByte", p.FeePerByte)
	getter("getExecFeeFactor", p.ExecFeeFactor)
	getter("getStoragePrice", p.StoragePrice)
	getter("getMaxTransactionsPerBlock", p.MaxTransactionsPerBlock)
	getter("getMaxBlockSize", p.MaxBlockSize)
	getter("getMaxBlockSystemFee", p.MaxBlockSystemFee)

	setter := func(name string, key []byte, min, max int64) {
		p.register(&NativeMethod{
			Name: name, ParamCount: 1, RequiredFlags: CallFlagStates, Price: 1 << 15,
			Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
				v, err := args[0].Int()
				if err != nil {
					return nil, newFault("%s: %v", name, err)
				}
				iv := v.Int64()
				if iv < min || iv > max {
					return nil, newFault("%s: value %d out of [%d, %d]", name, iv, min, max)
				}
				if err := p.checkCommittee(e); err != nil {
					return nil, err
				}
				nativePut(e.Snapshot, p.ID, key, signedIntToBytes(big.NewInt(iv)))
				return nil, nil
			},
		})
	}
	setter("setFeePerByte", policyKeyFeePerByte, 0, 100*gasFactor)
	setter("setExecFeeFactor", policyKeyExecFeeFactor, 1, 100)
	setter("setStoragePrice", policyKeyStoragePrice, 1, 10_000_000)
	setter("setMaxTransactionsPerBlock", policyKeyMaxTxPerBlock, 1, MaxTransactionsPerBlock)
	setter("setMaxBlockSize", policyKeyMaxBlockSize, 1024, MaxBlockSize)
	setter("setMaxBlockSystemFee", policyKeyMaxBlockSystemFee, 4*gasFactor, 100_000*gasFactor)

	p.register(&NativeMethod{
		Name: "isBlocked", ParamCount: 1, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			account, err := popU160(args[0])
			if err != nil {
				return nil, newFault("isBlocked: %v", err)
			}
			return NewBoolItem(p.IsBlocked(e.Snapshot, account)), nil
		},
	})
	p.register(&NativeMethod{
		Name: "blockAccount", ParamCount: 1, RequiredFlags: CallFlagStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			account, err := popU160(args[0])
			if err != nil {
				return nil, newFault("blockAccount: %v", err)
			}
			if err := p.checkCommittee(e); err != nil {
				return nil, err
			}
			if p.IsBlocked(e.Snapshot, account) {
				return NewBoolItem(false), nil
			}
			nativePut(e.Snapshot, p.ID, blockedKey(account), []byte{0x01})
			return NewBoolItem(true), nil
		},
	})
	p.register(&NativeMethod{
		Name: "unblockAccount", ParamCount: 1, RequiredFlags: CallFlagStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			account, err := popU160(args[0])
			if err != nil {
				return nil, newFault("unblockAccount: %v", err)
			}
			if err := p.checkCommittee(e); err != nil {
				return nil, err
			}
			if !p.IsBlocked(e.Snapshot, account) {
				return NewBoolItem(false), nil
			}
			nativeDelete(e.Snapshot, p.ID, blockedKey(account))
			return NewBoolItem(true), nil
		},
	})
}
