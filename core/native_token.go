// SPDX-License-Identifier: BUSL-1.1
//
// Fungible-token state plugin shared by NeoToken and GasToken. The C++
// lineage expressed this as a FungibleToken base class; here it is
// composition: a tokenState value carried by each token native, plus
// token-specific hooks layered on top.
package core

import (
	"fmt"
	"math/big"
)

const gasFactor = 100_000_000 // 10^8, one GAS in fractions

var (
	tokenKeyTotalSupply = []byte{0x0B}
	tokenPrefixAccount  = []byte{0x14}
)

// tokenState is the balance-book plugin: symbol/decimals metadata plus
// account-balance storage under the owning native's id. A token that keeps
// extra per-account bookkeeping in the same record (NEO's vote state)
// overrides the record codec; the default stores a bare integer.
type tokenState struct {
	contractID int32
	symbol     string
	decimals   int

	decodeBalance func(raw []byte) *big.Int
	updateBalance func(prev []byte, v *big.Int) []byte
}

func accountKey(account U160) []byte {
	return append(append([]byte{}, tokenPrefixAccount...), account[:]...)
}

// balance reads an account's balance from the snapshot.
func (t *tokenState) balance(snap *Snapshot, account U160) *big.Int {
	raw, ok := nativeGet(snap, t.contractID, accountKey(account))
	if !ok {
		return new(big.Int)
	}
	if t.decodeBalance != nil {
		return t.decodeBalance(raw)
	}
	return bytesToSignedInt(raw)
}

func (t *tokenState) setBalance(snap *Snapshot, account U160, v *big.Int) {
	if t.updateBalance != nil {
		prev, _ := nativeGet(snap, t.contractID, accountKey(account))
		rec := t.updateBalance(prev, v)
		if rec == nil {
			nativeDelete(snap, t.contractID, accountKey(account))
			return
		}
		nativePut(snap, t.contractID, accountKey(account), rec)
		return
	}
	if v.Sign() == 0 {
		nativeDelete(snap, t.contractID, accountKey(account))
		return
	}
	nativePut(snap, t.contractID, accountKey(account), signedIntToBytes(v))
}

func (t *tokenState) totalSupply(snap *Snapshot) *big.Int {
	raw, ok := nativeGet(snap, t.contractID, tokenKeyTotalSupply)
	if !ok {
		return new(big.Int)
	}
	return bytesToSignedInt(raw)
}

func (t *tokenState) setTotalSupply(snap *Snapshot, v *big.Int) {
	nativePut(snap, t.contractID, tokenKeyTotalSupply, signedIntToBytes(v))
}

// transferNotification emits the NEP-17 Transfer event: [from, to, amount],
// null for a mint's from / a burn's to.
func transferNotification(e *ApplicationEngine, contract U160, from, to *U160, amount *big.Int) error {
	fromItem := NewNullItem()
	if from != nil {
		fromItem = NewByteStringItem(from.Bytes())
	}
	toItem := NewNullItem()
	if to != nil {
		toItem = NewByteStringItem(to.Bytes())
	}
	state := NewArrayItem([]*StackItem{fromItem, toItem, NewIntItem(amount)})
	return e.notify(contract, "Transfer", state)
}

// balanceHook lets a token update per-account bookkeeping (NEO's
// GAS accrual) before a balance moves; nil for tokens without one.
type balanceHook func(e *ApplicationEngine, account U160) error

// transfer moves amount between accounts after a witness check on from,
// emitting exactly one Transfer notification.
func (t *tokenState) transfer(e *ApplicationEngine, contract U160, from, to U160, amount *big.Int, hook balanceHook) (bool, error) {
	if amount.Sign() < 0 {
		return false, newFault("%s: negative transfer amount", t.symbol)
	}
	authorized, err := e.CheckWitness(from)
	if err != nil {
		return false, err
	}
	if !authorized {
		return false, nil
	}
	if hook != nil {
		if err := hook(e, from); err != nil {
			return false, err
		}
		if from != to {
			if err := hook(e, to); err != nil {
				return false, err
			}
		}
	}
	fromBal := t.balance(e.Snapshot, from)
	if fromBal.Cmp(amount) < 0 {
		return false, nil
	}
	if from != to && amount.Sign() > 0 {
		t.setBalance(e.Snapshot, from, new(big.Int).Sub(fromBal, amount))
		toBal := t.balance(e.Snapshot, to)
		t.setBalance(e.Snapshot, to, new(big.Int).Add(toBal, amount))
	}
	if err := transferNotification(e, contract, &from, &to, amount); err != nil {
		return false, err
	}
	return true, nil
}

// mint creates amount out of nothing for account, growing total supply.
func (t *tokenState) mint(e *ApplicationEngine, contract U160, account U160, amount *big.Int, hook balanceHook) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%s: negative mint", t.symbol)
	}
	if amount.Sign() == 0 {
		return nil
	}
	if hook != nil {
		if err := hook(e, account); err != nil {
			return err
		}
	}
	bal := t.balance(e.Snapshot, account)
	t.setBalance(e.Snapshot, account, new(big.Int).Add(bal, amount))
	t.setTotalSupply(e.Snapshot, new(big.Int).Add(t.totalSupply(e.Snapshot), amount))
	return transferNotification(e, contract, nil, &account, amount)
}

// burn destroys amount from account, shrinking total supply.
func (t *tokenState) burn(e *ApplicationEngine, contract U160, account U160, amount *big.Int, hook balanceHook) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%s: negative burn", t.symbol)
	}
	if amount.Sign() == 0 {
		return nil
	}
	if hook != nil {
		if err := hook(e, account); err != nil {
			return err
		}
	}
	bal := t.balance(e.Snapshot, account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: burn %s exceeds balance %s of %s", t.symbol, amount, bal, account)
	}
	t.setBalance(e.Snapshot, account, new(big.Int).Sub(bal, amount))
	t.setTotalSupply(e.Snapshot, new(big.Int).Sub(t.totalSupply(e.Snapshot), amount))
	return transferNotification(e, contract, &account, nil, amount)
}

// registerTokenMethods wires the NEP-17 surface every fungible token
// exposes; token-specific methods are registered by the concrete natives.
func registerTokenMethods(n *NativeContract, t *tokenState, transferFn NativeMethodHandler) {
	n.register(&NativeMethod{
		Name: "symbol", ParamCount: 0, RequiredFlags: CallFlagNone, Price: 1 << 3,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return NewByteStringItem([]byte(t.symbol)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "decimals", ParamCount: 0, RequiredFlags: CallFlagNone, Price: 1 << 3,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return NewIntItemInt64(int64(t.decimals)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "totalSupply", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return NewIntItem(t.totalSupply(e.Snapshot)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "balanceOf", ParamCount: 1, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			account, err := popU160(args[0])
			if err != nil {
				return nil, newFault("balanceOf: %v", err)
			}
			return NewIntItem(t.balance(e.Snapshot, account)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "transfer", ParamCount: 4, RequiredFlags: CallFlagStates | CallFlagAllowNotify, Price: 1 << 17,
		Handler: transferFn,
	})
}
