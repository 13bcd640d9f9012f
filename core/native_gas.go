// SPDX-License-Identifier: BUSL-1.1
//
// GasToken: the 8-decimal utility token. Minted by NeoToken's
// accrual hook and the committee reward, burned as transaction fees by the
// block-persistence pipeline.
package core

import "math/big"

// GasToken is the fee token native.
type GasToken struct {
	*NativeContract
	token *tokenState
	cfg   *ProtocolConfig
}

// NewGasToken builds the GAS native.
func NewGasToken(cfg *ProtocolConfig) *GasToken {
	g := &GasToken{
		NativeContract: newNativeContract(NativeIDGasToken, "GasToken"),
		cfg:            cfg,
	}
	g.token = &tokenState{contractID: NativeIDGasToken, symbol: "GAS", decimals: 8}
	registerTokenMethods(g.NativeContract, g.token, g.handleTransfer)
	g.initialize = g.initializeContract
	g.onPersist = g.onPersistHook
	return g
}

func (g *GasToken) initializeContract(e *ApplicationEngine) error {
	committee, err := g.cfg.CommitteeAddress()
	if err != nil {
		return err
	}
	return g.token.mint(e, g.Hash, committee, big.NewInt(g.cfg.InitialGasDistribution), nil)
}

func (g *GasToken) handleTransfer(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
	from, err := popU160(args[0])
	if err != nil {
		return nil, newFault("transfer: %v", err)
	}
	to, err := popU160(args[1])
	if err != nil {
		return nil, newFault("transfer: %v", err)
	}
	amount, err := args[2].Int()
	if err != nil {
		return nil, newFault("transfer: %v", err)
	}
	ok, err := g.token.transfer(e, g.Hash, from, to, amount, nil)
	if err != nil {
		return nil, err
	}
	return NewBoolItem(ok), nil
}

// BalanceOf reads an account's GAS balance straight from a snapshot,
// bypassing the VM; the fee-charging path in the blockchain driver uses
// this rather than a contract call.
func (g *GasToken) BalanceOf(snap *Snapshot, account U160) *big.Int {
	return g.token.balance(snap, account)
}

// Mint credits amount to account (NeoToken accrual, committee reward,
// genesis distribution).
func (g *GasToken) Mint(e *ApplicationEngine, account U160, amount *big.Int) error {
	return g.token.mint(e, g.Hash, account, amount, nil)
}

// Burn destroys amount from account; fee settlement calls this for every
// transaction in a block.
func (g *GasToken) Burn(e *ApplicationEngine, account U160, amount *big.Int) error {
	return g.token.burn(e, g.Hash, account, amount, nil)
}

// onPersistHook mints the persisting block's total network fees to the
// primary validator that assembled it.
func (g *GasToken) onPersistHook(e *ApplicationEngine) error {
	block := e.PersistingBlock
	if block == nil || len(block.Transactions) == 0 {
		return nil
	}
	total := new(big.Int)
	for _, tx := range block.Transactions {
		total.Add(total, big.NewInt(tx.NetworkFee))
	}
	if total.Sign() <= 0 {
		return nil
	}
	validators := e.natives.Neo.NextBlockValidators(e.Snapshot)
	idx := int(block.Header.PrimaryIndex)
	if idx >= len(validators) {
		return nil
	}
	return g.Mint(e, validators[idx].ScriptHash(), total)
}
