// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"math/big"
	"testing"
)

// invokeNative drives a native method the way System.Contract.Call does:
// load the stub, stack the argument array and method selector, run.
func invokeNative(t *testing.T, e *ApplicationEngine, n *NativeContract, method string, args []*StackItem) *StackItem {
	t.Helper()
	ctx, err := e.LoadContractScript(n.StubScript(), n.Hash, CallFlagAll, 1)
	if err != nil {
		t.Fatalf("load stub: %v", err)
	}
	ctx.Push(NewArrayItem(args))
	ctx.Push(NewByteStringItem([]byte(method)))
	if state := e.Run(); state != VMStateHalt {
		t.Fatalf("%s.%s ended in %s: %v", n.Name, method, state, e.FaultException())
	}
	return e.Result()
}

func TestGasTransferRoundTrip(t *testing.T) {
	chain, natives, _, _ := newTestChainT(t, 1)
	snap, err := chain.store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	accountA := U160{0x01}
	accountB := U160{0x02}
	tx := &Transaction{
		Version:         0,
		ValidUntilBlock: 100,
		Signers:         []Signer{{Account: accountA, Scopes: ScopeGlobal}},
		Script:          []byte{byte(OpPUSH1)},
		Witnesses:       []Witness{{}},
	}
	e := chain.newEngine(TriggerApplication, snap, tx, nil, -1)
	if err := natives.Gas.Mint(e, accountA, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supplyAfterMint := natives.Gas.token.totalSupply(snap)

	result := invokeNative(t, e, natives.Gas.NativeContract, "transfer", []*StackItem{
		NewByteStringItem(accountA.Bytes()),
		NewByteStringItem(accountB.Bytes()),
		NewIntItemInt64(300),
		NewNullItem(),
	})
	if !result.Bool() {
		t.Fatalf("transfer returned false")
	}
	if got := natives.Gas.BalanceOf(snap, accountA); got.Int64() != 700 {
		t.Fatalf("balance A %s, want 700", got)
	}
	if got := natives.Gas.BalanceOf(snap, accountB); got.Int64() != 300 {
		t.Fatalf("balance B %s, want 300", got)
	}
	if natives.Gas.token.totalSupply(snap).Cmp(supplyAfterMint) != 0 {
		t.Fatalf("transfer changed total supply")
	}
	transfers := 0
	for _, n := range e.Notifications() {
		if n.EventName != "Transfer" || n.Contract != natives.Gas.Hash {
			continue
		}
		state, err := n.State.Array()
		if err != nil || len(state) != 3 {
			continue
		}
		fromRaw, _ := state[0].Bytes()
		toRaw, _ := state[1].Bytes()
		amount, _ := state[2].Int()
		if string(fromRaw) == string(accountA.Bytes()) &&
			string(toRaw) == string(accountB.Bytes()) && amount.Int64() == 300 {
			transfers++
		}
	}
	if transfers != 1 {
		t.Fatalf("observed %d Transfer(A, B, 300) notifications, want exactly 1", transfers)
	}
}

func TestGasTransferWithoutWitnessFails(t *testing.T) {
	chain, natives, _, _ := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()
	accountA := U160{0x01}
	// Container signed by someone else entirely.
	tx := &Transaction{
		Version:         0,
		ValidUntilBlock: 100,
		Signers:         []Signer{{Account: U160{0x09}, Scopes: ScopeGlobal}},
		Script:          []byte{byte(OpPUSH1)},
		Witnesses:       []Witness{{}},
	}
	e := chain.newEngine(TriggerApplication, snap, tx, nil, -1)
	if err := natives.Gas.Mint(e, accountA, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	result := invokeNative(t, e, natives.Gas.NativeContract, "transfer", []*StackItem{
		NewByteStringItem(accountA.Bytes()),
		NewByteStringItem(U160{0x02}.Bytes()),
		NewIntItemInt64(300),
		NewNullItem(),
	})
	if result.Bool() {
		t.Fatalf("unwitnessed transfer succeeded")
	}
	if got := natives.Gas.BalanceOf(snap, accountA); got.Int64() != 1000 {
		t.Fatalf("unwitnessed transfer moved funds: %s", got)
	}
}

func TestTokenMetadataMethods(t *testing.T) {
	chain, natives, _, _ := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()
	e := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	sym := invokeNative(t, e, natives.Gas.NativeContract, "symbol", nil)
	if raw, _ := sym.Bytes(); string(raw) != "GAS" {
		t.Fatalf("symbol %q", raw)
	}
	e2 := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	dec := invokeNative(t, e2, natives.Gas.NativeContract, "decimals", nil)
	if v, _ := dec.Int(); v.Int64() != 8 {
		t.Fatalf("GAS decimals %s, want 8", v)
	}
	e3 := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	neoDec := invokeNative(t, e3, natives.Neo.NativeContract, "decimals", nil)
	if v, _ := neoDec.Int(); v.Int64() != 2 {
		t.Fatalf("NEO decimals %s, want 2", v)
	}
}

func TestGenesisDistribution(t *testing.T) {
	chain, natives, cfg, _ := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()
	committee, err := cfg.CommitteeAddress()
	if err != nil {
		t.Fatalf("committee: %v", err)
	}
	if got := natives.Gas.BalanceOf(snap, committee); got.Int64() != cfg.InitialGasDistribution {
		t.Fatalf("genesis GAS %s, want %d", got, cfg.InitialGasDistribution)
	}
	neoBalance := natives.Neo.token.balance(snap, committee)
	if neoBalance.Cmp(natives.Neo.TotalSupplyUnits()) != 0 {
		t.Fatalf("genesis NEO %s, want the full supply", neoBalance)
	}
}

func TestNeoVoteAndCandidates(t *testing.T) {
	chain, natives, cfg, keys := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()
	committee, _ := cfg.CommitteeAddress()
	candidate := PublicKeyOf(keys[0])

	tx := &Transaction{
		Version:         0,
		ValidUntilBlock: 100,
		Signers: []Signer{
			{Account: committee, Scopes: ScopeGlobal},
			{Account: candidate.ScriptHash(), Scopes: ScopeGlobal},
		},
		Script:    []byte{byte(OpPUSH1)},
		Witnesses: []Witness{{}, {}},
	}
	e := chain.newEngine(TriggerApplication, snap, tx, nil, -1)
	reg := invokeNative(t, e, natives.Neo.NativeContract, "registerCandidate", []*StackItem{
		NewByteStringItem(candidate.CompressedBytes()),
	})
	if !reg.Bool() {
		t.Fatalf("registerCandidate returned false")
	}
	e2 := chain.newEngine(TriggerApplication, snap, tx, nil, -1)
	voted := invokeNative(t, e2, natives.Neo.NativeContract, "vote", []*StackItem{
		NewByteStringItem(committee.Bytes()),
		NewByteStringItem(candidate.CompressedBytes()),
	})
	if !voted.Bool() {
		t.Fatalf("vote returned false")
	}
	cands := natives.Neo.candidates(snap)
	if len(cands) != 1 {
		t.Fatalf("%d candidates, want 1", len(cands))
	}
	if cands[0].Votes.Cmp(natives.Neo.TotalSupplyUnits()) != 0 {
		t.Fatalf("candidate votes %s, want the voter's full balance", cands[0].Votes)
	}
}

func TestStdLibThroughDispatch(t *testing.T) {
	chain, natives, _, _ := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()

	e := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	out := invokeNative(t, e, natives.StdLib.NativeContract, "itoa", []*StackItem{
		NewIntItemInt64(-255), NewIntItemInt64(10),
	})
	if raw, _ := out.Bytes(); string(raw) != "-255" {
		t.Fatalf("itoa gave %q", raw)
	}

	e2 := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	back := invokeNative(t, e2, natives.StdLib.NativeContract, "atoi", []*StackItem{
		NewByteStringItem([]byte("-255")), NewIntItemInt64(10),
	})
	if v, _ := back.Int(); v.Int64() != -255 {
		t.Fatalf("atoi gave %s", v)
	}

	e3 := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	encoded := invokeNative(t, e3, natives.StdLib.NativeContract, "base64Encode", []*StackItem{
		NewByteStringItem([]byte("neo")),
	})
	if raw, _ := encoded.Bytes(); string(raw) != "bmVv" {
		t.Fatalf("base64Encode gave %q", raw)
	}

	e4 := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	jsonOut := invokeNative(t, e4, natives.StdLib.NativeContract, "jsonSerialize", []*StackItem{
		NewArrayItem([]*StackItem{NewIntItemInt64(1), NewBoolItem(true)}),
	})
	if raw, _ := jsonOut.Bytes(); string(raw) != "[1,true]" {
		t.Fatalf("jsonSerialize gave %q", raw)
	}
}

func TestCryptoLibHashesThroughDispatch(t *testing.T) {
	chain, natives, _, _ := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()
	e := chain.newEngine(TriggerApplication, snap, nil, nil, -1)
	out := invokeNative(t, e, natives.CryptoLib.NativeContract, "sha256", []*StackItem{
		NewByteStringItem([]byte("abc")),
	})
	raw, _ := out.Bytes()
	want := H256([]byte("abc"))
	if string(raw) != string(want.Bytes()) {
		t.Fatalf("sha256 through dispatch diverged")
	}
}

func TestPolicyDefaultsAndBlockedAccounts(t *testing.T) {
	chain, natives, _, _ := newTestChainT(t, 1)
	snap, _ := chain.store.Snapshot()
	if got := natives.Policy.FeePerByte(snap); got != DefaultFeePerByte {
		t.Fatalf("fee per byte %d, want default %d", got, DefaultFeePerByte)
	}
	if natives.Policy.IsBlocked(snap, U160{0x01}) {
		t.Fatalf("fresh chain has a blocked account")
	}
}
