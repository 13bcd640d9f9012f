// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"strings"
	"testing"
)

func newBareEngine(t *testing.T, gasLimit int64) *ApplicationEngine {
	t.Helper()
	snap, err := NewMemoryStore().Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return NewApplicationEngine(EngineOptions{
		Trigger:       TriggerApplication,
		Snapshot:      snap,
		GasLimit:      gasLimit,
		ExecFeeFactor: 1,
	})
}

func TestEngineChargesFaultingScript(t *testing.T) {
	// PUSHNULL PUSH1 LE faults on the comparison but the two pushes (and
	// the comparison's own pre-charge) are still accounted.
	e := newBareEngine(t, 1_000_000)
	script := []byte{byte(OpPUSHNULL), byte(OpPUSH1), byte(OpLE), byte(OpRET)}
	if _, err := e.LoadContractScript(script, H160(script), CallFlagAll, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Run(); state != VMStateFault {
		t.Fatalf("expected FAULT, got %s", state)
	}
	want := GasCost(OpPUSHNULL) + GasCost(OpPUSH1) + GasCost(OpLE)
	if e.GasConsumed() != want {
		t.Fatalf("gas consumed %d, want %d", e.GasConsumed(), want)
	}
}

func TestEngineOutOfGas(t *testing.T) {
	e := newBareEngine(t, GasCost(OpPUSH1)) // enough for one push only
	script := []byte{byte(OpPUSH1), byte(OpPUSH2), byte(OpADD), byte(OpRET)}
	if _, err := e.LoadContractScript(script, H160(script), CallFlagAll, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Run(); state != VMStateFault {
		t.Fatalf("expected FAULT, got %s", state)
	}
	if e.FaultException() == nil || !strings.Contains(e.FaultException().Error(), "out of gas") {
		t.Fatalf("fault reason %v, want out-of-gas", e.FaultException())
	}
}

func TestEnginePushDataSurcharge(t *testing.T) {
	payload := make([]byte, 100)
	script := append([]byte{byte(OpPUSHDATA1), byte(len(payload))}, payload...)
	script = append(script, byte(OpRET))
	e := newBareEngine(t, 1_000_000)
	if _, err := e.LoadContractScript(script, H160(script), CallFlagAll, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Run(); state != VMStateHalt {
		t.Fatalf("expected HALT, got %s (%v)", state, e.FaultException())
	}
	if want := GasCost(OpPUSHDATA1) + int64(len(payload)); e.GasConsumed() != want {
		t.Fatalf("gas consumed %d, want %d (base + per-byte)", e.GasConsumed(), want)
	}
}

func syscallScript(name string) []byte {
	script := []byte{byte(OpSYSCALL)}
	script = append(script, syscallIDBytes(hashSyscallName(name))...)
	return append(script, byte(OpRET))
}

func TestRuntimePlatformSyscall(t *testing.T) {
	e := newBareEngine(t, 1_000_000)
	script := syscallScript("System.Runtime.Platform")
	if _, err := e.LoadContractScript(script, H160(script), CallFlagAll, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Run(); state != VMStateHalt {
		t.Fatalf("expected HALT, got %s (%v)", state, e.FaultException())
	}
	raw, err := e.Result().Bytes()
	if err != nil || string(raw) != "NEO" {
		t.Fatalf("platform = %q (%v), want NEO", raw, err)
	}
}

func TestUnknownSyscallFaults(t *testing.T) {
	e := newBareEngine(t, 1_000_000)
	script := []byte{byte(OpSYSCALL), 0xDE, 0xAD, 0xBE, 0xEF, byte(OpRET)}
	if _, err := e.LoadContractScript(script, H160(script), CallFlagAll, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Run(); state != VMStateFault {
		t.Fatalf("unknown syscall must fault, got %s", state)
	}
}

func TestNotifyForbiddenUnderVerification(t *testing.T) {
	snap, _ := NewMemoryStore().Snapshot()
	e := NewApplicationEngine(EngineOptions{
		Trigger:       TriggerVerification,
		Snapshot:      snap,
		GasLimit:      VerificationGasLimit,
		ExecFeeFactor: 1,
	})
	if err := e.notify(U160{}, "Event", NewNullItem()); err == nil {
		t.Fatalf("Notify must fail under the Verification trigger")
	}
}

func TestSyscallFlagGate(t *testing.T) {
	e := newBareEngine(t, 1_000_000)
	// Storage.GetContext requires ReadStates; load with no flags at all.
	script := syscallScript("System.Storage.GetContext")
	if _, err := e.LoadContractScript(script, H160(script), CallFlagNone, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Run(); state != VMStateFault {
		t.Fatalf("flag-gated syscall must fault without ReadStates, got %s", state)
	}
}

func TestCheckWitnessScopes(t *testing.T) {
	chain, _, _, _ := newTestChainT(t, 1)
	snap, err := chain.store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	signer := U160{0xAA}
	entry := U160{0xBB}
	tx := &Transaction{
		Version:         0,
		ValidUntilBlock: 100,
		Signers:         []Signer{{Account: signer, Scopes: ScopeCalledByEntry}},
		Script:          []byte{byte(OpPUSH1)},
		Witnesses:       []Witness{{}},
	}
	e := chain.newEngine(TriggerApplication, snap, tx, nil, -1)
	if _, err := e.LoadContractScript([]byte{byte(OpPUSH1), byte(OpRET)}, entry, CallFlagAll, 0); err != nil {
		t.Fatalf("load: %v", err)
	}
	// CalledByEntry scope authorizes the entry context.
	ok, err := e.CheckWitness(signer)
	if err != nil || !ok {
		t.Fatalf("CalledByEntry at entry depth: %v %v", ok, err)
	}
	// An account that never signed is not witnessed.
	ok, err = e.CheckWitness(U160{0xCC})
	if err != nil || ok {
		t.Fatalf("unsigned account witnessed")
	}

	tx.Signers[0].Scopes = ScopeNone
	ok, err = e.CheckWitness(signer)
	if err != nil || ok {
		t.Fatalf("ScopeNone authorized")
	}

	tx.Signers[0].Scopes = ScopeCustomContracts
	tx.Signers[0].AllowedContracts = []U160{entry}
	ok, err = e.CheckWitness(signer)
	if err != nil || !ok {
		t.Fatalf("CustomContracts for the executing contract rejected: %v %v", ok, err)
	}
	tx.Signers[0].AllowedContracts = []U160{{0xDD}}
	ok, err = e.CheckWitness(signer)
	if err != nil || ok {
		t.Fatalf("CustomContracts authorized an unlisted contract")
	}
}
