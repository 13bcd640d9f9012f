// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"math/big"
	"testing"
)

func runScript(t *testing.T, script []byte) *VM {
	t.Helper()
	vm := NewVM()
	if _, err := vm.LoadScript(script, CallFlagAll, 1, 0); err != nil {
		t.Fatalf("load script: %v", err)
	}
	vm.Execute()
	return vm
}

func mustResultInt(t *testing.T, vm *VM) *big.Int {
	t.Helper()
	if vm.State() != VMStateHalt {
		t.Fatalf("expected HALT, got %s (%v)", vm.State(), vm.FaultException())
	}
	item := vm.Result()
	if item == nil {
		t.Fatalf("no result item")
	}
	v, err := item.Int()
	if err != nil {
		t.Fatalf("result not an integer: %v", err)
	}
	return v
}

func TestArithmeticSanity(t *testing.T) {
	// PUSH2 PUSH3 ADD RET -> HALT with [5].
	vm := runScript(t, []byte{byte(OpPUSH2), byte(OpPUSH3), byte(OpADD), byte(OpRET)})
	if got := mustResultInt(t, vm); got.Int64() != 5 {
		t.Fatalf("2+3 = %s, want 5", got)
	}
}

func TestFactorialLoop(t *testing.T) {
	// Iterative 5! over the evaluation stack: [n acc] until n reaches zero.
	script := []byte{
		byte(OpPUSH5), // 0
		byte(OpPUSH1), // 1
		// loop:
		byte(OpOVER),       // 2
		byte(OpPUSH0),      // 3
		byte(OpJMPEQ), 9,   // 4: -> end (13)
		byte(OpOVER),       // 6
		byte(OpMUL),        // 7
		byte(OpSWAP),       // 8
		byte(OpDEC),        // 9
		byte(OpSWAP),       // 10
		byte(OpJMP), 0xF7,  // 11: -> loop (2), delta -9
		// end:
		byte(OpNIP), // 13
		byte(OpRET), // 14
	}
	vm := runScript(t, script)
	if got := mustResultInt(t, vm); got.Int64() != 120 {
		t.Fatalf("5! = %s, want 120", got)
	}
}

func TestNullComparisonFaults(t *testing.T) {
	// PUSHNULL PUSH1 LE -> FAULT: null is not comparable.
	vm := runScript(t, []byte{byte(OpPUSHNULL), byte(OpPUSH1), byte(OpLE), byte(OpRET)})
	if vm.State() != VMStateFault {
		t.Fatalf("expected FAULT, got %s", vm.State())
	}
}

func TestNestedTryLeaveRunsFinalliesOnce(t *testing.T) {
	// Two nested TRY blocks with finallies; leaving through both must run
	// each finally exactly once and land after the outer block.
	script := []byte{
		byte(OpTRY), 0, 12, // 0: outer, finally at 12
		byte(OpTRY), 0, 7, // 3: inner, finally at 10
		byte(OpENDTRY), 2, // 6: leave inner -> 8
		byte(OpENDTRY), 6, // 8: leave outer -> 14
		byte(OpPUSH7),       // 10: inner finally
		byte(OpENDFINALLY),  // 11
		byte(OpPUSH8),       // 12: outer finally
		byte(OpENDFINALLY),  // 13
		byte(OpPUSH5),       // 14
		byte(OpRET),         // 15
	}
	vm := runScript(t, script)
	if vm.State() != VMStateHalt {
		t.Fatalf("expected HALT, got %s (%v)", vm.State(), vm.FaultException())
	}
	// Each finally pushed one marker, the tail pushed 5: three items total.
	if vm.ResultDepth() != 3 {
		t.Fatalf("result depth %d, want 3 (finally blocks must run exactly once)", vm.ResultDepth())
	}
	if got := mustResultInt(t, vm); got.Int64() != 5 {
		t.Fatalf("top of stack %s, want 5", got)
	}
}

func TestThrowCaughtByInnerCatch(t *testing.T) {
	script := []byte{
		byte(OpTRY), 5, 0, // 0: catch at 5
		byte(OpPUSH9),  // 3
		byte(OpTHROW),  // 4: thrown 9 lands in catch
		byte(OpRET),    // 5: catch: thrown item is the result
	}
	vm := runScript(t, script)
	if got := mustResultInt(t, vm); got.Int64() != 9 {
		t.Fatalf("caught item %s, want 9", got)
	}
}

func TestUncaughtThrowFaults(t *testing.T) {
	vm := runScript(t, []byte{byte(OpPUSH1), byte(OpTHROW)})
	if vm.State() != VMStateFault {
		t.Fatalf("expected FAULT, got %s", vm.State())
	}
}

func TestVMDeterminism(t *testing.T) {
	script := []byte{
		byte(OpPUSH5), byte(OpPUSH7), byte(OpMUL),
		byte(OpPUSH3), byte(OpADD), byte(OpRET),
	}
	first := runScript(t, script)
	want := mustResultInt(t, first)
	for i := 0; i < 10; i++ {
		vm := runScript(t, script)
		if got := mustResultInt(t, vm); got.Cmp(want) != 0 {
			t.Fatalf("run %d produced %s, first run produced %s", i, got, want)
		}
	}
}

func TestStackLimitFaults(t *testing.T) {
	// DUP forever without popping exhausts MaxStackSize.
	script := []byte{
		byte(OpPUSH1),     // 0
		byte(OpDUP),       // 1
		byte(OpJMP), 0xFF, // 2: -> 1, delta -1
	}
	vm := runScript(t, script)
	if vm.State() != VMStateFault {
		t.Fatalf("expected FAULT from stack growth, got %s", vm.State())
	}
}

func TestInvocationStackLimit(t *testing.T) {
	// CALL 0 recurses into itself until MaxInvocationStack trips.
	script := []byte{byte(OpCALL), 0}
	vm := runScript(t, script)
	if vm.State() != VMStateFault {
		t.Fatalf("expected FAULT from recursion, got %s", vm.State())
	}
}

func TestRefCounterDrainsAfterHalt(t *testing.T) {
	// Build an array and take its size, which consumes it: the counter must
	// track only what the result still reaches.
	script := []byte{
		byte(OpPUSH1), byte(OpPUSH2), byte(OpPUSH3),
		byte(OpPUSH3), byte(OpPACK), // [1 2 3] as one array
		byte(OpSIZE),
		byte(OpRET),
	}
	vm := runScript(t, script)
	if got := mustResultInt(t, vm); got.Int64() != 3 {
		t.Fatalf("array size %s, want 3", got)
	}
	// The result is a plain integer: no compound item should stay tracked.
	if n := vm.RefCounter().Count(); n != 0 {
		t.Fatalf("reference counter holds %d references after HALT, want 0", n)
	}
}

func TestConvertAndIsType(t *testing.T) {
	script := []byte{
		byte(OpPUSH5),
		byte(OpCONVERT), byte(TypeByteString),
		byte(OpISTYPE), byte(TypeByteString),
		byte(OpRET),
	}
	vm := runScript(t, script)
	if vm.State() != VMStateHalt {
		t.Fatalf("expected HALT, got %s (%v)", vm.State(), vm.FaultException())
	}
	if !vm.Result().Bool() {
		t.Fatalf("CONVERT to ByteString not observed by ISTYPE")
	}
}

func TestStepOverCall(t *testing.T) {
	script := []byte{
		byte(OpCALL), 3, // 0: call 3
		byte(OpRET),     // 2
		byte(OpPUSH1),   // 3
		byte(OpRET),     // 4
	}
	vm := NewVM()
	if _, err := vm.LoadScript(script, CallFlagAll, -1, 0); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := vm.StepOver(); err != nil {
		t.Fatalf("step over CALL: %v", err)
	}
	if vm.InvocationDepth() != 1 {
		t.Fatalf("StepOver left depth %d, want 1", vm.InvocationDepth())
	}
}
