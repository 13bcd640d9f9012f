// SPDX-License-Identifier: BUSL-1.1
//
// Opcode dispatch: a flat 256-entry array indexed directly by the
// instruction byte. The opcode space is small and dense enough that array
// dispatch beats a map lookup per step.
package core

import "fmt"

// InstructionHandler executes one decoded instruction against the running
// VM and its current frame. vm.Step decodes the operand once (vm.go's
// decodeOperand) and passes the whole Instruction through, rather than
// re-reading operand bytes inside every handler.
type InstructionHandler func(vm *VM, ctx *ExecutionContext, instr Instruction) error

var jumpTable [256]InstructionHandler

// registerOpcode binds a handler to op. Called only from package init()s;
// a duplicate binding is a build-time programming error, not a runtime
// condition, so it panics rather than returning an error.
func registerOpcode(op Opcode, fn InstructionHandler) {
	if jumpTable[op] != nil {
		panic(fmt.Sprintf("vm: opcode 0x%02X already registered", byte(op)))
	}
	jumpTable[op] = fn
}

// registerRange binds the same handler to every opcode in [base, base+n).
func registerRange(base Opcode, n int, fn InstructionHandler) {
	for i := 0; i < n; i++ {
		registerOpcode(base+Opcode(i), fn)
	}
}

// RegisteredOpcodes returns every opcode with a bound handler, in ascending
// byte order. cmd/opcode-lint walks this to check that every dispatched
// opcode has a gas-table entry.
func RegisteredOpcodes() []Opcode {
	out := make([]Opcode, 0, 200)
	for i := 0; i < 256; i++ {
		if jumpTable[i] != nil {
			out = append(out, Opcode(i))
		}
	}
	return out
}
