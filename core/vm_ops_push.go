// SPDX-License-Identifier: BUSL-1.1
package core

func init() {
	registerOpcode(OpPUSHINT8, opPushInt)
	registerOpcode(OpPUSHINT16, opPushInt)
	registerOpcode(OpPUSHINT32, opPushInt)
	registerOpcode(OpPUSHINT64, opPushInt)
	registerOpcode(OpPUSHINT128, opPushInt)
	registerOpcode(OpPUSHINT256, opPushInt)

	registerOpcode(OpPUSHT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewBoolItem(true))
	})
	registerOpcode(OpPUSHF, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewBoolItem(false))
	})
	registerOpcode(OpPUSHNULL, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewNullItem())
	})
	registerOpcode(OpPUSHM1, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewIntItemInt64(-1))
	})
	for i := 0; i <= 16; i++ {
		v := int64(i)
		registerOpcode(OpPUSH0+Opcode(i), func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
			return vm.Push(NewIntItemInt64(v))
		})
	}

	registerOpcode(OpPUSHA, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		delta := decodeInt32LE(instr.Operand)
		target := instr.instrStart + delta
		if target < 0 || target > len(ctx.Script) {
			return newFault("PUSHA: target out of range")
		}
		item := &StackItem{Type: TypePointer, bytesVal: ctx.Script, pointerPos: target}
		return vm.Push(item)
	})
	registerOpcode(OpPUSHDATA1, opPushData)
	registerOpcode(OpPUSHDATA2, opPushData)
	registerOpcode(OpPUSHDATA4, opPushData)
}

func opPushInt(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	if len(instr.Operand) > MaxItemSize {
		return newFault("PUSHINT operand exceeds MaxItemSize")
	}
	return vm.Push(NewIntItem(bytesToSignedInt(instr.Operand)))
}

func opPushData(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	if len(instr.Operand) > MaxItemSize {
		return newFault("PUSHDATA operand exceeds MaxItemSize")
	}
	return vm.Push(NewByteStringItem(instr.Operand))
}

func decodeInt32LE(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	return int(v)
}

func decodeInt8(b []byte) int {
	if len(b) < 1 {
		return 0
	}
	return int(int8(b[0]))
}
