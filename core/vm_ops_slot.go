// SPDX-License-Identifier: BUSL-1.1
//
// Static/local/argument slot access. Each family
// has seven fixed-index opcodes (…0..…6) plus one generic form carrying an
// explicit index operand; registerRange binds the fixed forms by closing
// over their offset from the family's base opcode.
package core

func init() {
	registerRange(OpLDSFLD0, 7, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return loadSlot(vm, ctx, 's', int(instr.Op-OpLDSFLD0))
	})
	registerOpcode(OpLDSFLD, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return loadSlot(vm, ctx, 's', int(instr.Operand[0]))
	})
	registerRange(OpSTSFLD0, 7, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return storeSlot(ctx, 's', int(instr.Op-OpSTSFLD0))
	})
	registerOpcode(OpSTSFLD, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return storeSlot(ctx, 's', int(instr.Operand[0]))
	})

	registerRange(OpLDLOC0, 7, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return loadSlot(vm, ctx, 'l', int(instr.Op-OpLDLOC0))
	})
	registerOpcode(OpLDLOC, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return loadSlot(vm, ctx, 'l', int(instr.Operand[0]))
	})
	registerRange(OpSTLOC0, 7, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return storeSlot(ctx, 'l', int(instr.Op-OpSTLOC0))
	})
	registerOpcode(OpSTLOC, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return storeSlot(ctx, 'l', int(instr.Operand[0]))
	})

	registerRange(OpLDARG0, 7, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return loadSlot(vm, ctx, 'a', int(instr.Op-OpLDARG0))
	})
	registerOpcode(OpLDARG, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return loadSlot(vm, ctx, 'a', int(instr.Operand[0]))
	})
	registerRange(OpSTARG0, 7, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return storeSlot(ctx, 'a', int(instr.Op-OpSTARG0))
	})
	registerOpcode(OpSTARG, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return storeSlot(ctx, 'a', int(instr.Operand[0]))
	})

	registerOpcode(OpINITSSLOT, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		count := int(instr.Operand[0])
		ctx.staticSlots = make([]*StackItem, count)
		for i := range ctx.staticSlots {
			ctx.staticSlots[i] = NewNullItem()
		}
		return nil
	})
	registerOpcode(OpINITSLOT, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		localCount := int(instr.Operand[0])
		argCount := int(instr.Operand[1])
		ctx.localSlots = make([]*StackItem, localCount)
		for i := range ctx.localSlots {
			ctx.localSlots[i] = NewNullItem()
		}
		ctx.argSlots = make([]*StackItem, argCount)
		for i := argCount - 1; i >= 0; i-- {
			it, err := ctx.Pop()
			if err != nil {
				return err
			}
			ctx.argSlots[i] = it
		}
		return nil
	})
}

func loadSlot(vm *VM, ctx *ExecutionContext, kind byte, idx int) error {
	slots, err := ctx.slot(kind, idx)
	if err != nil {
		return err
	}
	return vm.Push((*slots)[idx])
}

func storeSlot(ctx *ExecutionContext, kind byte, idx int) error {
	slots, err := ctx.slot(kind, idx)
	if err != nil {
		return err
	}
	item, err := ctx.Pop()
	if err != nil {
		return err
	}
	old := (*slots)[idx]
	ctx.refs.RemoveReference(old)
	(*slots)[idx] = item
	ctx.refs.AddReference(item)
	return nil
}
