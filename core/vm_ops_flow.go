// SPDX-License-Identifier: BUSL-1.1
//
// Control transfer, exception handling and syscall dispatch.
package core

func init() {
	registerOpcode(OpNOP, func(vm *VM, ctx *ExecutionContext, instr Instruction) error { return nil })

	registerOpcode(OpJMP, opJmp)
	registerOpcode(OpJMPL, opJmp)
	registerOpcode(OpJMPIF, opJmpCond(func(b bool) bool { return b }))
	registerOpcode(OpJMPIFL, opJmpCond(func(b bool) bool { return b }))
	registerOpcode(OpJMPIFNOT, opJmpCond(func(b bool) bool { return !b }))
	registerOpcode(OpJMPIFNOTL, opJmpCond(func(b bool) bool { return !b }))

	registerOpcode(OpJMPEQ, opJmpCompare(func(c int) bool { return c == 0 }))
	registerOpcode(OpJMPEQL, opJmpCompare(func(c int) bool { return c == 0 }))
	registerOpcode(OpJMPNE, opJmpCompare(func(c int) bool { return c != 0 }))
	registerOpcode(OpJMPNEL, opJmpCompare(func(c int) bool { return c != 0 }))
	registerOpcode(OpJMPGT, opJmpCompare(func(c int) bool { return c > 0 }))
	registerOpcode(OpJMPGTL, opJmpCompare(func(c int) bool { return c > 0 }))
	registerOpcode(OpJMPGE, opJmpCompare(func(c int) bool { return c >= 0 }))
	registerOpcode(OpJMPGEL, opJmpCompare(func(c int) bool { return c >= 0 }))
	registerOpcode(OpJMPLT, opJmpCompare(func(c int) bool { return c < 0 }))
	registerOpcode(OpJMPLTL, opJmpCompare(func(c int) bool { return c < 0 }))
	registerOpcode(OpJMPLE, opJmpCompare(func(c int) bool { return c <= 0 }))
	registerOpcode(OpJMPLEL, opJmpCompare(func(c int) bool { return c <= 0 }))

	registerOpcode(OpCALL, opCall)
	registerOpcode(OpCALLL, opCall)
	registerOpcode(OpCALLA, opCallA)
	registerOpcode(OpCALLT, opCallT)

	registerOpcode(OpABORT, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return newFault("ABORT")
	})
	registerOpcode(OpASSERT, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		if !item.Bool() {
			return newFault("ASSERT failed")
		}
		return nil
	})
	registerOpcode(OpTHROW, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		return vm.throw(item)
	})
	registerOpcode(OpTRY, opTry)
	registerOpcode(OpTRYL, opTry)
	registerOpcode(OpENDTRY, opEndTry)
	registerOpcode(OpENDTRYL, opEndTry)
	registerOpcode(OpENDFINALLY, opEndFinally)
	registerOpcode(OpRET, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		return vm.doReturn()
	})
	registerOpcode(OpSYSCALL, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		id := uint32(instr.Operand[0]) | uint32(instr.Operand[1])<<8 | uint32(instr.Operand[2])<<16 | uint32(instr.Operand[3])<<24
		if vm.OnSysCall == nil {
			return newFault("SYSCALL: no host bindings")
		}
		return vm.OnSysCall(vm, id)
	})
}

func jumpTargetDelta(op Opcode, operand []byte) int {
	if isLongJump(op) {
		return decodeInt32LE(operand)
	}
	return decodeInt8(operand)
}

// isLongJump reports whether op is the 4-byte-offset ("_L") form of a jump,
// call or endtry opcode. TRYL is not listed; opTry decodes its own offsets.
func isLongJump(op Opcode) bool {
	switch op {
	case OpJMPL, OpJMPIFL, OpJMPIFNOTL, OpJMPEQL, OpJMPNEL, OpJMPGTL, OpJMPGEL, OpJMPLTL, OpJMPLEL, OpCALLL, OpENDTRYL:
		return true
	default:
		return false
	}
}

func doJump(ctx *ExecutionContext, instr Instruction, delta int) error {
	target := instr.instrStart + delta
	if target < 0 || target > len(ctx.Script) {
		return newFault("jump target %d out of range", target)
	}
	ctx.InstrPointer = target
	return nil
}

func opJmp(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	return doJump(ctx, instr, jumpTargetDelta(instr.Op, instr.Operand))
}

func opJmpCond(pred func(bool) bool) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		if pred(item.Bool()) {
			return doJump(ctx, instr, jumpTargetDelta(instr.Op, instr.Operand))
		}
		return nil
	}
}

func opJmpCompare(pred func(int) bool) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		ai, err := a.Int()
		if err != nil {
			return newFault("%v", err)
		}
		bi, err := b.Int()
		if err != nil {
			return newFault("%v", err)
		}
		if pred(ai.Cmp(bi)) {
			return doJump(ctx, instr, jumpTargetDelta(instr.Op, instr.Operand))
		}
		return nil
	}
}

func opCall(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	delta := jumpTargetDelta(instr.Op, instr.Operand)
	target := instr.instrStart + delta
	if target < 0 || target > len(ctx.Script) {
		return newFault("CALL target %d out of range", target)
	}
	callee, err := vm.LoadScript(ctx.Script, ctx.CallFlags, -1, target)
	if err != nil {
		return err
	}
	callee.Hash = ctx.Hash
	return nil
}

func opCallA(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	item, err := ctx.Pop()
	if err != nil {
		return err
	}
	if item.Type != TypePointer {
		return newFault("CALLA: top of stack is not a Pointer")
	}
	callee, err := vm.LoadScript(item.bytesVal, ctx.CallFlags, -1, item.pointerPos)
	if err != nil {
		return err
	}
	callee.Hash = ctx.Hash
	return nil
}

func opCallT(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	return newFault("CALLT: method tokens require a loaded NEF (unsupported outside ApplicationEngine)")
}

// throw unwinds to the innermost TRY frame with an unused catch, across the
// whole invocation stack. A frame with only a pending finally runs it
// and continues the search once ENDFINALLY re-raises. Faults the VM (and,
// at the outermost context, propagates as an unhandled VMFault) if no catch
// is ever found.
func (vm *VM) throw(item *StackItem) error {
	for {
		ctx := vm.CurrentContext()
		if ctx == nil {
			return &VMFault{Item: item, Msg: "unhandled exception"}
		}
		i := len(ctx.tryStack) - 1
		if i < 0 {
			vm.popContext()
			continue
		}
		entry := ctx.tryStack[i]
		ctx.tryStack = ctx.tryStack[:i]
		if entry.hasCatch && !entry.catchUsed {
			entry.catchUsed = true
			ctx.tryStack = append(ctx.tryStack, entry) // stays open for its own ENDTRY
			ctx.unwindStackTo(entry.stackDepth)
			ctx.Push(item)
			ctx.InstrPointer = entry.catchTarget
			return nil
		}
		if entry.hasFinally {
			entry.pendingRethrow = item
			entry.pendingLeave = -1
			ctx.finallyStack = append(ctx.finallyStack, entry)
			ctx.InstrPointer = entry.finallyTarget
			return nil
		}
		// Entry has neither an unused catch nor a finally: keep unwinding.
	}
}

func opTry(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	if len(ctx.tryStack) >= MaxTryNesting {
		return newFault("try nesting exceeds MaxTryNesting")
	}
	var catchDelta, finallyDelta int
	if instr.Op == OpTRYL {
		catchDelta = decodeInt32LE(instr.Operand[:4])
		finallyDelta = decodeInt32LE(instr.Operand[4:])
	} else {
		catchDelta = decodeInt8(instr.Operand[:1])
		finallyDelta = decodeInt8(instr.Operand[1:])
	}
	if catchDelta == 0 && finallyDelta == 0 {
		return newFault("TRY: at least one of catch/finally must be set")
	}
	entry := &tryEntry{stackDepth: ctx.Depth()}
	if catchDelta != 0 {
		entry.hasCatch = true
		entry.catchTarget = instr.instrStart + catchDelta
	}
	if finallyDelta != 0 {
		entry.hasFinally = true
		entry.finallyTarget = instr.instrStart + finallyDelta
	}
	ctx.tryStack = append(ctx.tryStack, entry)
	return nil
}

// opEndTry closes the innermost open TRY/CATCH block, running its pending
// finally (if any) before transferring control to target; real NeoVM gives
// this the name "LEAVE" in some assemblers because it is the only opcode
// that correctly exits a try/catch without skipping its finally.
func opEndTry(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	if len(ctx.tryStack) == 0 {
		return newFault("ENDTRY with no open TRY")
	}
	i := len(ctx.tryStack) - 1
	entry := ctx.tryStack[i]
	ctx.tryStack = ctx.tryStack[:i]
	delta := jumpTargetDelta(instr.Op, instr.Operand)
	leaveTarget := instr.instrStart + delta
	if entry.hasFinally {
		entry.pendingLeave = leaveTarget
		entry.pendingRethrow = nil
		ctx.finallyStack = append(ctx.finallyStack, entry)
		ctx.InstrPointer = entry.finallyTarget
		return nil
	}
	if leaveTarget < 0 || leaveTarget > len(ctx.Script) {
		return newFault("ENDTRY target out of range")
	}
	ctx.InstrPointer = leaveTarget
	return nil
}

// opEndFinally resumes whatever action was pending when its finally block
// was entered: re-raising a caught-and-rethrown item, or leaving to the
// target ENDTRY recorded.
func opEndFinally(vm *VM, ctx *ExecutionContext, instr Instruction) error {
	if len(ctx.finallyStack) == 0 {
		return newFault("ENDFINALLY with no pending finally")
	}
	i := len(ctx.finallyStack) - 1
	entry := ctx.finallyStack[i]
	ctx.finallyStack = ctx.finallyStack[:i]
	if entry.pendingRethrow != nil {
		item := entry.pendingRethrow
		entry.pendingRethrow = nil
		return vm.throw(item)
	}
	if entry.pendingLeave < 0 {
		return newFault("ENDFINALLY: no pending leave target")
	}
	ctx.InstrPointer = entry.pendingLeave
	return nil
}

func (c *ExecutionContext) unwindStackTo(depth int) {
	for c.Depth() > depth {
		_, _ = c.Pop()
	}
}
