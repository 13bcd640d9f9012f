// SPDX-License-Identifier: BUSL-1.1
package core

func init() {
	registerOpcode(OpDEPTH, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewIntItemInt64(int64(ctx.Depth())))
	})
	registerOpcode(OpDROP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		_, err := ctx.Pop()
		return err
	})
	registerOpcode(OpNIP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return ctx.removeAt(1)
	})
	registerOpcode(OpXDROP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		return ctx.removeAt(n)
	})
	registerOpcode(OpCLEAR, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		for ctx.Depth() > 0 {
			if _, err := ctx.Pop(); err != nil {
				return err
			}
		}
		return nil
	})
	registerOpcode(OpDUP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		top, err := ctx.Peek(0)
		if err != nil {
			return err
		}
		ctx.Push(top)
		return nil
	})
	registerOpcode(OpOVER, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		it, err := ctx.Peek(1)
		if err != nil {
			return err
		}
		ctx.Push(it)
		return nil
	})
	registerOpcode(OpPICK, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		it, err := ctx.Peek(n)
		if err != nil {
			return err
		}
		ctx.Push(it)
		return nil
	})
	registerOpcode(OpTUCK, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		top, err := ctx.Peek(0)
		if err != nil {
			return err
		}
		return ctx.insertAt(2, top)
	})
	registerOpcode(OpSWAP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return ctx.swap(0, 1)
	})
	registerOpcode(OpROT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		c, err := ctx.Pop()
		if err != nil {
			return err
		}
		ctx.Push(b)
		ctx.Push(a)
		ctx.Push(c)
		return nil
	})
	registerOpcode(OpROLL, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		it, err := ctx.removeAndReturn(n)
		if err != nil {
			return err
		}
		ctx.Push(it)
		return nil
	})
	registerOpcode(OpREVERSE3, opReverseN(3))
	registerOpcode(OpREVERSE4, opReverseN(4))
	registerOpcode(OpREVERSEN, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		return opReverseN(n)(vm, ctx, instr)
	})
}

func popIndex(ctx *ExecutionContext) (int, error) {
	item, err := ctx.Pop()
	if err != nil {
		return 0, err
	}
	n, err := item.Int()
	if err != nil {
		return 0, newFault("%v", err)
	}
	if !n.IsInt64() || n.Int64() < 0 {
		return 0, newFault("negative or oversized index")
	}
	return int(n.Int64()), nil
}

func opReverseN(n int) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		if n <= 1 {
			return nil
		}
		items := make([]*StackItem, n)
		for i := n - 1; i >= 0; i-- {
			it, err := ctx.Pop()
			if err != nil {
				return err
			}
			items[i] = it
		}
		for i := 0; i < n; i++ {
			ctx.Push(items[i])
		}
		return nil
	}
}

// removeAt drops the item n positions from the top (n=0 is the top) without
// disturbing the relative order of the rest.
func (c *ExecutionContext) removeAt(n int) error {
	_, err := c.removeAndReturn(n)
	return err
}

func (c *ExecutionContext) removeAndReturn(n int) (*StackItem, error) {
	idx := len(c.evalStack) - 1 - n
	if idx < 0 || idx >= len(c.evalStack) {
		return nil, newFault("stack index %d out of range", n)
	}
	item := c.evalStack[idx]
	c.evalStack = append(c.evalStack[:idx], c.evalStack[idx+1:]...)
	c.refs.RemoveReference(item)
	return item, nil
}

func (c *ExecutionContext) insertAt(n int, item *StackItem) error {
	idx := len(c.evalStack) - n
	if idx < 0 || idx > len(c.evalStack) {
		return newFault("stack index %d out of range", n)
	}
	c.evalStack = append(c.evalStack, nil)
	copy(c.evalStack[idx+1:], c.evalStack[idx:])
	c.evalStack[idx] = item
	c.refs.AddReference(item)
	return nil
}

func (c *ExecutionContext) swap(a, b int) error {
	ia := len(c.evalStack) - 1 - a
	ib := len(c.evalStack) - 1 - b
	if ia < 0 || ia >= len(c.evalStack) || ib < 0 || ib >= len(c.evalStack) {
		return newFault("swap index out of range")
	}
	c.evalStack[ia], c.evalStack[ib] = c.evalStack[ib], c.evalStack[ia]
	return nil
}
