// SPDX-License-Identifier: BUSL-1.1
//
// Byte-range operations over ByteString/Buffer.
package core

func init() {
	registerOpcode(OpNEWBUFFER, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		if n > MaxItemSize {
			return newFault("NEWBUFFER size exceeds MaxItemSize")
		}
		return vm.Push(NewBufferItem(make([]byte, n)))
	})
	registerOpcode(OpMEMCPY, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		count, err := popIndex(ctx)
		if err != nil {
			return err
		}
		srcIdx, err := popIndex(ctx)
		if err != nil {
			return err
		}
		srcItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		dstIdx, err := popIndex(ctx)
		if err != nil {
			return err
		}
		dstItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		if dstItem.Type != TypeBuffer {
			return newFault("MEMCPY: destination must be a Buffer")
		}
		src, err := srcItem.Bytes()
		if err != nil {
			return newFault("%v", err)
		}
		if count < 0 || srcIdx < 0 || dstIdx < 0 ||
			srcIdx+count > len(src) || dstIdx+count > len(dstItem.bytesVal) {
			return newFault("MEMCPY: out of range")
		}
		copy(dstItem.bytesVal[dstIdx:dstIdx+count], src[srcIdx:srcIdx+count])
		return nil
	})
	registerOpcode(OpCAT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		ab, err := a.Bytes()
		if err != nil {
			return newFault("%v", err)
		}
		bb, err := b.Bytes()
		if err != nil {
			return newFault("%v", err)
		}
		if len(ab)+len(bb) > MaxItemSize {
			return newFault("CAT result exceeds MaxItemSize")
		}
		out := make([]byte, 0, len(ab)+len(bb))
		out = append(out, ab...)
		out = append(out, bb...)
		return vm.Push(NewBufferItem(out))
	})
	registerOpcode(OpSUBSTR, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		count, err := popIndex(ctx)
		if err != nil {
			return err
		}
		idx, err := popIndex(ctx)
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		b, err := item.Bytes()
		if err != nil {
			return newFault("%v", err)
		}
		if idx < 0 || count < 0 || idx+count > len(b) {
			return newFault("SUBSTR: out of range")
		}
		return vm.Push(NewBufferItem(b[idx : idx+count]))
	})
	registerOpcode(OpLEFT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		b, err := item.Bytes()
		if err != nil {
			return newFault("%v", err)
		}
		if n < 0 || n > len(b) {
			return newFault("LEFT: out of range")
		}
		return vm.Push(NewBufferItem(b[:n]))
	})
	registerOpcode(OpRIGHT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		b, err := item.Bytes()
		if err != nil {
			return newFault("%v", err)
		}
		if n < 0 || n > len(b) {
			return newFault("RIGHT: out of range")
		}
		return vm.Push(NewBufferItem(b[len(b)-n:]))
	})
}
