// SPDX-License-Identifier: BUSL-1.1
package core

import "math/big"

func init() {
	registerOpcode(OpINVERT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := item.Int()
		if err != nil {
			return newFault("%v", err)
		}
		return vm.Push(NewIntItem(new(big.Int).Not(a)))
	})
	registerOpcode(OpAND, bitwiseBinary(func(a, b *big.Int) *big.Int { return new(big.Int).And(a, b) }))
	registerOpcode(OpOR, bitwiseBinary(func(a, b *big.Int) *big.Int { return new(big.Int).Or(a, b) }))
	registerOpcode(OpXOR, bitwiseBinary(func(a, b *big.Int) *big.Int { return new(big.Int).Xor(a, b) }))

	registerOpcode(OpEQUAL, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		if isCompound(a) || isCompound(b) {
			return newFault("EQUAL: compound types are not comparable")
		}
		return vm.Push(NewBoolItem(a.Equals(b)))
	})
	registerOpcode(OpNOTEQUAL, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		if isCompound(a) || isCompound(b) {
			return newFault("NOTEQUAL: compound types are not comparable")
		}
		return vm.Push(NewBoolItem(!a.Equals(b)))
	})
}

// bitwiseBinary operates over two-complement big.Int representations,
// exactly as Add/Sub do, since Neo's Integer is unbounded two's complement.
func bitwiseBinary(fn func(a, b *big.Int) *big.Int) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		b, a, err := popTwoInt(ctx)
		if err != nil {
			return err
		}
		return vm.Push(NewIntItem(fn(a, b)))
	}
}
