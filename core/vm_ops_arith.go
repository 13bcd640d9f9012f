// SPDX-License-Identifier: BUSL-1.1
//
// Arbitrary-precision integer arithmetic. Null is never a valid integer
// operand: the integer handlers reject it via Int(), so a comparison against
// null faults instead of coercing. NOT, BOOLAND and BOOLOR read their
// operands with Bool(), where null is false.
package core

import "math/big"

func init() {
	registerOpcode(OpSIGN, unaryInt(func(a *big.Int) (*StackItem, error) {
		return NewIntItemInt64(int64(a.Sign())), nil
	}))
	registerOpcode(OpABS, unaryInt(func(a *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Abs(a)), nil
	}))
	registerOpcode(OpNEGATE, unaryInt(func(a *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Neg(a)), nil
	}))
	registerOpcode(OpINC, unaryInt(func(a *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Add(a, big.NewInt(1))), nil
	}))
	registerOpcode(OpDEC, unaryInt(func(a *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Sub(a, big.NewInt(1))), nil
	}))
	registerOpcode(OpNOT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		return vm.Push(NewBoolItem(!item.Bool()))
	})
	registerOpcode(OpNZ, unaryInt(func(a *big.Int) (*StackItem, error) {
		return NewBoolItem(a.Sign() != 0), nil
	}))

	registerOpcode(OpADD, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Add(a, b)), nil
	}))
	registerOpcode(OpSUB, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Sub(a, b)), nil
	}))
	registerOpcode(OpMUL, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		return NewIntItem(new(big.Int).Mul(a, b)), nil
	}))
	registerOpcode(OpDIV, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		if b.Sign() == 0 {
			return nil, newFault("division by zero")
		}
		return NewIntItem(new(big.Int).Quo(a, b)), nil
	}))
	registerOpcode(OpMOD, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		if b.Sign() == 0 {
			return nil, newFault("division by zero")
		}
		return NewIntItem(new(big.Int).Rem(a, b)), nil
	}))
	registerOpcode(OpPOW, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		if !b.IsInt64() || b.Sign() < 0 || b.Int64() > 2048 {
			return nil, newFault("POW exponent out of range")
		}
		return NewIntItem(new(big.Int).Exp(a, b, nil)), nil
	}))
	registerOpcode(OpSQRT, unaryInt(func(a *big.Int) (*StackItem, error) {
		if a.Sign() < 0 {
			return nil, newFault("SQRT of negative integer")
		}
		return NewIntItem(new(big.Int).Sqrt(a)), nil
	}))
	registerOpcode(OpMODMUL, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		m, a, b, err := popThreeInt(ctx)
		if err != nil {
			return err
		}
		if m.Sign() == 0 {
			return newFault("MODMUL modulus zero")
		}
		r := new(big.Int).Mul(a, b)
		r.Mod(r, m)
		return vm.Push(NewIntItem(r))
	})
	registerOpcode(OpMODPOW, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		m, exp, base, err := popThreeInt(ctx)
		if err != nil {
			return err
		}
		if exp.Sign() < 0 {
			inv := new(big.Int).ModInverse(base, m)
			if inv == nil {
				return newFault("MODPOW: base has no modular inverse")
			}
			r := new(big.Int).Exp(inv, new(big.Int).Neg(exp), m)
			return vm.Push(NewIntItem(r))
		}
		return vm.Push(NewIntItem(new(big.Int).Exp(base, exp, m)))
	})
	registerOpcode(OpSHL, binaryShift(func(a *big.Int, n uint) *big.Int {
		return new(big.Int).Lsh(a, n)
	}))
	registerOpcode(OpSHR, binaryShift(func(a *big.Int, n uint) *big.Int {
		return new(big.Int).Rsh(a, n)
	}))
	registerOpcode(OpBOOLAND, boolBinary(func(a, b bool) bool { return a && b }))
	registerOpcode(OpBOOLOR, boolBinary(func(a, b bool) bool { return a || b }))
	registerOpcode(OpNUMEQUAL, cmpBinary(func(c int) bool { return c == 0 }))
	registerOpcode(OpNUMNOTEQUAL, cmpBinary(func(c int) bool { return c != 0 }))
	registerOpcode(OpLT, cmpBinary(func(c int) bool { return c < 0 }))
	registerOpcode(OpLE, cmpBinary(func(c int) bool { return c <= 0 }))
	registerOpcode(OpGT, cmpBinary(func(c int) bool { return c > 0 }))
	registerOpcode(OpGE, cmpBinary(func(c int) bool { return c >= 0 }))
	registerOpcode(OpMIN, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		if a.Cmp(b) <= 0 {
			return NewIntItem(a), nil
		}
		return NewIntItem(b), nil
	}))
	registerOpcode(OpMAX, binaryInt(func(a, b *big.Int) (*StackItem, error) {
		if a.Cmp(b) >= 0 {
			return NewIntItem(a), nil
		}
		return NewIntItem(b), nil
	}))
	registerOpcode(OpWITHIN, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		// Stack (bottom->top): a, b, x. popThreeInt pops top-first.
		x, b, a, err := popThreeInt(ctx)
		if err != nil {
			return err
		}
		return vm.Push(NewBoolItem(x.Cmp(a) >= 0 && x.Cmp(b) < 0))
	})
}

func unaryInt(fn func(a *big.Int) (*StackItem, error)) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := item.Int()
		if err != nil {
			return newFault("%v", err)
		}
		out, err := fn(a)
		if err != nil {
			return err
		}
		return vm.Push(out)
	}
}

func binaryInt(fn func(a, b *big.Int) (*StackItem, error)) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		bi, ai, err := popTwoInt(ctx)
		if err != nil {
			return err
		}
		out, err := fn(ai, bi)
		if err != nil {
			return err
		}
		return vm.Push(out)
	}
}

func cmpBinary(pred func(int) bool) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		bi, ai, err := popTwoInt(ctx)
		if err != nil {
			return err
		}
		return vm.Push(NewBoolItem(pred(ai.Cmp(bi))))
	}
}

func boolBinary(fn func(a, b bool) bool) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		b, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.Pop()
		if err != nil {
			return err
		}
		return vm.Push(NewBoolItem(fn(a.Bool(), b.Bool())))
	}
}

func binaryShift(fn func(a *big.Int, n uint) *big.Int) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		nItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		n, err := nItem.Int()
		if err != nil {
			return newFault("%v", err)
		}
		if !n.IsInt64() || n.Int64() < 0 || n.Int64() > MaxShift {
			return newFault("shift amount out of range [0, %d]", MaxShift)
		}
		aItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		a, err := aItem.Int()
		if err != nil {
			return newFault("%v", err)
		}
		return vm.Push(NewIntItem(fn(a, uint(n.Int64()))))
	}
}

func popTwoInt(ctx *ExecutionContext) (b, a *big.Int, err error) {
	bi, err := ctx.Pop()
	if err != nil {
		return nil, nil, err
	}
	ai, err := ctx.Pop()
	if err != nil {
		return nil, nil, err
	}
	bv, err := bi.Int()
	if err != nil {
		return nil, nil, newFault("%v", err)
	}
	av, err := ai.Int()
	if err != nil {
		return nil, nil, newFault("%v", err)
	}
	return bv, av, nil
}

func popThreeInt(ctx *ExecutionContext) (c, b, a *big.Int, err error) {
	ci, err := ctx.Pop()
	if err != nil {
		return nil, nil, nil, err
	}
	bi, err := ctx.Pop()
	if err != nil {
		return nil, nil, nil, err
	}
	ai, err := ctx.Pop()
	if err != nil {
		return nil, nil, nil, err
	}
	cv, err := ci.Int()
	if err != nil {
		return nil, nil, nil, newFault("%v", err)
	}
	bv, err := bi.Int()
	if err != nil {
		return nil, nil, nil, newFault("%v", err)
	}
	av, err := ai.Int()
	if err != nil {
		return nil, nil, nil, newFault("%v", err)
	}
	return cv, bv, av, nil
}
