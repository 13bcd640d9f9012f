// SPDX-License-Identifier: BUSL-1.1
package core

func init() {
	registerOpcode(OpISNULL, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		return vm.Push(NewBoolItem(item.IsNull()))
	})
	registerOpcode(OpISTYPE, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		want := StackItemType(instr.Operand[0])
		if want == TypeAny {
			return newFault("ISTYPE: Any is not a valid target type")
		}
		return vm.Push(NewBoolItem(item.Type == want))
	})
	registerOpcode(OpCONVERT, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		out, err := convertItem(item, StackItemType(instr.Operand[0]))
		if err != nil {
			return newFault("%v", err)
		}
		return vm.Push(out)
	})
}

func convertItem(item *StackItem, target StackItemType) (*StackItem, error) {
	if item.Type == target {
		return item, nil
	}
	switch target {
	case TypeBoolean:
		return NewBoolItem(item.Bool()), nil
	case TypeInteger:
		v, err := item.Int()
		if err != nil {
			return nil, err
		}
		return NewIntItem(v), nil
	case TypeByteString:
		b, err := item.Bytes()
		if err != nil {
			return nil, err
		}
		return NewByteStringItem(b), nil
	case TypeBuffer:
		b, err := item.Bytes()
		if err != nil {
			return nil, err
		}
		return NewBufferItem(b), nil
	case TypeArray:
		if item.Type == TypeStruct {
			return NewArrayItem(item.array), nil
		}
		return nil, errConvertUnsupported(item.Type, target)
	case TypeStruct:
		if item.Type == TypeArray {
			return NewStructItem(item.array), nil
		}
		return nil, errConvertUnsupported(item.Type, target)
	default:
		return nil, errConvertUnsupported(item.Type, target)
	}
}

func errConvertUnsupported(from, to StackItemType) error {
	return newFault("CONVERT: cannot convert %s to %s", from, to)
}
