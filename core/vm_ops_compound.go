// SPDX-License-Identifier: BUSL-1.1
//
// Array/Struct/Map construction and inspection.
package core

func init() {
	registerOpcode(OpNEWARRAY0, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewArrayItem(nil))
	})
	registerOpcode(OpNEWARRAY, newCompoundN(NewArrayItem))
	registerOpcode(OpNEWARRAYT, func(vm *VM, ctx *ExecutionContext, instr Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		items := make([]*StackItem, n)
		for i := range items {
			items[i] = NewNullItem()
		}
		return vm.Push(NewArrayItem(items))
	})
	registerOpcode(OpNEWSTRUCT0, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewStructItem(nil))
	})
	registerOpcode(OpNEWSTRUCT, newCompoundN(NewStructItem))
	registerOpcode(OpNEWMAP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		return vm.Push(NewMapItem())
	})

	registerOpcode(OpPACK, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		items := make([]*StackItem, n)
		for i := n - 1; i >= 0; i-- {
			it, err := ctx.Pop()
			if err != nil {
				return err
			}
			items[i] = it
		}
		return vm.Push(NewArrayItem(items))
	})
	registerOpcode(OpPACKSTRUCT, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		items := make([]*StackItem, n)
		for i := n - 1; i >= 0; i-- {
			it, err := ctx.Pop()
			if err != nil {
				return err
			}
			items[i] = it
		}
		return vm.Push(NewStructItem(items))
	})
	registerOpcode(OpPACKMAP, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		m := NewMapItem()
		for i := 0; i < n; i++ {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			k, err := ctx.Pop()
			if err != nil {
				return err
			}
			if err := m.mapSet(k, v); err != nil {
				return err
			}
		}
		return vm.Push(m)
	})
	registerOpcode(OpUNPACK, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		items, err := item.Array()
		if err != nil {
			return newFault("%v", err)
		}
		for i := len(items) - 1; i >= 0; i-- {
			vm.Push(items[i])
		}
		return vm.Push(NewIntItemInt64(int64(len(items))))
	})

	registerOpcode(OpSIZE, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeByteString, TypeBuffer:
			return vm.Push(NewIntItemInt64(int64(len(item.bytesVal))))
		case TypeArray, TypeStruct:
			return vm.Push(NewIntItemInt64(int64(len(item.array))))
		case TypeMap:
			return vm.Push(NewIntItemInt64(int64(len(item.mapKeys))))
		default:
			return newFault("SIZE: %s has no size", item.Type)
		}
	})
	registerOpcode(OpHASKEY, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		keyItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeArray, TypeStruct:
			idx, err := keyItem.Int()
			if err != nil {
				return newFault("%v", err)
			}
			i := idx.Int64()
			return vm.Push(NewBoolItem(idx.IsInt64() && i >= 0 && int(i) < len(item.array)))
		case TypeMap:
			_, ok := item.mapGet(keyItem)
			return vm.Push(NewBoolItem(ok))
		default:
			return newFault("HASKEY: unsupported type %s", item.Type)
		}
	})
	registerOpcode(OpKEYS, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		if item.Type != TypeMap {
			return newFault("KEYS: not a Map")
		}
		keys := make([]*StackItem, len(item.mapKeys))
		copy(keys, item.mapKeys)
		return vm.Push(NewArrayItem(keys))
	})
	registerOpcode(OpVALUES, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeMap:
			vals := make([]*StackItem, len(item.mapVals))
			for i, v := range item.mapVals {
				vals[i] = v.DeepCopy()
			}
			return vm.Push(NewArrayItem(vals))
		case TypeArray, TypeStruct:
			vals := make([]*StackItem, len(item.array))
			for i, v := range item.array {
				vals[i] = v.DeepCopy()
			}
			return vm.Push(NewArrayItem(vals))
		default:
			return newFault("VALUES: unsupported type %s", item.Type)
		}
	})
	registerOpcode(OpPICKITEM, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		keyItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeArray, TypeStruct:
			idx, err := keyItem.Int()
			if err != nil {
				return newFault("%v", err)
			}
			if !idx.IsInt64() || idx.Int64() < 0 || int(idx.Int64()) >= len(item.array) {
				return newFault("PICKITEM: index out of range")
			}
			return vm.Push(item.array[idx.Int64()])
		case TypeMap:
			v, ok := item.mapGet(keyItem)
			if !ok {
				return newFault("PICKITEM: key not found")
			}
			return vm.Push(v)
		case TypeByteString, TypeBuffer:
			idx, err := keyItem.Int()
			if err != nil {
				return newFault("%v", err)
			}
			if !idx.IsInt64() || idx.Int64() < 0 || int(idx.Int64()) >= len(item.bytesVal) {
				return newFault("PICKITEM: index out of range")
			}
			return vm.Push(NewIntItemInt64(int64(item.bytesVal[idx.Int64()])))
		default:
			return newFault("PICKITEM: unsupported type %s", item.Type)
		}
	})
	registerOpcode(OpAPPEND, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		if item.Type != TypeArray && item.Type != TypeStruct {
			return newFault("APPEND: not an Array/Struct")
		}
		if len(item.array)+1 > MaxStackSize {
			return newFault("APPEND: item count exceeds MaxStackSize")
		}
		if item.Type == TypeStruct {
			v = v.DeepCopy()
		}
		item.array = append(item.array, v)
		ctx.refs.AddReference(v)
		return nil
	})
	registerOpcode(OpSETITEM, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		if v.Type == TypeStruct {
			v = v.DeepCopy()
		}
		keyItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeArray, TypeStruct:
			idx, err := keyItem.Int()
			if err != nil {
				return newFault("%v", err)
			}
			if !idx.IsInt64() || idx.Int64() < 0 || int(idx.Int64()) >= len(item.array) {
				return newFault("SETITEM: index out of range")
			}
			old := item.array[idx.Int64()]
			ctx.refs.RemoveReference(old)
			item.array[idx.Int64()] = v
			ctx.refs.AddReference(v)
			return nil
		case TypeMap:
			return item.mapSet(keyItem, v)
		case TypeBuffer:
			idx, err := keyItem.Int()
			if err != nil {
				return newFault("%v", err)
			}
			b, err := v.Int()
			if err != nil {
				return newFault("%v", err)
			}
			if !idx.IsInt64() || idx.Int64() < 0 || int(idx.Int64()) >= len(item.bytesVal) {
				return newFault("SETITEM: index out of range")
			}
			item.bytesVal[idx.Int64()] = byte(b.Int64())
			return nil
		default:
			return newFault("SETITEM: unsupported type %s", item.Type)
		}
	})
	registerOpcode(OpREVERSEITEMS, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		if item.Type != TypeArray && item.Type != TypeStruct {
			return newFault("REVERSEITEMS: not an Array/Struct")
		}
		a := item.array
		for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
			a[i], a[j] = a[j], a[i]
		}
		return nil
	})
	registerOpcode(OpREMOVE, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		keyItem, err := ctx.Pop()
		if err != nil {
			return err
		}
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeArray, TypeStruct:
			idx, err := keyItem.Int()
			if err != nil {
				return newFault("%v", err)
			}
			if !idx.IsInt64() || idx.Int64() < 0 || int(idx.Int64()) >= len(item.array) {
				return newFault("REMOVE: index out of range")
			}
			i := idx.Int64()
			ctx.refs.RemoveReference(item.array[i])
			item.array = append(item.array[:i], item.array[i+1:]...)
			return nil
		case TypeMap:
			item.mapRemove(keyItem)
			return nil
		default:
			return newFault("REMOVE: unsupported type %s", item.Type)
		}
	})
	registerOpcode(OpCLEARITEMS, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		switch item.Type {
		case TypeArray, TypeStruct:
			for _, c := range item.array {
				ctx.refs.RemoveReference(c)
			}
			item.array = nil
		case TypeMap:
			for _, v := range item.mapVals {
				ctx.refs.RemoveReference(v)
			}
			item.mapKeys, item.mapVals = nil, nil
		default:
			return newFault("CLEARITEMS: unsupported type %s", item.Type)
		}
		return nil
	})
	registerOpcode(OpPOPITEM, func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		item, err := ctx.Pop()
		if err != nil {
			return err
		}
		if item.Type != TypeArray && item.Type != TypeStruct {
			return newFault("POPITEM: not an Array/Struct")
		}
		if len(item.array) == 0 {
			return newFault("POPITEM: empty")
		}
		n := len(item.array) - 1
		last := item.array[n]
		item.array = item.array[:n]
		return vm.Push(last)
	})
}

func newCompoundN(ctor func([]*StackItem) *StackItem) InstructionHandler {
	return func(vm *VM, ctx *ExecutionContext, _ Instruction) error {
		n, err := popIndex(ctx)
		if err != nil {
			return err
		}
		if n > MaxStackSize {
			return newFault("compound size exceeds MaxStackSize")
		}
		items := make([]*StackItem, n)
		for i := range items {
			items[i] = NewNullItem()
		}
		return vm.Push(ctor(items))
	}
}

// mapSet/mapGet/mapRemove implement Map over parallel key/value slices. A
// key matches an entry only when both its type and its raw bytes are equal,
// so Integer 1 and ByteString 0x01 are distinct keys.
func (s *StackItem) mapSet(k, v *StackItem) error {
	if isCompound(k) {
		return newFault("map key must be a primitive type")
	}
	kb, err := k.Bytes()
	if err != nil {
		return newFault("%v", err)
	}
	for i, ek := range s.mapKeys {
		eb, _ := ek.Bytes()
		if string(eb) == string(kb) && ek.Type == k.Type {
			s.mapVals[i] = v
			return nil
		}
	}
	if len(s.mapKeys)+1 > MaxStackSize {
		return newFault("map size exceeds MaxStackSize")
	}
	s.mapKeys = append(s.mapKeys, k)
	s.mapVals = append(s.mapVals, v)
	return nil
}

func (s *StackItem) mapGet(k *StackItem) (*StackItem, bool) {
	kb, err := k.Bytes()
	if err != nil {
		return nil, false
	}
	for i, ek := range s.mapKeys {
		eb, _ := ek.Bytes()
		if string(eb) == string(kb) && ek.Type == k.Type {
			return s.mapVals[i], true
		}
	}
	return nil, false
}

func (s *StackItem) mapRemove(k *StackItem) {
	kb, err := k.Bytes()
	if err != nil {
		return
	}
	for i, ek := range s.mapKeys {
		eb, _ := ek.Bytes()
		if string(eb) == string(kb) && ek.Type == k.Type {
			s.mapKeys = append(s.mapKeys[:i], s.mapKeys[i+1:]...)
			s.mapVals = append(s.mapVals[:i], s.mapVals[i+1:]...)
			return
		}
	}
}
