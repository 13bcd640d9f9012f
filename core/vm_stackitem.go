// SPDX-License-Identifier: BUSL-1.1
//
// VM stack item model: a tagged union over the value kinds a script can
// push, index or iterate. Compound items (Array/Struct/Map) are reference
// types tracked by the arena in vm_refcounter.go.
package core

import (
	"fmt"
	"math/big"
)

// StackItemType tags the concrete kind of a StackItem.
type StackItemType byte

const (
	TypeAny             StackItemType = 0x00
	TypePointer         StackItemType = 0x10
	TypeBoolean         StackItemType = 0x20
	TypeInteger         StackItemType = 0x21
	TypeByteString      StackItemType = 0x28
	TypeBuffer          StackItemType = 0x30
	TypeArray           StackItemType = 0x40
	TypeStruct          StackItemType = 0x41
	TypeMap             StackItemType = 0x48
	TypeInteropInterface StackItemType = 0x60
)

func (t StackItemType) String() string {
	switch t {
	case TypeAny:
		return "Any"
	case TypePointer:
		return "Pointer"
	case TypeBoolean:
		return "Boolean"
	case TypeInteger:
		return "Integer"
	case TypeByteString:
		return "ByteString"
	case TypeBuffer:
		return "Buffer"
	case TypeArray:
		return "Array"
	case TypeStruct:
		return "Struct"
	case TypeMap:
		return "Map"
	case TypeInteropInterface:
		return "InteropInterface"
	default:
		return "Unknown"
	}
}

// StackItem is the VM's dynamically-typed value. Exactly one of the
// concrete fields below is meaningful, selected by Type.
type StackItem struct {
	Type StackItemType

	boolVal    bool
	intVal     *big.Int
	bytesVal   []byte
	array      []*StackItem // Array and Struct
	mapKeys    []*StackItem
	mapVals    []*StackItem
	pointerPos int
	interop    any

	refID int // unused: RefCounter keys items by pointer
}

func NewBoolItem(v bool) *StackItem { return &StackItem{Type: TypeBoolean, boolVal: v} }

func NewIntItem(v *big.Int) *StackItem {
	if v == nil {
		v = new(big.Int)
	}
	return &StackItem{Type: TypeInteger, intVal: new(big.Int).Set(v)}
}

func NewIntItemInt64(v int64) *StackItem { return NewIntItem(big.NewInt(v)) }

func NewByteStringItem(b []byte) *StackItem {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &StackItem{Type: TypeByteString, bytesVal: cp}
}

func NewBufferItem(b []byte) *StackItem {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &StackItem{Type: TypeBuffer, bytesVal: cp}
}

func NewArrayItem(items []*StackItem) *StackItem {
	return &StackItem{Type: TypeArray, array: items}
}

func NewStructItem(items []*StackItem) *StackItem {
	return &StackItem{Type: TypeStruct, array: items}
}

func NewMapItem() *StackItem {
	return &StackItem{Type: TypeMap}
}

func NewInteropItem(v any) *StackItem {
	return &StackItem{Type: TypeInteropInterface, interop: v}
}

func NewNullItem() *StackItem { return &StackItem{Type: TypeAny} }

// IsNull reports whether the item is the VM's null sentinel.
func (s *StackItem) IsNull() bool { return s.Type == TypeAny && s.interop == nil }

// Bool coerces the item to a boolean using Neo's truthiness rule: integers
// and byte strings are truthy unless every byte/limb is zero; compound
// types are always truthy; null is always falsy.
func (s *StackItem) Bool() bool {
	switch s.Type {
	case TypeBoolean:
		return s.boolVal
	case TypeInteger:
		return s.intVal.Sign() != 0
	case TypeByteString, TypeBuffer:
		for _, b := range s.bytesVal {
			if b != 0 {
				return true
			}
		}
		return false
	case TypeAny:
		return false
	default:
		return true
	}
}

// Int returns the item's integer value, converting ByteString/Buffer as a
// little-endian two's-complement integer and Boolean as 0/1.
func (s *StackItem) Int() (*big.Int, error) {
	switch s.Type {
	case TypeInteger:
		return s.intVal, nil
	case TypeBoolean:
		if s.boolVal {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	case TypeByteString, TypeBuffer:
		if len(s.bytesVal) > 32 {
			return nil, fmt.Errorf("stackitem: integer conversion exceeds 32 bytes")
		}
		return bytesToSignedInt(s.bytesVal), nil
	default:
		return nil, fmt.Errorf("stackitem: %s is not convertible to Integer", s.Type)
	}
}

func bytesToSignedInt(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	le := make([]byte, len(b))
	for i, v := range b {
		le[len(b)-1-i] = v
	}
	v := new(big.Int).SetBytes(le)
	if b[len(b)-1]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, mod)
	}
	return v
}

// Bytes returns the item's raw byte representation.
func (s *StackItem) Bytes() ([]byte, error) {
	switch s.Type {
	case TypeByteString, TypeBuffer:
		return s.bytesVal, nil
	case TypeInteger:
		return signedIntToBytes(s.intVal), nil
	case TypeBoolean:
		if s.boolVal {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("stackitem: %s is not convertible to ByteString", s.Type)
	}
}

func signedIntToBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	b := abs.Bytes() // big-endian
	le := make([]byte, len(b))
	for i, c := range b {
		le[len(b)-1-i] = c
	}
	if neg {
		for i := range le {
			le[i] = ^le[i]
		}
		for i := 0; i < len(le); i++ {
			le[i]++
			if le[i] != 0 {
				break
			}
		}
		if le[len(le)-1]&0x80 == 0 {
			le = append(le, 0xFF)
		}
	} else if le[len(le)-1]&0x80 != 0 {
		le = append(le, 0x00)
	}
	return le
}

// Array returns the backing slice for Array/Struct items.
func (s *StackItem) Array() ([]*StackItem, error) {
	if s.Type != TypeArray && s.Type != TypeStruct {
		return nil, fmt.Errorf("stackitem: %s is not an Array/Struct", s.Type)
	}
	return s.array, nil
}

// Equals implements VM equality: value types compare by value, compound
// types and interop handles compare by reference identity.
func (s *StackItem) Equals(o *StackItem) bool {
	if s == o {
		return true
	}
	if s.Type != o.Type {
		if isPrimitive(s.Type) && isPrimitive(o.Type) {
			sb, err1 := s.Bytes()
			ob, err2 := o.Bytes()
			return err1 == nil && err2 == nil && string(sb) == string(ob)
		}
		return false
	}
	switch s.Type {
	case TypeBoolean:
		return s.boolVal == o.boolVal
	case TypeInteger:
		return s.intVal.Cmp(o.intVal) == 0
	case TypeByteString, TypeBuffer:
		return string(s.bytesVal) == string(o.bytesVal)
	case TypeAny:
		return true
	default:
		return false // compound/interop: reference identity only
	}
}

func isPrimitive(t StackItemType) bool {
	return t == TypeBoolean || t == TypeInteger || t == TypeByteString || t == TypeBuffer
}

// DeepCopy clones a Struct (and nested Structs) by value, as required by
// OpAPPEND/OpSETITEM semantics when a Struct crosses an assignment boundary.
func (s *StackItem) DeepCopy() *StackItem {
	if s.Type != TypeStruct {
		return s
	}
	items := make([]*StackItem, len(s.array))
	for i, it := range s.array {
		items[i] = it.DeepCopy()
	}
	return NewStructItem(items)
}
