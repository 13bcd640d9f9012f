// SPDX-License-Identifier: BUSL-1.1
//
// Binary StackItem codec, used by StdLib.serialize/deserialize and anywhere
// an item crosses the storage boundary. Reference cycles cannot be encoded;
// serialization walks the graph with a budget so a malicious deep structure
// cannot blow the host stack.
package core

import (
	"bytes"
	"fmt"
)

const maxSerializedNesting = 64

// SerializeStackItem renders item in the tagged binary form, bounded by
// MaxItemSize.
func SerializeStackItem(item *StackItem) ([]byte, error) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	if err := serializeItemInto(bw, item, maxSerializedNesting); err != nil {
		return nil, err
	}
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	if buf.Len() > MaxItemSize {
		return nil, fmt.Errorf("stackitem: serialized size %d exceeds MaxItemSize", buf.Len())
	}
	return buf.Bytes(), nil
}

func serializeItemInto(bw *BinaryWriter, item *StackItem, depth int) error {
	if depth <= 0 {
		return fmt.Errorf("stackitem: nesting too deep to serialize")
	}
	bw.WriteU8(byte(item.Type))
	switch item.Type {
	case TypeAny:
		if !item.IsNull() {
			return fmt.Errorf("stackitem: non-null Any is not serializable")
		}
	case TypeBoolean:
		bw.WriteBool(item.boolVal)
	case TypeInteger:
		bw.WriteVarBytes(signedIntToBytes(item.intVal))
	case TypeByteString, TypeBuffer:
		bw.WriteVarBytes(item.bytesVal)
	case TypeArray, TypeStruct:
		bw.WriteVarInt(uint64(len(item.array)))
		for _, child := range item.array {
			if err := serializeItemInto(bw, child, depth-1); err != nil {
				return err
			}
		}
	case TypeMap:
		bw.WriteVarInt(uint64(len(item.mapKeys)))
		for i := range item.mapKeys {
			if err := serializeItemInto(bw, item.mapKeys[i], depth-1); err != nil {
				return err
			}
			if err := serializeItemInto(bw, item.mapVals[i], depth-1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("stackitem: %s is not serializable", item.Type)
	}
	return bw.Err()
}

// DeserializeStackItem parses the tagged binary form back into an item.
func DeserializeStackItem(raw []byte) (*StackItem, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	item, err := deserializeItemFrom(br, maxSerializedNesting)
	if err != nil {
		return nil, err
	}
	if br.Err() != nil {
		return nil, br.Err()
	}
	return item, nil
}

func deserializeItemFrom(br *BinaryReader, depth int) (*StackItem, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("stackitem: nesting too deep to deserialize")
	}
	t := StackItemType(br.ReadU8())
	if br.Err() != nil {
		return nil, br.Err()
	}
	switch t {
	case TypeAny:
		return NewNullItem(), nil
	case TypeBoolean:
		return NewBoolItem(br.ReadBool()), nil
	case TypeInteger:
		return NewIntItem(bytesToSignedInt(br.ReadVarBytes(33))), nil
	case TypeByteString:
		return NewByteStringItem(br.ReadVarBytes(MaxItemSize)), nil
	case TypeBuffer:
		return NewBufferItem(br.ReadVarBytes(MaxItemSize)), nil
	case TypeArray, TypeStruct:
		n := br.ReadVarInt()
		if n > uint64(MaxStackSize) {
			return nil, fmt.Errorf("stackitem: array size %d too large", n)
		}
		items := make([]*StackItem, 0, n)
		for i := uint64(0); i < n; i++ {
			child, err := deserializeItemFrom(br, depth-1)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		if t == TypeStruct {
			return NewStructItem(items), nil
		}
		return NewArrayItem(items), nil
	case TypeMap:
		n := br.ReadVarInt()
		if n > uint64(MaxStackSize) {
			return nil, fmt.Errorf("stackitem: map size %d too large", n)
		}
		m := NewMapItem()
		for i := uint64(0); i < n; i++ {
			k, err := deserializeItemFrom(br, depth-1)
			if err != nil {
				return nil, err
			}
			v, err := deserializeItemFrom(br, depth-1)
			if err != nil {
				return nil, err
			}
			if err := m.mapSet(k, v); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("stackitem: cannot deserialize type 0x%02x", byte(t))
	}
}
