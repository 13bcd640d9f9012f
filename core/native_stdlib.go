// SPDX-License-Identifier: BUSL-1.1
//
// StdLib: encoding helpers exposed to contracts.
package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"
)

const stdlibMaxInputLength = 1024 * 1024

// StdLib is the pure-function helper native.
type StdLib struct {
	*NativeContract
}

// NewStdLib builds the stdlib native.
func NewStdLib() *StdLib {
	s := &StdLib{NativeContract: newNativeContract(NativeIDStdLib, "StdLib")}
	s.registerMethods()
	return s
}

func stdlibBytesArg(item *StackItem, what string) ([]byte, error) {
	raw, err := item.Bytes()
	if err != nil {
		return nil, newFault("%s: %v", what, err)
	}
	if len(raw) > stdlibMaxInputLength {
		return nil, newFault("%s: input too large", what)
	}
	return raw, nil
}

func (s *StdLib) registerMethods() {
	pure := func(name string, params int, h NativeMethodHandler) {
		s.register(&NativeMethod{
			Name: name, ParamCount: params, RequiredFlags: CallFlagNone, Price: 1 << 12,
			Handler: h,
		})
	}

	pure("serialize", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := SerializeStackItem(args[0])
		if err != nil {
			return nil, newFault("serialize: %v", err)
		}
		return NewByteStringItem(raw), nil
	})
	pure("deserialize", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "deserialize")
		if err != nil {
			return nil, err
		}
		item, err := DeserializeStackItem(raw)
		if err != nil {
			return nil, newFault("deserialize: %v", err)
		}
		return item, nil
	})

	pure("base58Encode", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "base58Encode")
		if err != nil {
			return nil, err
		}
		return NewByteStringItem([]byte(base58.Encode(raw))), nil
	})
	pure("base58Decode", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "base58Decode")
		if err != nil {
			return nil, err
		}
		out, err := base58.Decode(string(raw))
		if err != nil {
			return nil, newFault("base58Decode: %v", err)
		}
		return NewByteStringItem(out), nil
	})
	pure("base58CheckEncode", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "base58CheckEncode")
		if err != nil {
			return nil, err
		}
		checksum := doubleSHA256(raw)
		return NewByteStringItem([]byte(base58.Encode(append(raw, checksum[:4]...)))), nil
	})
	pure("base58CheckDecode", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "base58CheckDecode")
		if err != nil {
			return nil, err
		}
		out, err := base58.Decode(string(raw))
		if err != nil || len(out) < 4 {
			return nil, newFault("base58CheckDecode: malformed input")
		}
		payload, checksum := out[:len(out)-4], out[len(out)-4:]
		want := doubleSHA256(payload)
		if !bytes.Equal(checksum, want[:4]) {
			return nil, newFault("base58CheckDecode: checksum mismatch")
		}
		return NewByteStringItem(payload), nil
	})

	pure("base64Encode", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "base64Encode")
		if err != nil {
			return nil, err
		}
		return NewByteStringItem([]byte(base64.StdEncoding.EncodeToString(raw))), nil
	})
	pure("base64Decode", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "base64Decode")
		if err != nil {
			return nil, err
		}
		out, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return nil, newFault("base64Decode: %v", err)
		}
		return NewByteStringItem(out), nil
	})

	pure("jsonSerialize", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		v, err := itemToJSONValue(args[0], maxSerializedNesting)
		if err != nil {
			return nil, newFault("jsonSerialize: %v", err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, newFault("jsonSerialize: %v", err)
		}
		return NewByteStringItem(raw), nil
	})
	pure("jsonDeserialize", 1, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "jsonDeserialize")
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, newFault("jsonDeserialize: %v", err)
		}
		item, err := jsonValueToItem(v, maxSerializedNesting)
		if err != nil {
			return nil, newFault("jsonDeserialize: %v", err)
		}
		return item, nil
	})

	pure("itoa", 2, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		v, err := args[0].Int()
		if err != nil {
			return nil, newFault("itoa: %v", err)
		}
		base, err := args[1].Int()
		if err != nil {
			return nil, newFault("itoa: %v", err)
		}
		switch base.Int64() {
		case 10:
			return NewByteStringItem([]byte(v.Text(10))), nil
		case 16:
			return NewByteStringItem([]byte(v.Text(16))), nil
		default:
			return nil, newFault("itoa: unsupported base %d", base.Int64())
		}
	})
	pure("atoi", 2, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		raw, err := stdlibBytesArg(args[0], "atoi")
		if err != nil {
			return nil, err
		}
		base, err := args[1].Int()
		if err != nil {
			return nil, newFault("atoi: %v", err)
		}
		if base.Int64() != 10 && base.Int64() != 16 {
			return nil, newFault("atoi: unsupported base %d", base.Int64())
		}
		v, ok := new(big.Int).SetString(strings.TrimSpace(string(raw)), int(base.Int64()))
		if !ok {
			return nil, newFault("atoi: malformed number %q", raw)
		}
		return NewIntItem(v), nil
	})

	pure("memoryCompare", 2, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		a, err := stdlibBytesArg(args[0], "memoryCompare")
		if err != nil {
			return nil, err
		}
		b, err := stdlibBytesArg(args[1], "memoryCompare")
		if err != nil {
			return nil, err
		}
		return NewIntItemInt64(int64(bytes.Compare(a, b))), nil
	})
	pure("memorySearch", 2, func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
		haystack, err := stdlibBytesArg(args[0], "memorySearch")
		if err != nil {
			return nil, err
		}
		needle, err := stdlibBytesArg(args[1], "memorySearch")
		if err != nil {
			return nil, err
		}
		return NewIntItemInt64(int64(bytes.Index(haystack, needle))), nil
	})
}

// itemToJSONValue maps an item onto the JSON data model: integers must fit
// a float64-safe range, byte strings become strings, maps require string
// keys.
func itemToJSONValue(item *StackItem, depth int) (any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("nesting too deep")
	}
	switch item.Type {
	case TypeAny:
		return nil, nil
	case TypeBoolean:
		return item.boolVal, nil
	case TypeInteger:
		if item.intVal.BitLen() > 53 {
			return nil, fmt.Errorf("integer exceeds JSON-safe range")
		}
		return json.Number(item.intVal.Text(10)), nil
	case TypeByteString, TypeBuffer:
		return string(item.bytesVal), nil
	case TypeArray, TypeStruct:
		out := make([]any, len(item.array))
		for i, child := range item.array {
			v, err := itemToJSONValue(child, depth-1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case TypeMap:
		out := make(map[string]any, len(item.mapKeys))
		for i, k := range item.mapKeys {
			kb, err := k.Bytes()
			if err != nil {
				return nil, fmt.Errorf("map key is not stringable")
			}
			v, err := itemToJSONValue(item.mapVals[i], depth-1)
			if err != nil {
				return nil, err
			}
			out[string(kb)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s is not JSON-serializable", item.Type)
	}
}

func jsonValueToItem(v any, depth int) (*StackItem, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("nesting too deep")
	}
	switch tv := v.(type) {
	case nil:
		return NewNullItem(), nil
	case bool:
		return NewBoolItem(tv), nil
	case json.Number:
		i, ok := new(big.Int).SetString(tv.String(), 10)
		if !ok {
			return nil, fmt.Errorf("non-integer JSON number %q", tv.String())
		}
		return NewIntItem(i), nil
	case string:
		return NewByteStringItem([]byte(tv)), nil
	case []any:
		items := make([]*StackItem, len(tv))
		for i, child := range tv {
			it, err := jsonValueToItem(child, depth-1)
			if err != nil {
				return nil, err
			}
			items[i] = it
		}
		return NewArrayItem(items), nil
	case map[string]any:
		m := NewMapItem()
		for k, child := range tv {
			it, err := jsonValueToItem(child, depth-1)
			if err != nil {
				return nil, err
			}
			if err := m.mapSet(NewByteStringItem([]byte(k)), it); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", v)
	}
}
