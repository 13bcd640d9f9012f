// SPDX-License-Identifier: BUSL-1.1
//
// Wire encoding primitives: the var-int/var-bytes framing every on-wire
// and on-disk structure is built from.
package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	varIntThreshold16 = 0xFD
	varIntThreshold32 = 0x1_0000
	varIntThreshold64 = 0x1_0000_0000
)

// VarIntSize returns the number of bytes WriteVarInt will emit for v, one of
// {1, 3, 5, 9}.
func VarIntSize(v uint64) int {
	switch {
	case v < varIntThreshold16:
		return 1
	case v < varIntThreshold32:
		return 3
	case v < varIntThreshold64:
		return 5
	default:
		return 9
	}
}

// WriteVarInt encodes v using Neo's variable-length integer prefix scheme.
func WriteVarInt(w io.Writer, v uint64) error {
	switch {
	case v < varIntThreshold16:
		_, err := w.Write([]byte{byte(v)})
		return err
	case v < varIntThreshold32:
		buf := make([]byte, 3)
		buf[0] = 0xFD
		binary.LittleEndian.PutUint16(buf[1:], uint16(v))
		_, err := w.Write(buf)
		return err
	case v < varIntThreshold64:
		buf := make([]byte, 5)
		buf[0] = 0xFE
		binary.LittleEndian.PutUint32(buf[1:], uint32(v))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = 0xFF
		binary.LittleEndian.PutUint64(buf[1:], v)
		_, err := w.Write(buf)
		return err
	}
}

// ReadVarInt decodes a var-int, rejecting non-canonical encodings (a value
// that fits in a smaller prefix must use it) to keep serialization
// deterministic.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xFD:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := uint64(binary.LittleEndian.Uint16(buf[:]))
		if v < varIntThreshold16 {
			return 0, fmt.Errorf("varint: non-canonical 3-byte encoding of %d", v)
		}
		return v, nil
	case 0xFE:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := uint64(binary.LittleEndian.Uint32(buf[:]))
		if v < varIntThreshold32 {
			return 0, fmt.Errorf("varint: non-canonical 5-byte encoding of %d", v)
		}
		return v, nil
	case 0xFF:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(buf[:])
		if v < varIntThreshold64 {
			return 0, fmt.Errorf("varint: non-canonical 9-byte encoding of %d", v)
		}
		return v, nil
	default:
		return uint64(prefix[0]), nil
	}
}

// WriteVarBytes writes var_int(len(b)) ‖ b.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadVarBytes reads a length-prefixed byte slice, rejecting lengths beyond
// maxLen (callers pass the relevant protocol limit, e.g. MaxScriptLength).
func ReadVarBytes(r io.Reader, maxLen int) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(maxLen) {
		return nil, fmt.Errorf("varbytes: length %d exceeds limit %d", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteVarString writes a var_string: UTF-8 bytes under var_bytes.
func WriteVarString(w io.Writer, s string) error { return WriteVarBytes(w, []byte(s)) }

// ReadVarString reads a var_string.
func ReadVarString(r io.Reader, maxLen int) (string, error) {
	b, err := ReadVarBytes(r, maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBool writes a single 0x00/0x01 byte.
func WriteBool(w io.Writer, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

// ReadBool reads a single 0x00/0x01 byte.
func ReadBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	switch b[0] {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, fmt.Errorf("bool: invalid byte 0x%02x", b[0])
	}
}
