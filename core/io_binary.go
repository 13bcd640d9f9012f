// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BinaryWriter wraps an io.Writer with the fixed-width little-endian helpers
// every wire type is serialized through.
type BinaryWriter struct {
	w   io.Writer
	err error
}

// NewBinaryWriter wraps w.
func NewBinaryWriter(w io.Writer) *BinaryWriter { return &BinaryWriter{w: w} }

// Err returns the first error encountered by any Write* call.
func (bw *BinaryWriter) Err() error { return bw.err }

func (bw *BinaryWriter) write(b []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

func (bw *BinaryWriter) WriteU8(v uint8)   { bw.write([]byte{v}) }
func (bw *BinaryWriter) WriteU16(v uint16) { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); bw.write(b) }
func (bw *BinaryWriter) WriteU32(v uint32) { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); bw.write(b) }
func (bw *BinaryWriter) WriteU64(v uint64) { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); bw.write(b) }
func (bw *BinaryWriter) WriteI64(v int64)  { bw.WriteU64(uint64(v)) }
func (bw *BinaryWriter) WriteBool(v bool) {
	if bw.err != nil {
		return
	}
	bw.err = WriteBool(bw.w, v)
}
func (bw *BinaryWriter) WriteVarInt(v uint64) {
	if bw.err != nil {
		return
	}
	bw.err = WriteVarInt(bw.w, v)
}
func (bw *BinaryWriter) WriteVarBytes(b []byte) {
	if bw.err != nil {
		return
	}
	bw.err = WriteVarBytes(bw.w, b)
}
func (bw *BinaryWriter) WriteVarString(s string) {
	if bw.err != nil {
		return
	}
	bw.err = WriteVarString(bw.w, s)
}
func (bw *BinaryWriter) WriteBytes(b []byte) { bw.write(b) }
func (bw *BinaryWriter) WriteU160(h U160)    { bw.write(h.Bytes()) }
func (bw *BinaryWriter) WriteU256(h U256)    { bw.write(h.Bytes()) }

// BinaryReader is the mirror-image reader.
type BinaryReader struct {
	r   io.Reader
	err error
}

// NewBinaryReader wraps r.
func NewBinaryReader(r io.Reader) *BinaryReader { return &BinaryReader{r: r} }

// Err returns the first error encountered by any Read* call.
func (br *BinaryReader) Err() error { return br.err }

func (br *BinaryReader) readN(n int) []byte {
	if br.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		br.err = err
		return nil
	}
	return buf
}

func (br *BinaryReader) ReadU8() uint8 { b := br.readN(1); if b == nil { return 0 }; return b[0] }
func (br *BinaryReader) ReadU16() uint16 {
	b := br.readN(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}
func (br *BinaryReader) ReadU32() uint32 {
	b := br.readN(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
func (br *BinaryReader) ReadU64() uint64 {
	b := br.readN(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
func (br *BinaryReader) ReadI64() int64 { return int64(br.ReadU64()) }
func (br *BinaryReader) ReadBool() bool {
	if br.err != nil {
		return false
	}
	v, err := ReadBool(br.r)
	if err != nil {
		br.err = err
	}
	return v
}
func (br *BinaryReader) ReadVarInt() uint64 {
	if br.err != nil {
		return 0
	}
	v, err := ReadVarInt(br.r)
	if err != nil {
		br.err = err
	}
	return v
}
func (br *BinaryReader) ReadVarBytes(maxLen int) []byte {
	if br.err != nil {
		return nil
	}
	b, err := ReadVarBytes(br.r, maxLen)
	if err != nil {
		br.err = err
	}
	return b
}
func (br *BinaryReader) ReadVarString(maxLen int) string {
	if br.err != nil {
		return ""
	}
	s, err := ReadVarString(br.r, maxLen)
	if err != nil {
		br.err = err
	}
	return s
}
func (br *BinaryReader) ReadBytes(n int) []byte { return br.readN(n) }
func (br *BinaryReader) ReadU160() U160 {
	b := br.readN(20)
	if b == nil {
		return U160{}
	}
	u, err := U160FromBytes(b)
	if err != nil {
		br.err = err
	}
	return u
}
func (br *BinaryReader) ReadU256() U256 {
	b := br.readN(32)
	if b == nil {
		return U256{}
	}
	u, err := U256FromBytes(b)
	if err != nil {
		br.err = err
	}
	return u
}

// ReadArray reads var_int(count) then invokes elem count times, bounded by
// maxCount.
func ReadArray(br *BinaryReader, maxCount int, elem func()) int {
	n := br.ReadVarInt()
	if br.err != nil {
		return 0
	}
	if n > uint64(maxCount) {
		br.err = fmt.Errorf("array: count %d exceeds limit %d", n, maxCount)
		return 0
	}
	for i := uint64(0); i < n && br.err == nil; i++ {
		elem()
	}
	return int(n)
}
