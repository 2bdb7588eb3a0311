package bytecode

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated reports bytecode that ends inside an instruction.
var ErrTruncated = errors.New("bytecode: truncated instruction")

// Reader walks a method's code. Operands are little-endian; reading past
// the end panics with ErrTruncated, which Parse and the interpreter recover.
type Reader struct {
	code []byte
	pos  int
}

// NewReader returns a reader positioned at the first instruction.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Position is the offset of the next byte to be read.
func (r *Reader) Position() int { return r.pos }

// HasMore reports whether any bytes remain.
func (r *Reader) HasMore() bool { return r.pos < len(r.code) }

// Seek moves to an absolute offset.
func (r *Reader) Seek(pos int) { r.pos = pos }

// Skip advances past n operand bytes.
func (r *Reader) Skip(n int) { r.pos += n }

// take consumes n bytes.
func (r *Reader) take(n int) []byte {
	if r.pos < 0 || r.pos+n > len(r.code) {
		panic(ErrTruncated)
	}
	b := r.code[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) ReadOpcode() Opcode { return Opcode(r.take(1)[0]) }
func (r *Reader) ReadByte() byte     { return r.take(1)[0] }
func (r *Reader) ReadInt8() int8     { return int8(r.take(1)[0]) }
func (r *Reader) ReadUint16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }
func (r *Reader) ReadInt16() int16   { return int16(r.ReadUint16()) }
func (r *Reader) ReadInt32() int32   { return int32(binary.LittleEndian.Uint32(r.take(4))) }
