package bytecode

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownOpcode = errors.New("bytecode: unknown opcode")
	ErrBadJump       = errors.New("bytecode: jump target is not an instruction")
	ErrJumpRange     = errors.New("bytecode: jump offset out of range")
	ErrOperandRange  = errors.New("bytecode: operand out of range")
	ErrNotInBody     = errors.New("bytecode: instruction is not part of the body")
)

// ---------------------------------------------------------------------------
// Instr: one decoded instruction
// ---------------------------------------------------------------------------

// Instr is one instruction of an editable body. Jumps reference their target
// instruction directly, so instructions can be inserted anywhere without
// recomputing offsets until Emit.
type Instr struct {
	Op     Opcode
	Arg    int    // immediate operand, literal index for invokes
	Argc   int    // argument count (invokes only)
	Target *Instr // jump target (jumps only)
	Origin int    // byte offset in the parsed code; -1 once inserted
}

// Simple returns an instruction without operands.
func Simple(op Opcode) *Instr {
	return &Instr{Op: op, Origin: -1}
}

// WithArg returns an instruction with one immediate operand.
func WithArg(op Opcode, arg int) *Instr {
	return &Instr{Op: op, Arg: arg, Origin: -1}
}

// Invoke returns an invoke instruction.
func Invoke(op Opcode, literal, argc int) *Instr {
	return &Instr{Op: op, Arg: literal, Argc: argc, Origin: -1}
}

// JumpTo returns a jump to target.
func JumpTo(op Opcode, target *Instr) *Instr {
	return &Instr{Op: op, Target: target, Origin: -1}
}

// String renders the instruction without resolving literals.
func (in *Instr) String() string {
	switch {
	case in.Op.IsInvoke():
		return fmt.Sprintf("%s %d argc=%d", in.Op, in.Arg, in.Argc)
	case in.Op.IsJump():
		return fmt.Sprintf("%s ->%p", in.Op, in.Target)
	case in.Op.OperandBytes() > 0:
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	default:
		return in.Op.String()
	}
}

// ---------------------------------------------------------------------------
// Body: editable instruction list
// ---------------------------------------------------------------------------

// Body is a method body decoded into instructions.
type Body struct {
	Instrs []*Instr
}

// Parse decodes bytecode into an editable body.
func Parse(code []byte) (body *Body, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok && errors.Is(e, ErrTruncated) {
				body, err = nil, e
				return
			}
			panic(rec)
		}
	}()

	body = &Body{}
	byOffset := make(map[int]*Instr)
	jumpDest := make(map[*Instr]int)

	r := NewReader(code)
	for r.HasMore() {
		pos := r.Position()
		op := r.ReadOpcode()
		if !op.Valid() {
			return nil, fmt.Errorf("%w 0x%02X at %d", ErrUnknownOpcode, byte(op), pos)
		}
		in := &Instr{Op: op, Origin: pos}
		switch {
		case op.IsJump():
			rel := r.ReadInt16()
			jumpDest[in] = r.Position() + int(rel)
		case op.IsInvoke():
			in.Arg = int(r.ReadUint16())
			in.Argc = int(r.ReadByte())
		case op == OpPushInt8:
			in.Arg = int(r.ReadInt8())
		case op == OpPushInt32:
			in.Arg = int(r.ReadInt32())
		case op.OperandBytes() == 1:
			in.Arg = int(r.ReadByte())
		case op.OperandBytes() == 2:
			in.Arg = int(r.ReadUint16())
		}
		byOffset[pos] = in
		body.Instrs = append(body.Instrs, in)
	}

	for _, dest := range jumpDest {
		if dest == len(code) {
			// Jumps past the last instruction fall off the end; give them
			// a terminal instruction to land on.
			end := &Instr{Op: OpNOP, Origin: len(code)}
			byOffset[dest] = end
			body.Instrs = append(body.Instrs, end)
			break
		}
	}
	for in, dest := range jumpDest {
		target, ok := byOffset[dest]
		if !ok {
			return nil, fmt.Errorf("%w: %s at %d jumps to %d", ErrBadJump, in.Op, in.Origin, dest)
		}
		in.Target = target
	}
	return body, nil
}

// Len returns the number of instructions.
func (b *Body) Len() int {
	return len(b.Instrs)
}

// At returns the instruction at index i.
func (b *Body) At(i int) *Instr {
	return b.Instrs[i]
}

// IndexOf returns the position of in, or -1.
func (b *Body) IndexOf(in *Instr) int {
	for i, x := range b.Instrs {
		if x == in {
			return i
		}
	}
	return -1
}

// Returns lists the return instructions currently in the body.
func (b *Body) Returns() []*Instr {
	var out []*Instr
	for _, in := range b.Instrs {
		if in.Op.IsReturn() {
			out = append(out, in)
		}
	}
	return out
}

// InsertBefore splices seq immediately before at. When retarget is set,
// jumps that targeted at land on the first inserted instruction instead, so
// the inserted code runs on every path that reaches at.
func (b *Body) InsertBefore(at *Instr, seq []*Instr, retarget bool) error {
	idx := b.IndexOf(at)
	if idx < 0 {
		return ErrNotInBody
	}
	if len(seq) == 0 {
		return nil
	}
	if retarget {
		for _, in := range b.Instrs {
			if in.Target == at {
				in.Target = seq[0]
			}
		}
	}
	out := make([]*Instr, 0, len(b.Instrs)+len(seq))
	out = append(out, b.Instrs[:idx]...)
	out = append(out, seq...)
	out = append(out, b.Instrs[idx:]...)
	b.Instrs = out
	return nil
}

// FallsThrough reports whether execution can run off the end of the body.
func (b *Body) FallsThrough() bool {
	if len(b.Instrs) == 0 {
		return true
	}
	last := b.Instrs[len(b.Instrs)-1]
	return !last.Op.IsReturn() && last.Op != OpJump
}

// Append adds instructions at the end of the body.
func (b *Body) Append(seq ...*Instr) {
	b.Instrs = append(b.Instrs, seq...)
}

// Emit re-encodes the body, recomputing every jump offset.
func (b *Body) Emit() ([]byte, error) {
	offsets := make(map[*Instr]int, len(b.Instrs))
	pos := 0
	for _, in := range b.Instrs {
		offsets[in] = pos
		pos += in.Op.Size()
	}

	out := NewBuilder()
	for _, in := range b.Instrs {
		switch {
		case in.Op.IsJump():
			dest, ok := offsets[in.Target]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrBadJump, in.Op)
			}
			rel := dest - (offsets[in] + in.Op.Size())
			if rel < math.MinInt16 || rel > math.MaxInt16 {
				return nil, fmt.Errorf("%w: %d", ErrJumpRange, rel)
			}
			out.EmitUint16(in.Op, uint16(int16(rel)))
		case in.Op.IsInvoke():
			if in.Arg < 0 || in.Arg > math.MaxUint16 || in.Argc < 0 || in.Argc > math.MaxUint8 {
				return nil, fmt.Errorf("%w: %s literal=%d argc=%d", ErrOperandRange, in.Op, in.Arg, in.Argc)
			}
			out.EmitInvoke(in.Op, uint16(in.Arg), uint8(in.Argc))
		case in.Op == OpPushInt8:
			if in.Arg < math.MinInt8 || in.Arg > math.MaxInt8 {
				return nil, fmt.Errorf("%w: %s %d", ErrOperandRange, in.Op, in.Arg)
			}
			out.EmitInt8(in.Op, int8(in.Arg))
		case in.Op == OpPushInt32:
			if in.Arg < math.MinInt32 || in.Arg > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %s %d", ErrOperandRange, in.Op, in.Arg)
			}
			out.EmitInt32(in.Op, int32(in.Arg))
		case in.Op.OperandBytes() == 1:
			if in.Arg < 0 || in.Arg > math.MaxUint8 {
				return nil, fmt.Errorf("%w: %s %d", ErrOperandRange, in.Op, in.Arg)
			}
			out.EmitByte(in.Op, byte(in.Arg))
		case in.Op.OperandBytes() == 2:
			if in.Arg < 0 || in.Arg > math.MaxUint16 {
				return nil, fmt.Errorf("%w: %s %d", ErrOperandRange, in.Op, in.Arg)
			}
			out.EmitUint16(in.Op, uint16(in.Arg))
		case in.Op.Valid():
			out.Emit(in.Op)
		default:
			return nil, fmt.Errorf("%w 0x%02X", ErrUnknownOpcode, byte(in.Op))
		}
	}
	return out.Bytes(), nil
}
