package bytecode

import (
	"fmt"
	"strings"

	"github.com/chazu/graft/unit"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. Literal operands are resolved against literals when given.
func DisassembleInstruction(r *Reader, literals []unit.Literal) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	lit := func(idx uint16) string {
		if int(idx) < len(literals) {
			return fmt.Sprintf("%d ; %s", idx, literals[idx])
		}
		return fmt.Sprintf("%d", idx)
	}

	switch op {
	case OpPushInt8:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadInt8())

	case OpPushTemp, OpStoreTemp, OpPushField, OpStoreField:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadByte())

	case OpPushLiteral, OpPushStatic, OpStoreStatic, OpPushEnum, OpEnumCase:
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, lit(r.ReadUint16()))

	case OpJump, OpJumpTrue, OpJumpFalse:
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	case OpPushInt32:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadInt32())

	case OpInvokeStatic, OpInvokeVirtual, OpNew:
		idx := r.ReadUint16()
		argc := r.ReadByte()
		return fmt.Sprintf("%04d  %s %s argc=%d", pos, info.Name, lit(idx), argc)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte, literals []unit.Literal) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("disassemble: %v", rec)
		}
	}()
	r := NewReader(bc)
	var lines []string
	for r.HasMore() {
		lines = append(lines, DisassembleInstruction(r, literals))
	}
	return strings.Join(lines, "\n"), nil
}

// DisassembleMethod renders a method header followed by its bytecode.
func DisassembleMethod(m *unit.Method) (string, error) {
	body, err := Disassemble(m.Code, m.Literals)
	if err != nil {
		return "", fmt.Errorf("%s: %w", m.Descriptor(), err)
	}
	header := m.Descriptor()
	if m.Static {
		header = "static " + header
	}
	if body == "" {
		return header, nil
	}
	return header + "\n" + body, nil
}
