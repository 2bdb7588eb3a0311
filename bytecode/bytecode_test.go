package bytecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/graft/unit"
)

// loop builds: top: PUSH_TEMP 0; JUMP_FALSE done; JUMP top; done: RETURN_VOID
func loop() []byte {
	b := NewBuilder()
	top := b.NewLabel()
	done := b.NewLabel()
	b.Mark(top)
	b.EmitByte(OpPushTemp, 0)
	b.EmitJump(OpJumpFalse, done)
	b.EmitJump(OpJump, top)
	b.Mark(done)
	b.Emit(OpReturnVoid)
	return b.Bytes()
}

func TestBuilderResolvesLabels(t *testing.T) {
	code := loop()
	require.Len(t, code, 2+3+3+1)

	r := NewReader(code)
	r.Seek(2)
	assert.Equal(t, OpJumpFalse, r.ReadOpcode())
	assert.Equal(t, int16(3), r.ReadInt16(), "forward jump skips the back jump")
	assert.Equal(t, OpJump, r.ReadOpcode())
	assert.Equal(t, int16(-8), r.ReadInt16(), "backward jump lands on the first instruction")
}

func TestPushIntPicksShortestForm(t *testing.T) {
	tests := []struct {
		v    int64
		op   Opcode
		lits int
	}{
		{5, OpPushInt8, 0},
		{-128, OpPushInt8, 0},
		{1000, OpPushInt32, 0},
		{1 << 40, OpPushLiteral, 1},
	}
	for _, tc := range tests {
		b := NewStaticBuilder("f", nil, "int")
		b.PushInt(tc.v)
		m := b.Build()
		assert.Equal(t, tc.op, Opcode(m.Code[0]), "%d", tc.v)
		assert.Len(t, m.Literals, tc.lits)
	}
}

func TestAddLiteralReusesEqualEntries(t *testing.T) {
	b := NewStaticBuilder("f", nil, unit.Void)
	b.InvokeStatic("a.B", "c", "int")
	b.InvokeStatic("a.B", "c", "int")
	b.InvokeStatic("a.B", "c", "string")
	b.PushString("x")
	b.PushString("x")
	assert.Len(t, b.Build().Literals, 3)
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader([]byte{byte(OpPushInt32), 1, 2})
	r.ReadOpcode()
	assert.PanicsWithError(t, ErrTruncated.Error(), func() { r.ReadInt32() })
}

// ---------------------------------------------------------------------------
// IR
// ---------------------------------------------------------------------------

func TestParseLinksJumps(t *testing.T) {
	body, err := Parse(loop())
	require.NoError(t, err)
	require.Equal(t, 4, body.Len())
	assert.Same(t, body.At(3), body.At(1).Target)
	assert.Same(t, body.At(0), body.At(2).Target)
	assert.False(t, body.FallsThrough())
	assert.Len(t, body.Returns(), 1)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{0xFF})
	assert.ErrorIs(t, err, ErrUnknownOpcode)

	_, err = Parse([]byte{byte(OpJump), 1})
	assert.ErrorIs(t, err, ErrTruncated)

	// Jump into the middle of PUSH_INT8.
	_, err = Parse([]byte{byte(OpJump), 1, 0, byte(OpPushInt8), 7})
	assert.ErrorIs(t, err, ErrBadJump)
}

func TestJumpToEndGetsLandingInstruction(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.Emit(OpPushTrue)
	b.EmitJump(OpJumpTrue, end)
	b.EmitInt8(OpPushInt8, 1)
	b.Emit(OpPOP)
	b.Mark(end)

	body, err := Parse(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, 5, body.Len())
	last := body.At(4)
	assert.Equal(t, OpNOP, last.Op)
	assert.Same(t, last, body.At(1).Target)
	assert.True(t, body.FallsThrough())
}

func TestInsertBeforeRetargets(t *testing.T) {
	tests := []struct {
		name     string
		retarget bool
		// expected byte offset the back jump lands on
		want int
	}{
		{"retarget", true, 0},
		{"keep", false, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, err := Parse(loop())
			require.NoError(t, err)
			first := body.At(0)
			require.NoError(t, body.InsertBefore(first, []*Instr{Simple(OpNOP), Simple(OpNOP)}, tc.retarget))

			code, err := body.Emit()
			require.NoError(t, err)
			reparsed, err := Parse(code)
			require.NoError(t, err)
			back := reparsed.At(4)
			require.Equal(t, OpJump, back.Op)
			assert.Equal(t, tc.want, back.Target.Origin)
		})
	}
}

func TestInsertBeforeUnknownInstruction(t *testing.T) {
	body, err := Parse(loop())
	require.NoError(t, err)
	assert.ErrorIs(t, body.InsertBefore(Simple(OpNOP), []*Instr{Simple(OpNOP)}, false), ErrNotInBody)
}

func TestEmitPreservesUntouchedCode(t *testing.T) {
	b := NewStaticBuilder("f", []string{"int"}, "int")
	b.PushInt(100000)
	b.PushInt(1 << 40)
	b.PushTemp(0)
	b.InvokeStatic("a.B", "c", "int", "int")
	b.Code().Emit(OpReturnTop)
	m := b.Build()

	body, err := Parse(m.Code)
	require.NoError(t, err)
	code, err := body.Emit()
	require.NoError(t, err)
	assert.Equal(t, m.Code, code)
}

func TestEmitRejectsOutOfRangeOperands(t *testing.T) {
	body := &Body{Instrs: []*Instr{WithArg(OpPushTemp, 300)}}
	_, err := body.Emit()
	assert.ErrorIs(t, err, ErrOperandRange)

	body = &Body{Instrs: []*Instr{Invoke(OpInvokeStatic, 1, 256)}}
	_, err = body.Emit()
	assert.ErrorIs(t, err, ErrOperandRange)
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassembleMethod(t *testing.T) {
	b := NewStaticBuilder("main", nil, unit.Void)
	b.PushString("hi")
	b.InvokeStatic("sys.Console", "print", "string")
	b.Code().Emit(OpReturnVoid)

	got, err := DisassembleMethod(b.Build())
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"static main()void",
		`0000  PUSH_LITERAL 0 ; "hi"`,
		"0003  INVOKE_STATIC 1 ; method sys.Console.print(string) argc=1",
		"0007  RETURN_VOID",
	}, "\n"), got)

	_, err = Disassemble([]byte{byte(OpPushInt32)}, nil)
	assert.Error(t, err)
}
