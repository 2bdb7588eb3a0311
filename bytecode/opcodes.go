// Package bytecode defines the instruction set of compiled units, a
// builder and disassembler for it, and an editable instruction-level IR
// used to splice extension code into existing method bodies.
package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP Opcode = 0x00 // no operation
	OpPOP Opcode = 0x01 // discard top of stack
	OpDUP Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushSelf    Opcode = 0x13 // push receiver
	OpPushInt8    Opcode = 0x14 // push 8-bit signed integer
	OpPushInt32   Opcode = 0x15 // push 32-bit signed integer
	OpPushLiteral Opcode = 0x16 // push int/string literal (16-bit index)
)

// Variable Operations
const (
	OpPushTemp    Opcode = 0x20 // push temporary/argument (8-bit index)
	OpStoreTemp   Opcode = 0x21 // pop into temporary (8-bit index)
	OpPushField   Opcode = 0x22 // push receiver field (8-bit index)
	OpStoreField  Opcode = 0x23 // pop into receiver field (8-bit index)
	OpPushStatic  Opcode = 0x24 // push static field (16-bit field literal)
	OpStoreStatic Opcode = 0x25 // pop into static field (16-bit field literal)
	OpPushEnum    Opcode = 0x26 // push enum constant binding (16-bit enum literal)
)

// Invocation
const (
	OpInvokeStatic  Opcode = 0x30 // call static method (16-bit method literal, 8-bit argc)
	OpInvokeVirtual Opcode = 0x31 // call instance method (16-bit method literal, 8-bit argc)
	OpNew           Opcode = 0x32 // allocate and construct (16-bit <init> literal, 8-bit argc)
)

// Arithmetic and comparison
const (
	OpAdd    Opcode = 0x40 // integer +
	OpSub    Opcode = 0x41 // integer -
	OpMul    Opcode = 0x42 // integer *
	OpLT     Opcode = 0x45 // integer <
	OpGT     Opcode = 0x46 // integer >
	OpEQ     Opcode = 0x49 // value equality
	OpConcat Opcode = 0x4A // string concatenation of printed values
)

// Enumerations
const (
	OpOrdinal  Opcode = 0x50 // pop variant, push its ordinal
	OpEnumCase Opcode = 0x51 // pop variant, push case index (16-bit switch literal)
)

// Control Flow
const (
	OpJump      Opcode = 0x60 // unconditional jump (16-bit offset)
	OpJumpTrue  Opcode = 0x61 // pop, jump if true (16-bit offset)
	OpJumpFalse Opcode = 0x62 // pop, jump if false (16-bit offset)
)

// Returns
const (
	OpReturnTop  Opcode = 0x70 // return top of stack
	OpReturnVoid Opcode = 0x71 // return nothing
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", 0, 0},
	OpPOP: {"POP", 0, -1},
	OpDUP: {"DUP", 0, 1},

	OpPushNil:     {"PUSH_NIL", 0, 1},
	OpPushTrue:    {"PUSH_TRUE", 0, 1},
	OpPushFalse:   {"PUSH_FALSE", 0, 1},
	OpPushSelf:    {"PUSH_SELF", 0, 1},
	OpPushInt8:    {"PUSH_INT8", 1, 1},
	OpPushInt32:   {"PUSH_INT32", 4, 1},
	OpPushLiteral: {"PUSH_LITERAL", 2, 1},

	OpPushTemp:    {"PUSH_TEMP", 1, 1},
	OpStoreTemp:   {"STORE_TEMP", 1, -1},
	OpPushField:   {"PUSH_FIELD", 1, 1},
	OpStoreField:  {"STORE_FIELD", 1, -1},
	OpPushStatic:  {"PUSH_STATIC", 2, 1},
	OpStoreStatic: {"STORE_STATIC", 2, -1},
	OpPushEnum:    {"PUSH_ENUM", 2, 1},

	OpInvokeStatic:  {"INVOKE_STATIC", 3, -1},
	OpInvokeVirtual: {"INVOKE_VIRTUAL", 3, -1},
	OpNew:           {"NEW", 3, -1},

	OpAdd:    {"ADD", 0, -1},
	OpSub:    {"SUB", 0, -1},
	OpMul:    {"MUL", 0, -1},
	OpLT:     {"LT", 0, -1},
	OpGT:     {"GT", 0, -1},
	OpEQ:     {"EQ", 0, -1},
	OpConcat: {"CONCAT", 0, -1},

	OpOrdinal:  {"ORDINAL", 0, 0},
	OpEnumCase: {"ENUM_CASE", 2, 0},

	OpJump:      {"JUMP", 2, 0},
	OpJumpTrue:  {"JUMP_TRUE", 2, -1},
	OpJumpFalse: {"JUMP_FALSE", 2, -1},

	OpReturnTop:  {"RETURN_TOP", 0, -1},
	OpReturnVoid: {"RETURN_VOID", 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// Size returns the encoded size of an instruction, opcode included.
func (op Opcode) Size() int {
	return 1 + op.OperandBytes()
}

// IsJump reports whether op carries a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpTrue || op == OpJumpFalse
}

// IsReturn reports whether op leaves the method.
func (op Opcode) IsReturn() bool {
	return op == OpReturnTop || op == OpReturnVoid
}

// IsInvoke reports whether op carries a method literal and an argument count.
func (op Opcode) IsInvoke() bool {
	return op == OpInvokeStatic || op == OpInvokeVirtual || op == OpNew
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}
