package bytecode

import (
	"encoding/binary"

	"github.com/chazu/graft/unit"
)

// ---------------------------------------------------------------------------
// Builder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// Builder helps construct bytecode sequences.
type Builder struct {
	bytes []byte
}

// NewBuilder creates a new bytecode builder.
func NewBuilder() *Builder {
	return &Builder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *Builder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *Builder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitInt32 appends an opcode with a 32-bit operand (little-endian).
func (b *Builder) EmitInt32(op Opcode, operand int32) {
	b.bytes = append(b.bytes, byte(op))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitInvoke appends an INVOKE_STATIC, INVOKE_VIRTUAL or NEW instruction.
func (b *Builder) EmitInvoke(op Opcode, literal uint16, argc uint8) {
	b.bytes = append(b.bytes, byte(op), byte(literal), byte(literal>>8), argc)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in bytecode.
type Label struct {
	resolved bool
	position int   // position to patch (if unresolved) or target (if resolved)
	refs     []int // positions that reference this label
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	// Patch all forward references
	for _, ref := range label.refs {
		offset := label.position - (ref + 2) // offset from after the operand
		b.bytes[ref] = byte(offset)
		b.bytes[ref+1] = byte(offset >> 8)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction with a label.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
	} else {
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0) // placeholder
	}
}

// ---------------------------------------------------------------------------
// MethodBuilder: Helper for constructing methods
// ---------------------------------------------------------------------------

// MethodBuilder helps construct unit.Method instances together with their
// literal pool.
type MethodBuilder struct {
	method *unit.Method
	code   *Builder
}

// NewMethodBuilder creates a builder for an instance method.
func NewMethodBuilder(name string, params []string, returns string) *MethodBuilder {
	return &MethodBuilder{
		method: &unit.Method{Name: name, Params: params, Returns: returns},
		code:   NewBuilder(),
	}
}

// NewStaticBuilder creates a builder for a static method.
func NewStaticBuilder(name string, params []string, returns string) *MethodBuilder {
	b := NewMethodBuilder(name, params, returns)
	b.method.Static = true
	return b
}

// Code returns the bytecode builder for direct emission.
func (b *MethodBuilder) Code() *Builder {
	return b.code
}

// AddLocal reserves one local slot and returns its temp index.
func (b *MethodBuilder) AddLocal() int {
	idx := len(b.method.Params) + b.method.Locals
	b.method.Locals++
	return idx
}

// AddLiteral adds a literal and returns its index, reusing an equal entry.
func (b *MethodBuilder) AddLiteral(l unit.Literal) uint16 {
	for i, existing := range b.method.Literals {
		if sameLiteral(existing, l) {
			return uint16(i)
		}
	}
	return uint16(b.method.AddLiteral(l))
}

// Mark attaches a method-level marker.
func (b *MethodBuilder) Mark(kind string, attrs map[string]any) *MethodBuilder {
	b.method.Markers = append(b.method.Markers, unit.Marker{Kind: kind, Attrs: attrs})
	return b
}

// PushInt emits the shortest push for an integer constant.
func (b *MethodBuilder) PushInt(v int64) {
	switch {
	case v >= -128 && v <= 127:
		b.code.EmitInt8(OpPushInt8, int8(v))
	case v >= -1<<31 && v < 1<<31:
		b.code.EmitInt32(OpPushInt32, int32(v))
	default:
		b.code.EmitUint16(OpPushLiteral, b.AddLiteral(unit.IntLit(v)))
	}
}

// PushString emits a push of a string literal.
func (b *MethodBuilder) PushString(s string) {
	b.code.EmitUint16(OpPushLiteral, b.AddLiteral(unit.StringLit(s)))
}

// PushSelf emits a push of the receiver.
func (b *MethodBuilder) PushSelf() {
	b.code.Emit(OpPushSelf)
}

// PushTemp emits a push of a temporary.
func (b *MethodBuilder) PushTemp(i int) {
	b.code.EmitByte(OpPushTemp, byte(i))
}

// StoreTemp emits a store into a temporary.
func (b *MethodBuilder) StoreTemp(i int) {
	b.code.EmitByte(OpStoreTemp, byte(i))
}

// PushEnum emits a push of an enum constant.
func (b *MethodBuilder) PushEnum(enum, variant string) {
	b.code.EmitUint16(OpPushEnum, b.AddLiteral(unit.EnumRef(enum, variant)))
}

// PushStatic emits a push of a static field.
func (b *MethodBuilder) PushStatic(owner, field string) {
	b.code.EmitUint16(OpPushStatic, b.AddLiteral(unit.FieldRef(owner, field)))
}

// StoreStatic emits a store into a static field.
func (b *MethodBuilder) StoreStatic(owner, field string) {
	b.code.EmitUint16(OpStoreStatic, b.AddLiteral(unit.FieldRef(owner, field)))
}

// EnumCase emits a dispatch-table lookup for the variant on the stack.
func (b *MethodBuilder) EnumCase(enum, id string) {
	b.code.EmitUint16(OpEnumCase, b.AddLiteral(unit.SwitchRef(enum, id)))
}

// InvokeStatic emits a static call; arguments must already be pushed.
func (b *MethodBuilder) InvokeStatic(owner, name string, params ...string) {
	b.code.EmitInvoke(OpInvokeStatic, b.AddLiteral(unit.MethodRef(owner, name, params...)), uint8(len(params)))
}

// InvokeVirtual emits an instance call; receiver and arguments must
// already be pushed.
func (b *MethodBuilder) InvokeVirtual(owner, name string, params ...string) {
	b.code.EmitInvoke(OpInvokeVirtual, b.AddLiteral(unit.MethodRef(owner, name, params...)), uint8(len(params)))
}

// New emits an allocation calling the constructor with the given params.
func (b *MethodBuilder) New(class string, params ...string) {
	b.code.EmitInvoke(OpNew, b.AddLiteral(unit.MethodRef(class, unit.Constructor, params...)), uint8(len(params)))
}

// Build finalizes and returns the method.
func (b *MethodBuilder) Build() *unit.Method {
	b.method.Code = b.code.Bytes()
	return b.method
}

func sameLiteral(a, b unit.Literal) bool {
	if a.Kind != b.Kind || a.Int != b.Int || a.Str != b.Str || a.Owner != b.Owner || a.Name != b.Name {
		return false
	}
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return true
}
