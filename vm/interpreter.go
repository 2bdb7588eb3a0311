package vm

import (
	"github.com/chazu/graft/bytecode"
	"github.com/chazu/graft/enum"
	"github.com/chazu/graft/unit"
)

// ---------------------------------------------------------------------------
// CallFrame: execution state of one invocation
// ---------------------------------------------------------------------------

// CallFrame is the state of a single method invocation.
type CallFrame struct {
	Class    *Class       // declaring class
	Method   *unit.Method // the method being executed
	Receiver Value        // nil for static methods
	Temps    []Value      // arguments, then locals

	stack []Value
	code  *bytecode.Reader
}

func (f *CallFrame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *CallFrame) pop() Value {
	if len(f.stack) == 0 {
		throw("%w: stack underflow", ErrBadCode)
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *CallFrame) popN(n int) []Value {
	if len(f.stack) < n {
		throw("%w: stack underflow", ErrBadCode)
	}
	out := make([]Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (f *CallFrame) literal(idx uint16, kind unit.LiteralKind) unit.Literal {
	if int(idx) >= len(f.Method.Literals) {
		throw("%w: literal index %d out of bounds (len=%d)", ErrBadCode, idx, len(f.Method.Literals))
	}
	l := f.Method.Literals[idx]
	if kind != 0 && l.Kind != kind {
		throw("%w: literal %d is %s", ErrBadCode, idx, l)
	}
	return l
}

// ---------------------------------------------------------------------------
// Interpreter: bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes bytecode for a VM. Invocations recurse on the Go
// stack; depth is bounded by the VM.
type Interpreter struct {
	vm    *VM
	depth int
}

func newInterpreter(vm *VM) *Interpreter {
	return &Interpreter{vm: vm}
}

func (i *Interpreter) reset() {
	i.depth = 0
}

// call runs m with the given receiver and arguments and returns its result.
func (i *Interpreter) call(class *Class, m *unit.Method, recv Value, args []Value) Value {
	if i.depth >= i.vm.maxDepth() {
		throw("%w: %d frames", ErrStackOverflow, i.depth)
	}
	i.depth++
	defer func() { i.depth-- }()

	frame := &CallFrame{
		Class:    class,
		Method:   m,
		Receiver: recv,
		Temps:    make([]Value, len(m.Params)+m.Locals),
		code:     bytecode.NewReader(m.Code),
	}
	copy(frame.Temps, args)

	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(*Error); ok {
				panic(e)
			}
			err, ok := rec.(error)
			if !ok {
				panic(rec)
			}
			panic(&Error{
				Method: class.Name + "." + m.Descriptor(),
				IP:     frame.code.Position(),
				Err:    err,
			})
		}
	}()

	return i.run(frame)
}

// run is the interpreter loop.
func (i *Interpreter) run(frame *CallFrame) Value {
	r := frame.code
	for r.HasMore() {
		op := r.ReadOpcode()

		switch op {
		// --- Stack operations ---
		case bytecode.OpNOP:

		case bytecode.OpPOP:
			frame.pop()

		case bytecode.OpDUP:
			v := frame.pop()
			frame.push(v)
			frame.push(v)

		// --- Push constants ---
		case bytecode.OpPushNil:
			frame.push(nil)

		case bytecode.OpPushTrue:
			frame.push(true)

		case bytecode.OpPushFalse:
			frame.push(false)

		case bytecode.OpPushSelf:
			frame.push(frame.Receiver)

		case bytecode.OpPushInt8:
			frame.push(int64(r.ReadInt8()))

		case bytecode.OpPushInt32:
			frame.push(int64(r.ReadInt32()))

		case bytecode.OpPushLiteral:
			l := frame.literal(r.ReadUint16(), 0)
			switch l.Kind {
			case unit.LitInt:
				frame.push(l.Int)
			case unit.LitString:
				frame.push(l.Str)
			default:
				throw("%w: cannot push %s", ErrBadCode, l)
			}

		// --- Variables ---
		case bytecode.OpPushTemp:
			frame.push(frame.Temps[r.ReadByte()])

		case bytecode.OpStoreTemp:
			frame.Temps[r.ReadByte()] = frame.pop()

		case bytecode.OpPushField:
			idx := int(r.ReadByte())
			frame.push(self(frame).Fields[idx])

		case bytecode.OpStoreField:
			idx := int(r.ReadByte())
			self(frame).Fields[idx] = frame.pop()

		case bytecode.OpPushStatic:
			l := frame.literal(r.ReadUint16(), unit.LitField)
			v, ok := i.vm.class(l.Owner).Static(l.Name)
			if !ok {
				throw("%w: %s", ErrNoField, l.Key())
			}
			frame.push(v)

		case bytecode.OpStoreStatic:
			l := frame.literal(r.ReadUint16(), unit.LitField)
			if !i.vm.class(l.Owner).SetStatic(l.Name, frame.pop()) {
				throw("%w: %s", ErrNoField, l.Key())
			}

		case bytecode.OpPushEnum:
			l := frame.literal(r.ReadUint16(), unit.LitEnum)
			c := i.vm.class(l.Owner)
			if c.Enum == nil {
				throw("%w: %s", enum.ErrNotEnum, l.Owner)
			}
			v, ok := c.Enum.Binding(l.Name)
			if !ok {
				throw("%w: %s", enum.ErrUnknownVariant, l.Key())
			}
			if v == nil {
				// A deleted constant reads as nil.
				frame.push(nil)
			} else {
				frame.push(v)
			}

		// --- Invocation ---
		case bytecode.OpInvokeStatic:
			l := frame.literal(r.ReadUint16(), unit.LitMethod)
			args := frame.popN(int(r.ReadByte()))
			if v, void := i.invokeStaticFull(l, args); !void {
				frame.push(v)
			}

		case bytecode.OpInvokeVirtual:
			l := frame.literal(r.ReadUint16(), unit.LitMethod)
			args := frame.popN(int(r.ReadByte()))
			recv := frame.pop()
			if v, void := i.invokeVirtualFull(l, recv, args); !void {
				frame.push(v)
			}

		case bytecode.OpNew:
			l := frame.literal(r.ReadUint16(), unit.LitMethod)
			args := frame.popN(int(r.ReadByte()))
			frame.push(i.construct(l, args))

		// --- Arithmetic and comparison ---
		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpLT, bytecode.OpGT:
			b := asInt(frame.pop())
			a := asInt(frame.pop())
			switch op {
			case bytecode.OpAdd:
				frame.push(a + b)
			case bytecode.OpSub:
				frame.push(a - b)
			case bytecode.OpMul:
				frame.push(a * b)
			case bytecode.OpLT:
				frame.push(a < b)
			case bytecode.OpGT:
				frame.push(a > b)
			}

		case bytecode.OpEQ:
			b := frame.pop()
			a := frame.pop()
			frame.push(equal(a, b))

		case bytecode.OpConcat:
			b := frame.pop()
			a := frame.pop()
			frame.push(Format(a) + Format(b))

		// --- Enumerations ---
		case bytecode.OpOrdinal:
			frame.push(int64(asVariant(frame.pop()).Ordinal))

		case bytecode.OpEnumCase:
			l := frame.literal(r.ReadUint16(), unit.LitSwitch)
			v := asVariant(frame.pop())
			c := i.vm.class(l.Owner)
			if c.Enum == nil {
				throw("%w: %s", enum.ErrNotEnum, l.Owner)
			}
			// Switch IDs are scoped to the unit declaring the method.
			idx, err := c.Enum.Case(enum.DispatchKey(frame.Class.Name, l.Name), v.Ordinal)
			if err != nil {
				throw("%w", err)
			}
			frame.push(int64(idx))

		// --- Control flow ---
		case bytecode.OpJump:
			off := int(r.ReadInt16())
			r.Seek(r.Position() + off)

		case bytecode.OpJumpTrue, bytecode.OpJumpFalse:
			off := int(r.ReadInt16())
			cond := asBool(frame.pop())
			if cond == (op == bytecode.OpJumpTrue) {
				r.Seek(r.Position() + off)
			}

		// --- Returns ---
		case bytecode.OpReturnTop:
			return frame.pop()

		case bytecode.OpReturnVoid:
			return nil

		default:
			throw("%w: unknown opcode 0x%02X", ErrBadCode, byte(op))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func (i *Interpreter) invokeStatic(l unit.Literal, args []Value) Value {
	v, _ := i.invokeStaticFull(l, args)
	return v
}

// invokeStaticFull also reports whether the callee is void.
func (i *Interpreter) invokeStaticFull(l unit.Literal, args []Value) (Value, bool) {
	if n, ok := i.vm.natives[l.Key()]; ok {
		return i.native(l, n, args), n.Void
	}
	c := i.vm.class(l.Owner)
	m, owner := c.FindMethod(l.Name, l.Params)
	if m == nil {
		throw("%w: %s", ErrNoMethod, l)
	}
	if !m.Static {
		throw("%w: %s is not static", ErrNoMethod, l)
	}
	return i.call(owner, m, nil, args), m.IsVoid()
}

func (i *Interpreter) invokeVirtual(l unit.Literal, recv Value, args []Value) Value {
	v, _ := i.invokeVirtualFull(l, recv, args)
	return v
}

func (i *Interpreter) invokeVirtualFull(l unit.Literal, recv Value, args []Value) (Value, bool) {
	if n, ok := i.vm.natives[l.Key()]; ok {
		return i.native(l, n, append([]Value{recv}, args...)), n.Void
	}
	obj, ok := recv.(*Object)
	if !ok {
		throw("%w: %s sent to %s", ErrType, l, TypeName(recv))
	}
	m, owner := obj.Class.FindMethod(l.Name, l.Params)
	if m == nil {
		throw("%w: %s on %s", ErrNoMethod, l, obj.Class.Name)
	}
	if m.Static {
		throw("%w: %s is static", ErrNoMethod, l)
	}
	return i.call(owner, m, obj, args), m.IsVoid()
}

// construct allocates an instance and runs the exact constructor named by
// l. A class without constructors accepts a no-argument NEW.
func (i *Interpreter) construct(l unit.Literal, args []Value) *Object {
	c := i.vm.class(l.Owner)
	obj := &Object{Class: c, Fields: make([]Value, c.NumFields())}
	m := c.Unit.Method(unit.Constructor, l.Params)
	if m == nil {
		if len(l.Params) == 0 && len(c.Unit.MethodsNamed(unit.Constructor)) == 0 {
			return obj
		}
		throw("%w: %s", ErrNoMethod, l)
	}
	i.call(c, m, obj, args)
	return obj
}

func (i *Interpreter) native(l unit.Literal, n Native, args []Value) Value {
	v, err := n.Fn(i.vm, args)
	if err != nil {
		throw("native %s: %w", l.Key(), err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

func self(frame *CallFrame) *Object {
	obj, ok := frame.Receiver.(*Object)
	if !ok {
		throw("%w: field access without receiver", ErrType)
	}
	return obj
}

func asInt(v Value) int64 {
	n, ok := v.(int64)
	if !ok {
		throw("%w: expected int, got %s", ErrType, TypeName(v))
	}
	return n
}

func asBool(v Value) bool {
	b, ok := v.(bool)
	if !ok {
		throw("%w: expected bool, got %s", ErrType, TypeName(v))
	}
	return b
}

func asVariant(v Value) *enum.Variant {
	e, ok := v.(*enum.Variant)
	if !ok || e == nil {
		throw("%w: expected enum constant, got %s", ErrType, TypeName(v))
	}
	return e
}
