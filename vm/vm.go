package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/graft/enum"
	"github.com/chazu/graft/unit"
)

// DefaultMaxDepth bounds nested invocations.
const DefaultMaxDepth = 1024

// CodeSource supplies encoded units by name. Enum classes additionally scan
// every path for switch maps.
type CodeSource = enum.UnitSource

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM links and runs units from a code source. It is single-threaded.
type VM struct {
	// MaxDepth bounds the call depth; 0 means DefaultMaxDepth.
	MaxDepth int

	src     CodeSource
	enums   *enum.Registry
	natives map[string]Native
	classes map[string]*Class
	interp  *Interpreter
	log     commonlog.Logger
}

// New creates a VM over src. A nil registry gets a fresh one.
func New(src CodeSource, enums *enum.Registry) *VM {
	if enums == nil {
		enums = enum.NewRegistry()
	}
	vm := &VM{
		src:     src,
		enums:   enums,
		natives: make(map[string]Native),
		classes: make(map[string]*Class),
		log:     commonlog.GetLogger("graft.vm"),
	}
	vm.interp = newInterpreter(vm)
	return vm
}

// Enums returns the registry backing enum classes.
func (vm *VM) Enums() *enum.Registry {
	return vm.enums
}

// RegisterNative exposes a Go function as key ("Owner.name").
func (vm *VM) RegisterNative(key string, n Native) {
	vm.natives[key] = n
}

// RegisterNatives registers every entry of natives.
func (vm *VM) RegisterNatives(natives map[string]Native) {
	for k, n := range natives {
		vm.natives[k] = n
	}
}

func (vm *VM) maxDepth() int {
	if vm.MaxDepth > 0 {
		return vm.MaxDepth
	}
	return DefaultMaxDepth
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

// Class links the named class, its superclasses and, for enums, its table,
// then runs its static initializer once.
func (vm *VM) Class(name string) (c *Class, err error) {
	defer vm.recoverInto(&err)
	return vm.class(name), nil
}

func (vm *VM) class(name string) *Class {
	if c, ok := vm.classes[name]; ok {
		return c
	}
	data, err := vm.src.Lookup(name)
	if err != nil {
		throw("%w: %s: %w", ErrNoClass, name, err)
	}
	u, err := unit.Decode(data)
	if err != nil {
		throw("%w: %s: %w", ErrNoClass, name, err)
	}

	var super *Class
	if u.Super != "" {
		super = vm.class(u.Super)
	}
	c := newClass(u, super)
	vm.classes[name] = c

	if u.IsEnum() {
		t, err := vm.enums.Load(vm.src, name)
		if err != nil {
			delete(vm.classes, name)
			throw("%s: %w", name, err)
		}
		c.Enum = t
	}
	for _, sw := range u.Switches {
		t, err := vm.enums.Load(vm.src, sw.Enum)
		if err != nil {
			delete(vm.classes, name)
			throw("%s: switch %s: %w", name, sw.ID, err)
		}
		if key := enum.DispatchKey(name, sw.ID); !t.HasDispatch(key) {
			if err := t.AddDispatch(key, sw.Cases); err != nil {
				delete(vm.classes, name)
				throw("%s: %w", name, err)
			}
		}
	}
	vm.log.Debugf("linked %s", name)

	c.initialized = true
	if m := u.Method(unit.StaticInit, nil); m != nil && m.Static {
		vm.interp.call(c, m, nil, nil)
	}
	return c
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Invoke calls a static method by owner, name and exact parameter types.
func (vm *VM) Invoke(owner, name string, params []string, args ...Value) (result Value, err error) {
	defer vm.recoverInto(&err)
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: %s.%s takes %d arguments, got %d", ErrType, owner, name, len(params), len(args))
	}
	return vm.interp.invokeStatic(unit.MethodRef(owner, name, params...), args), nil
}

// Send calls an instance method on recv.
func (vm *VM) Send(recv *Object, name string, params []string, args ...Value) (result Value, err error) {
	defer vm.recoverInto(&err)
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrType, name, len(params), len(args))
	}
	return vm.interp.invokeVirtual(unit.MethodRef(recv.Class.Name, name, params...), recv, args), nil
}

// NewObject allocates an instance of class and runs the matching
// constructor.
func (vm *VM) NewObject(class string, params []string, args ...Value) (obj *Object, err error) {
	defer vm.recoverInto(&err)
	return vm.interp.construct(unit.MethodRef(class, unit.Constructor, params...), args), nil
}

// Static reads a static field, linking its class first.
func (vm *VM) Static(owner, field string) (v Value, err error) {
	defer vm.recoverInto(&err)
	c := vm.class(owner)
	v, ok := c.Static(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoField, owner, field)
	}
	return v, nil
}

// Run invokes an entry point of the form "pkg.Class.method": a static
// method taking no arguments.
func (vm *VM) Run(entry string) (Value, error) {
	dot := strings.LastIndexByte(entry, '.')
	if dot <= 0 || dot == len(entry)-1 {
		return nil, fmt.Errorf("%w: %q", ErrBadEntry, entry)
	}
	return vm.Invoke(entry[:dot], entry[dot+1:], nil)
}

// recoverInto converts a panic raised during execution into an error.
func (vm *VM) recoverInto(err *error) {
	rec := recover()
	if rec == nil {
		return
	}
	vm.interp.reset()
	switch x := rec.(type) {
	case *Error:
		*err = x
	case error:
		*err = x
	default:
		*err = fmt.Errorf("vm: %v", x)
	}
	var e *Error
	if errors.As(*err, &e) {
		vm.log.Debugf("execution failed: %s", e)
	}
}
