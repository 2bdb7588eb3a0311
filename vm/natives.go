package vm

import (
	"fmt"
	"io"
	"strings"
)

// Native is a Go function exposed to units as Owner.name. Instance natives
// receive the receiver as args[0]. Void natives push nothing.
type Native struct {
	Void bool
	Fn   func(vm *VM, args []Value) (Value, error)
}

// Func wraps a native that returns a value.
func Func(fn func(vm *VM, args []Value) (Value, error)) Native {
	return Native{Fn: fn}
}

// Proc wraps a void native.
func Proc(fn func(vm *VM, args []Value) error) Native {
	return Native{Void: true, Fn: func(vm *VM, args []Value) (Value, error) {
		return nil, fn(vm, args)
	}}
}

// ConsoleNatives returns the sys.Console natives writing to w.
func ConsoleNatives(w io.Writer) map[string]Native {
	return map[string]Native{
		"sys.Console.print": Proc(func(_ *VM, args []Value) error {
			_, err := fmt.Fprintln(w, joinValues(args))
			return err
		}),
		"sys.Console.write": Proc(func(_ *VM, args []Value) error {
			_, err := io.WriteString(w, joinValues(args))
			return err
		}),
		"sys.Console.format": Func(func(_ *VM, args []Value) (Value, error) {
			return joinValues(args), nil
		}),
	}
}

func joinValues(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Format(a)
	}
	return strings.Join(parts, " ")
}
