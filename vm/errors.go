package vm

import (
	"errors"
	"fmt"
)

var (
	ErrNoClass       = errors.New("vm: class not found")
	ErrNoMethod      = errors.New("vm: method not found")
	ErrNoField       = errors.New("vm: field not found")
	ErrType          = errors.New("vm: type error")
	ErrStackOverflow = errors.New("vm: call depth exceeded")
	ErrBadEntry      = errors.New("vm: invalid entry point")
	ErrBadCode       = errors.New("vm: malformed bytecode")
)

// Error is a failure raised while executing a method.
type Error struct {
	Method string // Owner.name(params)ret
	IP     int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %d: %v", e.Method, e.IP, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// throw aborts execution; the public entry points recover it.
func throw(format string, args ...any) {
	panic(fmt.Errorf(format, args...))
}
