// Package patch discovers patch declarations in mod units, resolves their
// targets and splices handler calls into target method bodies.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/graft/internal/schema"
	"github.com/chazu/graft/unit"
)

// Marker kinds recognized in mod units.
const (
	MarkerPatch  = "patch"  // unit level: target, method, params?
	MarkerInsert = "insert" // method level: offset
	MarkerEnum   = "enum"   // unit level: target, name, remove?, required?

	// MarkerPatched is attached to generated units and lists the mods that
	// patched them.
	MarkerPatched = "patched"

	// Handler method names.
	PrefixName  = "Prefix"
	PostfixName = "Postfix"
)

var (
	ErrInvalidDeclaration = errors.New("patch: invalid declaration")
	ErrCorruptUnit        = errors.New("patch: undecodable mod unit")
	ErrTargetNotFound     = errors.New("patch: target not found")
	ErrAmbiguousTarget    = errors.New("patch: ambiguous target overload")
	ErrIncompatible       = errors.New("patch: incompatible handler")
	ErrBadOffset          = errors.New("patch: insert offset out of range")
	ErrDeniedTarget       = errors.New("patch: target is denylisted")
	ErrRequiredEnum       = errors.New("patch: required enum extension failed")
)

// Kind is the splice kind of a declaration. Kinds are applied to a target
// in this order.
type Kind uint8

const (
	Prefix Kind = iota
	Insert
	Postfix
)

func (k Kind) String() string {
	switch k {
	case Prefix:
		return "prefix"
	case Insert:
		return "insert"
	case Postfix:
		return "postfix"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Declaration is one handler to splice into one target method.
type Declaration struct {
	Mod  string // owning mod ID
	Unit string // patch unit holding the handler

	Kind         Kind
	TargetType   string
	TargetMethod string
	// Params selects an exact overload; nil when not given.
	Params []string

	Handler *unit.Method
	Offset  int // insert only

	seq int // discovery order across all mods
}

func (d *Declaration) String() string {
	target := d.TargetType + "." + d.TargetMethod
	if d.Params != nil {
		target += "(" + strings.Join(d.Params, ",") + ")"
	}
	return fmt.Sprintf("%s %s.%s -> %s (mod %s)", d.Kind, d.Unit, d.Handler.Name, target, d.Mod)
}

// EnumDeclaration adds (or removes) a variant of an enum.
type EnumDeclaration struct {
	Mod      string
	Unit     string
	Target   string
	Name     string
	Remove   bool
	Required bool
}

func (d *EnumDeclaration) String() string {
	op := "add"
	if d.Remove {
		op = "remove"
	}
	return fmt.Sprintf("%s %s.%s (mod %s, unit %s)", op, d.Target, d.Name, d.Mod, d.Unit)
}

// ---------------------------------------------------------------------------
// Marker schemas
// ---------------------------------------------------------------------------

var markerSchema = schema.MustCompile(`
#Name: string & =~"^[A-Za-z_$][A-Za-z0-9_$]*(\\.[A-Za-z_$][A-Za-z0-9_$]*)*$"

#Patch: {
	target:  #Name
	method:  string & !=""
	params?: [...(string & !="")]
}

#Insert: {
	offset: int & >=0
}

#Enum: {
	target:    #Name
	name:      string & =~"^[A-Za-z_$][A-Za-z0-9_$]*$"
	remove?:   bool
	required?: bool
}
`)

type patchAttrs struct {
	Target string   `json:"target"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type insertAttrs struct {
	Offset int `json:"offset"`
}

type enumAttrs struct {
	Target   string `json:"target"`
	Name     string `json:"name"`
	Remove   bool   `json:"remove"`
	Required bool   `json:"required"`
}

// decodeMarker validates a marker's attributes against a definition.
func decodeMarker[T any](definition string, mk unit.Marker, where string) (*T, error) {
	attrs := mk.Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	v, err := schema.Decode[T](markerSchema, definition, attrs, where)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
	}
	return v, nil
}
