package unit

import (
	"fmt"
	"strconv"
	"strings"
)

// LiteralKind identifies what a literal pool entry refers to.
type LiteralKind uint8

const (
	LitInt    LiteralKind = 1 // Int
	LitString LiteralKind = 2 // Str
	LitClass  LiteralKind = 3 // Owner
	LitMethod LiteralKind = 4 // Owner, Name, Params
	LitField  LiteralKind = 5 // Owner, Name (static field)
	LitEnum   LiteralKind = 6 // Owner (enum), Name (variant)
	LitSwitch LiteralKind = 7 // Owner (enum), Name (switch map ID)
)

// Literal is one entry of a method's literal pool.
type Literal struct {
	Kind   LiteralKind `cbor:"1,keyasint"`
	Int    int64       `cbor:"2,keyasint,omitempty"`
	Str    string      `cbor:"3,keyasint,omitempty"`
	Owner  string      `cbor:"4,keyasint,omitempty"`
	Name   string      `cbor:"5,keyasint,omitempty"`
	Params []string    `cbor:"6,keyasint,omitempty"`
}

// IntLit returns an integer literal.
func IntLit(v int64) Literal { return Literal{Kind: LitInt, Int: v} }

// StringLit returns a string literal.
func StringLit(s string) Literal { return Literal{Kind: LitString, Str: s} }

// ClassRef returns a reference to a unit by name.
func ClassRef(owner string) Literal { return Literal{Kind: LitClass, Owner: owner} }

// MethodRef returns a reference to an exact method overload.
func MethodRef(owner, name string, params ...string) Literal {
	return Literal{Kind: LitMethod, Owner: owner, Name: name, Params: params}
}

// FieldRef returns a reference to a static field.
func FieldRef(owner, name string) Literal {
	return Literal{Kind: LitField, Owner: owner, Name: name}
}

// EnumRef returns a reference to an enum's named-constant binding.
func EnumRef(enum, variant string) Literal {
	return Literal{Kind: LitEnum, Owner: enum, Name: variant}
}

// SwitchRef returns a reference to a dispatch table of an enum.
func SwitchRef(enum, id string) Literal {
	return Literal{Kind: LitSwitch, Owner: enum, Name: id}
}

// Key returns the qualified member name (Owner.Name), or Owner alone.
func (l Literal) Key() string {
	if l.Name == "" {
		return l.Owner
	}
	return l.Owner + "." + l.Name
}

// String renders the literal for disassembly listings.
func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitString:
		return strconv.Quote(l.Str)
	case LitClass:
		return "class " + l.Owner
	case LitMethod:
		return "method " + l.Owner + "." + l.Name + "(" + strings.Join(l.Params, ",") + ")"
	case LitField:
		return "field " + l.Key()
	case LitEnum:
		return "enum " + l.Key()
	case LitSwitch:
		return "switch " + l.Key()
	default:
		return fmt.Sprintf("literal(%d)", l.Kind)
	}
}
