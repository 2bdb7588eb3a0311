package vm

import (
	"fmt"
	"strconv"

	"github.com/chazu/graft/enum"
)

// Value is a runtime value: nil, int64, string, bool, *Object or
// *enum.Variant.
type Value = any

// Object is an instance of a linked class. Fields holds inherited fields
// first, then the class's own.
type Object struct {
	Class  *Class
	Fields []Value
}

// Field returns the named field, searching the class chain.
func (o *Object) Field(name string) (Value, bool) {
	idx := o.Class.FieldIndex(name)
	if idx < 0 {
		return nil, false
	}
	return o.Fields[idx], true
}

// Format renders a value for string concatenation and console output.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *enum.Variant:
		return x.Name
	case *Object:
		return "a " + x.Class.Name
	default:
		return fmt.Sprintf("%v", x)
	}
}

// TypeName returns the declared type name a value satisfies.
func TypeName(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case int64:
		return "int"
	case string:
		return "string"
	case bool:
		return "bool"
	case *enum.Variant:
		return "enum"
	case *Object:
		return x.Class.Name
	default:
		return fmt.Sprintf("%T", x)
	}
}

func equal(a, b Value) bool {
	switch x := a.(type) {
	case int64, string, bool, nil:
		return a == b
	case *enum.Variant:
		y, ok := b.(*enum.Variant)
		return ok && x == y
	case *Object:
		y, ok := b.(*Object)
		return ok && x == y
	default:
		return false
	}
}
