package vm

import (
	"slices"

	"github.com/chazu/graft/enum"
	"github.com/chazu/graft/unit"
)

// ---------------------------------------------------------------------------
// Class: a linked unit
// ---------------------------------------------------------------------------

// Class is a unit linked into the VM.
type Class struct {
	Name  string
	Unit  *unit.Unit
	Super *Class

	// Enum is the backing table of an enum class.
	Enum *enum.Table

	statics     map[string]Value
	initialized bool
}

func newClass(u *unit.Unit, super *Class) *Class {
	c := &Class{
		Name:    u.Name,
		Unit:    u,
		Super:   super,
		statics: make(map[string]Value, len(u.Statics)),
	}
	for _, s := range u.Statics {
		c.statics[s] = nil
	}
	return c
}

// NumFields returns the instance field count including inherited fields.
func (c *Class) NumFields() int {
	n := len(c.Unit.Fields)
	if c.Super != nil {
		n += c.Super.NumFields()
	}
	return n
}

// FieldIndex returns the object slot of a field, or -1.
func (c *Class) FieldIndex(name string) int {
	if i := slices.Index(c.Unit.Fields, name); i >= 0 {
		return c.fieldOffset() + i
	}
	if c.Super != nil {
		return c.Super.FieldIndex(name)
	}
	return -1
}

func (c *Class) fieldOffset() int {
	if c.Super == nil {
		return 0
	}
	return c.Super.NumFields()
}

// FindMethod looks up an exact overload, walking the superclass chain. It
// returns the method and the class declaring it.
func (c *Class) FindMethod(name string, params []string) (*unit.Method, *Class) {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.Unit.Method(name, params); m != nil {
			return m, cur
		}
	}
	return nil, nil
}

// IsSubclassOf returns true if c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// Static returns a static field of this class.
func (c *Class) Static(name string) (Value, bool) {
	v, ok := c.statics[name]
	return v, ok
}

// SetStatic assigns a declared static field.
func (c *Class) SetStatic(name string, v Value) bool {
	if _, ok := c.statics[name]; !ok {
		return false
	}
	c.statics[name] = v
	return true
}
