package loader

import (
	"github.com/chazu/graft/bytecode"
	"github.com/chazu/graft/codesource"
	"github.com/chazu/graft/unit"
)

// Runtime-support unit names.
const (
	ModsUnit    = "graft.Mods"
	RuntimeUnit = "graft.Runtime"
)

// RuntimeStore builds the units the engine supplies to the host and to
// mods: graft.Mods, answering questions about the load order, and
// graft.Runtime.
func RuntimeStore(c *Context) (*codesource.MapStore, error) {
	ids := make([]string, len(c.Mods))
	for i, d := range c.Mods {
		ids[i] = d.ID
	}

	store := codesource.NewMapStore()
	for _, u := range []*unit.Unit{modsUnit(ids), runtimeUnit(c.Version)} {
		if err := store.PutUnit(u); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func modsUnit(ids []string) *unit.Unit {
	count := bytecode.NewStaticBuilder("count", nil, "int")
	count.PushInt(int64(len(ids)))
	count.Code().Emit(bytecode.OpReturnTop)

	// loaded(id) compares against each ID in turn.
	loaded := bytecode.NewStaticBuilder("loaded", []string{"string"}, "bool")
	c := loaded.Code()
	yes := c.NewLabel()
	for _, id := range ids {
		loaded.PushTemp(0)
		loaded.PushString(id)
		c.Emit(bytecode.OpEQ)
		c.EmitJump(bytecode.OpJumpTrue, yes)
	}
	c.Emit(bytecode.OpPushFalse)
	c.Emit(bytecode.OpReturnTop)
	c.Mark(yes)
	c.Emit(bytecode.OpPushTrue)
	c.Emit(bytecode.OpReturnTop)

	// at(i) returns the ID at load-order position i, or nil.
	at := bytecode.NewStaticBuilder("at", []string{"int"}, "string")
	ac := at.Code()
	for i, id := range ids {
		next := ac.NewLabel()
		at.PushTemp(0)
		at.PushInt(int64(i))
		ac.Emit(bytecode.OpEQ)
		ac.EmitJump(bytecode.OpJumpFalse, next)
		at.PushString(id)
		ac.Emit(bytecode.OpReturnTop)
		ac.Mark(next)
	}
	ac.Emit(bytecode.OpPushNil)
	ac.Emit(bytecode.OpReturnTop)

	return &unit.Unit{Name: ModsUnit, Methods: []*unit.Method{count.Build(), loaded.Build(), at.Build()}}
}

func runtimeUnit(version string) *unit.Unit {
	v := bytecode.NewStaticBuilder("version", nil, "string")
	v.PushString(version)
	v.Code().Emit(bytecode.OpReturnTop)
	return &unit.Unit{Name: RuntimeUnit, Methods: []*unit.Method{v.Build()}}
}
