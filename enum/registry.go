package enum

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/graft/unit"
)

// UnitSource is the read side of a code source as seen by the registry.
type UnitSource interface {
	Lookup(name string) ([]byte, error)
	LookupPath(path string) ([]byte, error)
	Paths() []string
}

// Registry owns the enum tables of one run, keyed by enum name, together
// with the mutator of each table.
type Registry struct {
	tables   map[string]*Table
	mutators map[string]*Mutator
	log      commonlog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:   make(map[string]*Table),
		mutators: make(map[string]*Mutator),
		log:      commonlog.GetLogger("graft.enum"),
	}
}

// Register adds a table built elsewhere.
func (r *Registry) Register(t *Table) error {
	if _, ok := r.tables[t.name]; ok {
		return fmt.Errorf("%w: enum %s already registered", ErrDuplicate, t.name)
	}
	if err := t.Check(); err != nil {
		return err
	}
	r.tables[t.name] = t
	return nil
}

// Table returns the registered table for an enum.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns the registered enum names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Mutator returns the mutator of a registered table, creating it on first
// use so that every mutation of a table shares one undo stack.
func (r *Registry) Mutator(name string) (*Mutator, error) {
	if m, ok := r.mutators[name]; ok {
		return m, nil
	}
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnum, name)
	}
	m, err := NewMutator(t)
	if err != nil {
		return nil, err
	}
	r.mutators[name] = m
	return m, nil
}

// Load returns the table of the named enum, decoding it from src on first
// use. Every switch map over the enum found in src becomes a dispatch
// table.
func (r *Registry) Load(src UnitSource, name string) (*Table, error) {
	if t, ok := r.tables[name]; ok {
		return t, nil
	}
	data, err := src.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownEnum, name, err)
	}
	u, err := unit.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("enum: %s: %w", name, err)
	}
	if !u.IsEnum() {
		return nil, fmt.Errorf("%w: %s", ErrNotEnum, name)
	}

	t := NewTable(name, u.Variants)
	for _, path := range src.Paths() {
		if !unit.IsUnitPath(path) {
			continue
		}
		data, err := src.LookupPath(path)
		if err != nil {
			// Denied or masked paths simply contribute nothing.
			continue
		}
		su, err := unit.Decode(data)
		if err != nil {
			r.log.Debugf("skipping undecodable unit %s: %s", path, err)
			continue
		}
		for _, sw := range su.Switches {
			if sw.Enum != name {
				continue
			}
			if err := t.AddDispatch(DispatchKey(su.Name, sw.ID), sw.Cases); err != nil {
				// A unit repeating one of its own switch IDs keeps the first.
				r.log.Warningf("%s: %s", path, err)
			}
		}
	}

	r.tables[name] = t
	r.log.Debugf("loaded enum %s: %d variants, %d dispatch tables", name, t.Len(), len(t.dispatch))
	return t, nil
}

// RestoreAll rolls every table back to its state before the first
// mutation made through the registry.
func (r *Registry) RestoreAll() {
	for _, name := range r.Names() {
		if m, ok := r.mutators[name]; ok {
			m.RestoreAll()
		}
	}
}
