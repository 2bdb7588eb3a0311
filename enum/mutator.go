package enum

import (
	"fmt"
	"maps"
	"slices"
)

// snapshot captures a table immediately before a mutation. Variant
// pointers are kept so undo restores identity; ordinals are kept because a
// delete renumbers the variants that follow it.
type snapshot struct {
	variants []*Variant
	ordinals []int
	bindings map[string]*Variant
	dispatch map[string][]int
	version  uint64
}

// Mutator edits one table and keeps an undo stack of snapshots.
// It is not safe for concurrent use.
type Mutator struct {
	table *Table
	undo  []snapshot
}

// NewMutator wraps a table after verifying its shape.
func NewMutator(t *Table) (*Mutator, error) {
	if t == nil {
		return nil, ErrUnknownEnum
	}
	if err := t.Check(); err != nil {
		return nil, err
	}
	return &Mutator{table: t}, nil
}

// Table returns the table being mutated.
func (m *Mutator) Table() *Table {
	return m.table
}

// Depth returns the number of snapshots on the undo stack.
func (m *Mutator) Depth() int {
	return len(m.undo)
}

// Snapshot pushes a deep copy of the current table state.
func (m *Mutator) Snapshot() {
	t := m.table
	s := snapshot{
		variants: slices.Clone(t.variants),
		ordinals: make([]int, len(t.variants)),
		bindings: maps.Clone(t.bindings),
		dispatch: make(map[string][]int, len(t.dispatch)),
		version:  t.version,
	}
	for i, v := range t.variants {
		s.ordinals[i] = v.Ordinal
	}
	for id, d := range t.dispatch {
		s.dispatch[id] = slices.Clone(d)
	}
	m.undo = append(m.undo, s)
}

// Upsert replaces the same-named variant in place, keeping its ordinal and
// rebinding its constant, or appends v with the next ordinal, binds it and
// grows every dispatch table by one default slot. It returns the ordinal v
// now occupies.
func (m *Mutator) Upsert(v *Variant) (int, error) {
	if v == nil || v.Name == "" {
		return 0, fmt.Errorf("enum: %s: upsert of unnamed variant", m.table.name)
	}
	if err := m.table.Check(); err != nil {
		return 0, err
	}
	m.Snapshot()

	t := m.table
	if old, ok := t.Lookup(v.Name); ok {
		v.Ordinal = old.Ordinal
		t.variants[old.Ordinal] = v
		if _, bound := t.bindings[v.Name]; bound {
			t.bindings[v.Name] = v
		}
		t.version++
		return v.Ordinal, nil
	}

	v.Ordinal = len(t.variants)
	t.variants = append(t.variants, v)
	t.bindings[v.Name] = v
	for id, d := range t.dispatch {
		t.dispatch[id] = append(d, 0)
	}
	t.version++
	return v.Ordinal, nil
}

// Delete removes v (matched by identity, then by name), renumbers the
// variants after it, nulls its constant binding and drops its entry from
// every dispatch table.
func (m *Mutator) Delete(v *Variant) error {
	t := m.table
	idx := -1
	if v != nil {
		idx = slices.Index(t.variants, v)
		if idx < 0 {
			if found, ok := t.Lookup(v.Name); ok {
				idx = found.Ordinal
			}
		}
	}
	if idx < 0 {
		name := "<nil>"
		if v != nil {
			name = v.Name
		}
		return fmt.Errorf("%w: %s.%s", ErrUnknownVariant, t.name, name)
	}
	if err := t.Check(); err != nil {
		return err
	}
	m.Snapshot()

	removed := t.variants[idx]
	t.variants = slices.Delete(t.variants, idx, idx+1)
	for i := idx; i < len(t.variants); i++ {
		t.variants[i].Ordinal = i
	}
	if _, bound := t.bindings[removed.Name]; bound {
		t.bindings[removed.Name] = nil
	}
	for id, d := range t.dispatch {
		t.dispatch[id] = slices.Delete(d, idx, idx+1)
	}
	t.version++
	return nil
}

// Undo restores the most recent snapshot. It reports false when the stack
// is empty.
func (m *Mutator) Undo() bool {
	if len(m.undo) == 0 {
		return false
	}
	s := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]

	t := m.table
	t.variants = s.variants
	for i, v := range t.variants {
		v.Ordinal = s.ordinals[i]
	}
	t.bindings = s.bindings
	t.dispatch = s.dispatch
	t.version = s.version
	return true
}

// RestoreAll undoes every recorded mutation, returning the table to the
// state it had before the first one.
func (m *Mutator) RestoreAll() {
	for m.Undo() {
	}
}
