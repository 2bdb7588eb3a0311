// Package enum models closed enumerations as tables the engine owns
// directly: ordered variant slots, named-constant bindings and the
// ordinal-indexed dispatch tables of code that switches over the enum.
// Mutator adds and removes variants with a snapshot/undo stack.
package enum

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrNotEnum        = errors.New("enum: unit is not an enumeration")
	ErrUnknownEnum    = errors.New("enum: unknown enumeration")
	ErrUnknownVariant = errors.New("enum: variant not in table")
	ErrDispatchShape  = errors.New("enum: dispatch table does not match variant table")
	ErrDuplicate      = errors.New("enum: duplicate dispatch table")
	ErrNoDispatch     = errors.New("enum: unknown dispatch table")
	ErrOrdinals       = errors.New("enum: variant ordinals are not contiguous")
)

// Variant is one value of an enumeration. Ordinal is kept equal to the
// variant's slot in its table.
type Variant struct {
	Name    string
	Ordinal int
}

// String returns Name.
func (v *Variant) String() string {
	return v.Name
}

// Table is the backing store of one enumeration.
type Table struct {
	name     string
	variants []*Variant
	bindings map[string]*Variant // nil value: binding nulled by a delete
	dispatch map[string][]int    // switch ID -> case index per ordinal
	version  uint64
}

// NewTable builds a table whose variants take ordinals in the given order.
func NewTable(name string, variants []string) *Table {
	t := &Table{
		name:     name,
		bindings: make(map[string]*Variant, len(variants)),
		dispatch: make(map[string][]int),
	}
	for i, n := range variants {
		v := &Variant{Name: n, Ordinal: i}
		t.variants = append(t.variants, v)
		t.bindings[n] = v
	}
	return t
}

// Name returns the enumeration's fully-qualified name.
func (t *Table) Name() string { return t.name }

// Len returns the number of variants.
func (t *Table) Len() int { return len(t.variants) }

// Version increases with every mutation and is restored by undo.
func (t *Table) Version() uint64 { return t.version }

// Variants returns the variants in ordinal order.
func (t *Table) Variants() []*Variant {
	return slices.Clone(t.variants)
}

// Variant returns the variant at ordinal.
func (t *Table) Variant(ordinal int) (*Variant, bool) {
	if ordinal < 0 || ordinal >= len(t.variants) {
		return nil, false
	}
	return t.variants[ordinal], true
}

// Lookup returns the variant occupying the slot with the given name.
func (t *Table) Lookup(name string) (*Variant, bool) {
	for _, v := range t.variants {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Binding returns the named-constant binding. The variant is nil when the
// binding was nulled; ok is false when no such constant was ever bound.
func (t *Table) Binding(name string) (v *Variant, ok bool) {
	v, ok = t.bindings[name]
	return v, ok
}

// DispatchKey names the dispatch table of switch map id declared by unit
// owner. Switch IDs only need to be unique within their unit.
func DispatchKey(owner, id string) string {
	return owner + "$" + id
}

// AddDispatch registers a dispatch table built from variant-name cases.
// Variants without a case map to 0.
func (t *Table) AddDispatch(id string, cases map[string]int) error {
	if _, ok := t.dispatch[id]; ok {
		return fmt.Errorf("%w: %s.%s", ErrDuplicate, t.name, id)
	}
	table := make([]int, len(t.variants))
	for i, v := range t.variants {
		table[i] = cases[v.Name]
	}
	t.dispatch[id] = table
	return nil
}

// SetDispatch registers an ordinal-indexed dispatch table as is.
func (t *Table) SetDispatch(id string, cases []int) error {
	if len(cases) != len(t.variants) {
		return fmt.Errorf("%w: %s.%s has %d entries for %d variants",
			ErrDispatchShape, t.name, id, len(cases), len(t.variants))
	}
	t.dispatch[id] = slices.Clone(cases)
	return nil
}

// HasDispatch reports whether a dispatch table is registered.
func (t *Table) HasDispatch(id string) bool {
	_, ok := t.dispatch[id]
	return ok
}

// Dispatch returns a copy of a dispatch table.
func (t *Table) Dispatch(id string) ([]int, bool) {
	d, ok := t.dispatch[id]
	return slices.Clone(d), ok
}

// DispatchIDs returns the registered dispatch table IDs, sorted.
func (t *Table) DispatchIDs() []string {
	ids := slices.Collect(maps.Keys(t.dispatch))
	sort.Strings(ids)
	return ids
}

// Case maps an ordinal through a dispatch table.
func (t *Table) Case(id string, ordinal int) (int, error) {
	d, ok := t.dispatch[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrNoDispatch, t.name, id)
	}
	if ordinal < 0 || ordinal >= len(d) {
		return 0, fmt.Errorf("%w: %s.%s ordinal %d", ErrDispatchShape, t.name, id, ordinal)
	}
	return d[ordinal], nil
}

// Check verifies the table invariants: contiguous ordinals and dispatch
// tables sized to the variant count.
func (t *Table) Check() error {
	for i, v := range t.variants {
		if v == nil || v.Ordinal != i {
			return fmt.Errorf("%w: %s slot %d", ErrOrdinals, t.name, i)
		}
	}
	for id, d := range t.dispatch {
		if len(d) != len(t.variants) {
			return fmt.Errorf("%w: %s.%s has %d entries for %d variants",
				ErrDispatchShape, t.name, id, len(d), len(t.variants))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Canonical encoding
// ---------------------------------------------------------------------------

type encodedVariant struct {
	Name    string `cbor:"1,keyasint"`
	Ordinal int    `cbor:"2,keyasint"`
}

type encodedTable struct {
	Name     string            `cbor:"1,keyasint"`
	Version  uint64            `cbor:"2,keyasint"`
	Variants []encodedVariant  `cbor:"3,keyasint"`
	Bindings map[string]string `cbor:"4,keyasint"`
	Dispatch map[string][]int  `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("enum: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Encode serializes the full table state canonically; two tables in the
// same state encode to identical bytes.
func (t *Table) Encode() ([]byte, error) {
	et := encodedTable{
		Name:     t.name,
		Version:  t.version,
		Bindings: make(map[string]string, len(t.bindings)),
		Dispatch: make(map[string][]int, len(t.dispatch)),
	}
	for _, v := range t.variants {
		et.Variants = append(et.Variants, encodedVariant{Name: v.Name, Ordinal: v.Ordinal})
	}
	for name, v := range t.bindings {
		if v == nil {
			et.Bindings[name] = ""
		} else {
			et.Bindings[name] = v.Name
		}
	}
	for id, d := range t.dispatch {
		et.Dispatch[id] = d
	}
	return encMode.Marshal(et)
}
