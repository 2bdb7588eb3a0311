// Package unit defines the compiled-unit format shared by the host, mods,
// the extension runtime and generated patches.
//
// A unit is a class-like record: a fully-qualified name, fields, methods
// with bytecode and literal pools, structural markers and, for enum units,
// the ordered list of variant names. Units travel as canonical CBOR blobs
// addressed by path ("game.Player" lives at "game/Player.unit").
package unit

import "slices"

// Kind distinguishes ordinary classes from closed enumerations.
type Kind uint8

const (
	KindClass Kind = 0
	KindEnum  Kind = 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Well-known method names and type names.
const (
	Constructor = "<init>"
	StaticInit  = "<clinit>"
	Void        = "void"
	Any         = "any"
)

// Unit is a single compiled unit.
type Unit struct {
	Name     string      `cbor:"1,keyasint"`
	Super    string      `cbor:"2,keyasint,omitempty"`
	Kind     Kind        `cbor:"3,keyasint"`
	Fields   []string    `cbor:"4,keyasint,omitempty"`
	Statics  []string    `cbor:"5,keyasint,omitempty"`
	Variants []string    `cbor:"6,keyasint,omitempty"`
	Methods  []*Method   `cbor:"7,keyasint,omitempty"`
	Markers  []Marker    `cbor:"8,keyasint,omitempty"`
	Switches []SwitchMap `cbor:"9,keyasint,omitempty"`
}

// Method is a compiled method body plus its signature.
//
// Temporaries 0..len(Params)-1 hold the arguments; Locals extra slots
// follow. The receiver of an instance method is not a temporary.
type Method struct {
	Name     string    `cbor:"1,keyasint"`
	Params   []string  `cbor:"2,keyasint,omitempty"`
	Returns  string    `cbor:"3,keyasint"`
	Static   bool      `cbor:"4,keyasint,omitempty"`
	Locals   int       `cbor:"5,keyasint,omitempty"`
	Literals []Literal `cbor:"6,keyasint,omitempty"`
	Code     []byte    `cbor:"7,keyasint,omitempty"`
	Markers  []Marker  `cbor:"8,keyasint,omitempty"`
}

// Marker is a structural annotation carried by a unit or a method.
// Attribute values are plain data (strings, integers, booleans, lists).
type Marker struct {
	Kind  string         `cbor:"1,keyasint"`
	Attrs map[string]any `cbor:"2,keyasint,omitempty"`
}

// SwitchMap declares an ordinal-indexed dispatch table over an enum.
// Cases maps variant names to case indexes; unlisted variants map to 0.
// ID only has to be unique within the declaring unit.
type SwitchMap struct {
	ID    string         `cbor:"1,keyasint"`
	Enum  string         `cbor:"2,keyasint"`
	Cases map[string]int `cbor:"3,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Unit accessors
// ---------------------------------------------------------------------------

// Path returns the archive path of the unit.
func (u *Unit) Path() string {
	return PathFor(u.Name)
}

// IsEnum reports whether the unit is a closed enumeration.
func (u *Unit) IsEnum() bool {
	return u.Kind == KindEnum
}

// Method returns the method with the exact name and parameter types.
func (u *Unit) Method(name string, params []string) *Method {
	for _, m := range u.Methods {
		if m.Name == name && slices.Equal(m.Params, params) {
			return m
		}
	}
	return nil
}

// MethodsNamed returns every overload of name in declaration order.
func (u *Unit) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range u.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Marker returns the first unit-level marker of the given kind.
func (u *Unit) Marker(kind string) (Marker, bool) {
	return findMarker(u.Markers, kind)
}

// MarkersOf returns every unit-level marker of the given kind.
func (u *Unit) MarkersOf(kind string) []Marker {
	var out []Marker
	for _, mk := range u.Markers {
		if mk.Kind == kind {
			out = append(out, mk)
		}
	}
	return out
}

// FieldIndex returns the slot of a declared instance field, or -1.
func (u *Unit) FieldIndex(name string) int {
	return slices.Index(u.Fields, name)
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := &Unit{
		Name:     u.Name,
		Super:    u.Super,
		Kind:     u.Kind,
		Fields:   slices.Clone(u.Fields),
		Statics:  slices.Clone(u.Statics),
		Variants: slices.Clone(u.Variants),
		Markers:  cloneMarkers(u.Markers),
	}
	for _, m := range u.Methods {
		c.Methods = append(c.Methods, m.Clone())
	}
	for _, sw := range u.Switches {
		cases := make(map[string]int, len(sw.Cases))
		for k, v := range sw.Cases {
			cases[k] = v
		}
		c.Switches = append(c.Switches, SwitchMap{ID: sw.ID, Enum: sw.Enum, Cases: cases})
	}
	return c
}

// ---------------------------------------------------------------------------
// Method accessors
// ---------------------------------------------------------------------------

// Marker returns the first method-level marker of the given kind.
func (m *Method) Marker(kind string) (Marker, bool) {
	return findMarker(m.Markers, kind)
}

// IsVoid reports whether the method returns nothing.
func (m *Method) IsVoid() bool {
	return m.Returns == "" || m.Returns == Void
}

// IsConstructor reports whether the method is an instance constructor.
func (m *Method) IsConstructor() bool {
	return m.Name == Constructor
}

// Descriptor renders the signature as name(p1,p2)ret.
func (m *Method) Descriptor() string {
	return Descriptor(m.Name, m.Params, m.Returns)
}

// AddLiteral appends a literal and returns its index.
func (m *Method) AddLiteral(l Literal) int {
	m.Literals = append(m.Literals, l)
	return len(m.Literals) - 1
}

// Clone returns a deep copy of the method.
func (m *Method) Clone() *Method {
	c := &Method{
		Name:    m.Name,
		Params:  slices.Clone(m.Params),
		Returns: m.Returns,
		Static:  m.Static,
		Locals:  m.Locals,
		Code:    slices.Clone(m.Code),
		Markers: cloneMarkers(m.Markers),
	}
	for _, l := range m.Literals {
		l.Params = slices.Clone(l.Params)
		c.Literals = append(c.Literals, l)
	}
	return c
}

// Descriptor renders a signature as name(p1,p2)ret.
func Descriptor(name string, params []string, returns string) string {
	s := name + "("
	for i, p := range params {
		if i > 0 {
			s += ","
		}
		s += p
	}
	s += ")"
	if returns == "" {
		returns = Void
	}
	return s + returns
}

func findMarker(markers []Marker, kind string) (Marker, bool) {
	for _, mk := range markers {
		if mk.Kind == kind {
			return mk, true
		}
	}
	return Marker{}, false
}

func cloneMarkers(in []Marker) []Marker {
	if in == nil {
		return nil
	}
	out := make([]Marker, len(in))
	for i, mk := range in {
		attrs := make(map[string]any, len(mk.Attrs))
		for k, v := range mk.Attrs {
			attrs[k] = v
		}
		out[i] = Marker{Kind: mk.Kind, Attrs: attrs}
	}
	return out
}
