package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func player() *Unit {
	return &Unit{
		Name:   "game.Player",
		Fields: []string{"name", "hp"},
		Methods: []*Method{
			{Name: Constructor, Params: []string{"string"}, Returns: Void, Code: []byte{0x71}},
			{Name: "greet", Returns: "string", Literals: []Literal{StringLit("hi")}, Code: []byte{0x16, 0, 0, 0x70}},
			{Name: "hit", Params: []string{"int"}, Returns: Void, Code: []byte{0x71}},
			{Name: "hit", Params: []string{"int", "string"}, Returns: Void, Code: []byte{0x71}},
		},
		Markers: []Marker{{Kind: "Patch", Attrs: map[string]any{"target": "game.Player", "mods": []any{"a"}}}},
		Switches: []SwitchMap{{ID: "sw", Enum: "game.Season", Cases: map[string]int{"SPRING": 1}}},
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		path string
		name string
		ok   bool
	}{
		{"game/Player.unit", "game.Player", true},
		{"Top.unit", "Top", true},
		{".unit", "", false},
		{"game/readme.txt", "", false},
		{"mod.toml", "", false},
	}
	for _, tc := range tests {
		name, ok := NameFor(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.name, name, tc.path)
		assert.Equal(t, tc.ok, IsUnitPath(tc.path), tc.path)
		if tc.ok {
			assert.Equal(t, tc.path, PathFor(tc.name))
		}
	}
	assert.Equal(t, "game/Player.unit", player().Path())
}

func TestEncodeIsCanonical(t *testing.T) {
	a, err := Encode(player())
	require.NoError(t, err)

	// Rebuild the maps in a different insertion order.
	u := player()
	u.Markers[0].Attrs = map[string]any{"mods": []any{"a"}, "target": "game.Player"}
	b, err := Encode(u)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	back, err := Decode(a)
	require.NoError(t, err)
	assert.Equal(t, player(), back)
}

func TestDecodeErrors(t *testing.T) {
	wrongMagic, err := encMode.Marshal(envelope{Magic: "NOPE", Version: FormatVersion, Unit: player()})
	require.NoError(t, err)
	wrongVersion, err := encMode.Marshal(envelope{Magic: Magic, Version: 99, Unit: player()})
	require.NoError(t, err)
	empty, err := encMode.Marshal(envelope{Magic: Magic, Version: FormatVersion})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"magic", wrongMagic, ErrBadMagic},
		{"version", wrongVersion, ErrBadVersion},
		{"empty", empty, ErrNoUnit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err = Decode([]byte("plain text"))
	assert.Error(t, err)
	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrNoUnit)
}

func TestCloneIsDeep(t *testing.T) {
	orig := player()
	c := orig.Clone()
	require.Equal(t, orig, c)

	c.Fields[0] = "x"
	c.Methods[1].Code[0] = 0x00
	c.Methods[1].Literals[0] = IntLit(1)
	c.Methods[2].Params[0] = "string"
	c.Markers[0].Attrs["target"] = "other"
	c.Switches[0].Cases["SPRING"] = 7

	assert.Equal(t, player(), orig)
}

func TestMethodLookup(t *testing.T) {
	u := player()

	m := u.Method("hit", []string{"int", "string"})
	require.NotNil(t, m)
	assert.Equal(t, "hit(int,string)void", m.Descriptor())
	assert.Nil(t, u.Method("hit", []string{"string"}))
	assert.Len(t, u.MethodsNamed("hit"), 2)

	assert.True(t, u.Methods[0].IsConstructor())
	assert.True(t, u.Methods[0].IsVoid())
	assert.False(t, u.Methods[1].IsVoid())
	assert.Equal(t, "greet()string", u.Methods[1].Descriptor())
	assert.Equal(t, "f()void", Descriptor("f", nil, ""))

	assert.Equal(t, 1, u.FieldIndex("hp"))
	assert.Equal(t, -1, u.FieldIndex("mana"))

	mk, ok := u.Marker("Patch")
	require.True(t, ok)
	assert.Equal(t, "game.Player", mk.Attrs["target"])
	assert.Empty(t, u.MarkersOf("Enum"))
}

func TestLiteralString(t *testing.T) {
	tests := []struct {
		lit  Literal
		want string
	}{
		{IntLit(-4), "-4"},
		{StringLit("a\"b"), `"a\"b"`},
		{ClassRef("game.Player"), "class game.Player"},
		{MethodRef("game.Player", "hit", "int", "string"), "method game.Player.hit(int,string)"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.lit.String())
	}
}
