package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/graft/codesource"
)

func TestParse(t *testing.T) {
	data := `
id = "better-combat"
name = "Better Combat"
author = "someone"
extension_runtime_version = "1.2.0"
description = "Rebalances combat."
dependencies = [
	"core",
	{ id = "ui-lib", optional = true },
]
`
	d, err := Parse([]byte(data), "mods/better-combat-2.zip")
	require.NoError(t, err)

	assert.Equal(t, "better-combat", d.ID)
	assert.Equal(t, "Better Combat", d.Name)
	assert.Equal(t, "someone", d.Author)
	assert.Equal(t, "1.2.0", d.RuntimeVersion)
	assert.Equal(t, "Rebalances combat.", d.Description)
	assert.Equal(t, []Dependency{{ID: "core"}, {ID: "ui-lib", Optional: true}}, d.Dependencies)
	assert.Equal(t, "mods/better-combat-2.zip", d.Archive)
}

func TestParseArrayOfTables(t *testing.T) {
	data := `
id = "x"

[[dependencies]]
id = "a"

[[dependencies]]
id = "b"
optional = true
`
	d, err := Parse([]byte(data), "x.zip")
	require.NoError(t, err)
	assert.Equal(t, []Dependency{{ID: "a"}, {ID: "b", Optional: true}}, d.Dependencies)
}

func TestParseDefaults(t *testing.T) {
	d, err := Parse([]byte(`author = "anon"`), "/opt/game/mods/shiny.zip")
	require.NoError(t, err)
	assert.Equal(t, "shiny", d.ID)
	assert.Equal(t, "shiny", d.Name)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not toml", `id = `},
		{"unknown key", `colour = "red"`},
		{"wrong type", `name = 3`},
		{"bad id", `id = "has space"`},
		{"dependency without id", `dependencies = [{ optional = true }]`},
		{"dependency wrong type", `dependencies = [3]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data), "bad.zip")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadMetadata)
			assert.Contains(t, err.Error(), "bad.zip")
		})
	}
}

func TestFromStore(t *testing.T) {
	s := codesource.NewMapStore()
	s.Put("game/Thing.unit", []byte{1})
	d, err := FromStore("mods/plain.zip", s)
	require.NoError(t, err)
	assert.Equal(t, "plain", d.ID)
	assert.Same(t, s, d.Store)

	s.Put(FileName, []byte(`id = "fancy"`))
	d, err = FromStore("mods/plain.zip", s)
	require.NoError(t, err)
	assert.Equal(t, "fancy", d.ID)
	assert.Equal(t, "plain", d.Name)
}

func TestCheckRuntime(t *testing.T) {
	tests := []struct {
		declared string
		engine   string
		wantErr  error
	}{
		{"", "1.4.0", nil},
		{"1.4.0", "1.4.0", nil},
		{"1.2", "1.4.0", nil},
		{"v1.3.9", "1.4.0", nil},
		{"1.5.0", "1.4.0", ErrRuntimeTooNew},
		{"2", "1.4.0", ErrRuntimeTooNew},
		{"one", "1.4.0", ErrBadVersion},
		{"1.0.0", "dev", ErrBadVersion},
	}
	for _, tc := range tests {
		t.Run(tc.declared+"@"+tc.engine, func(t *testing.T) {
			err := CheckRuntime(&Descriptor{ID: "m", RuntimeVersion: tc.declared}, tc.engine)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
