package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mod(id string, deps ...string) *Descriptor {
	d := &Descriptor{ID: id, Name: id, Archive: id + ".zip"}
	for _, dep := range deps {
		d.Dependencies = append(d.Dependencies, Dependency{ID: dep})
	}
	return d
}

func optional(d *Descriptor, id string) *Descriptor {
	d.Dependencies = append(d.Dependencies, Dependency{ID: id, Optional: true})
	return d
}

func ids(mods []*Descriptor) []string {
	out := make([]string, len(mods))
	for i, d := range mods {
		out[i] = d.ID
	}
	return out
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name string
		mods []*Descriptor
		want []string
	}{
		{
			name: "core before addon",
			mods: []*Descriptor{mod("addon", "core"), mod("core")},
			want: []string{"core", "addon"},
		},
		{
			name: "already ordered",
			mods: []*Descriptor{mod("core"), mod("addon", "core")},
			want: []string{"core", "addon"},
		},
		{
			name: "independent mods keep input order",
			mods: []*Descriptor{mod("c"), mod("a"), mod("b")},
			want: []string{"c", "a", "b"},
		},
		{
			name: "diamond",
			mods: []*Descriptor{mod("top", "left", "right"), mod("left", "base"), mod("right", "base"), mod("base")},
			want: []string{"base", "left", "right", "top"},
		},
		{
			name: "chain declared backwards",
			mods: []*Descriptor{mod("c", "b"), mod("b", "a"), mod("a")},
			want: []string{"a", "b", "c"},
		},
		{
			name: "duplicate dependency entries",
			mods: []*Descriptor{mod("addon", "core", "core"), mod("core")},
			want: []string{"core", "addon"},
		},
		{
			name: "absent optional dependency is ignored",
			mods: []*Descriptor{optional(mod("addon"), "missing")},
			want: []string{"addon"},
		},
		{
			name: "present optional dependency orders",
			mods: []*Descriptor{optional(mod("addon"), "lib"), mod("lib")},
			want: []string{"lib", "addon"},
		},
		{
			name: "empty",
			mods: nil,
			want: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.mods)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestResolveRespectsDependencies(t *testing.T) {
	mods := []*Descriptor{
		mod("ui", "core", "gfx"),
		mod("net"),
		mod("gfx", "core"),
		mod("save", "net", "core"),
		mod("core"),
		mod("extra", "ui", "save"),
	}
	got, err := Resolve(mods)
	require.NoError(t, err)
	require.Len(t, got, len(mods))

	pos := make(map[string]int)
	for i, d := range got {
		pos[d.ID] = i
	}
	for _, d := range mods {
		for _, dep := range d.Dependencies {
			assert.Less(t, pos[dep.ID], pos[d.ID], "%s must follow %s", d.ID, dep.ID)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	build := func() []*Descriptor {
		return []*Descriptor{mod("x"), mod("y", "x"), mod("z"), mod("w", "z"), mod("v")}
	}
	first, err := Resolve(build())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Resolve(build())
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(again))
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestResolveMissingDependency(t *testing.T) {
	_, err := Resolve([]*Descriptor{mod("addon", "core")})
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "addon")
	assert.Contains(t, err.Error(), "core")
}

func TestResolveDuplicate(t *testing.T) {
	a := mod("same")
	a.Archive = "first.zip"
	b := mod("same")
	b.Archive = "second.zip"

	_, err := Resolve([]*Descriptor{a, b})
	require.ErrorIs(t, err, ErrDuplicateMod)
	assert.Contains(t, err.Error(), "first.zip")
	assert.Contains(t, err.Error(), "second.zip")
}

func TestResolveCycle(t *testing.T) {
	tests := []struct {
		name      string
		mods      []*Descriptor
		remaining []string
		cycle     []string
	}{
		{
			name:      "two mods",
			mods:      []*Descriptor{mod("A", "B"), mod("B", "A")},
			remaining: []string{"A", "B"},
			cycle:     []string{"A", "B", "A"},
		},
		{
			name:      "self dependency",
			mods:      []*Descriptor{mod("ok"), mod("loop", "loop")},
			remaining: []string{"loop"},
			cycle:     []string{"loop", "loop"},
		},
		{
			name:      "three with an outside dependent",
			mods:      []*Descriptor{mod("tail", "a"), mod("a", "b"), mod("b", "c"), mod("c", "a"), mod("free")},
			remaining: []string{"a", "b", "c"},
			cycle:     []string{"a", "b", "c", "a"},
		},
		{
			name:      "optional dependencies participate",
			mods:      []*Descriptor{optional(mod("A"), "B"), mod("B", "A")},
			remaining: []string{"A", "B"},
			cycle:     []string{"A", "B", "A"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order, err := Resolve(tc.mods)
			assert.Nil(t, order)
			require.ErrorIs(t, err, ErrDependencyCycle)

			var ce *CycleError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.remaining, ce.Remaining)
			assert.Equal(t, tc.cycle, ce.Cycle)
		})
	}
}
