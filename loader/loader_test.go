package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/graft/archive"
	"github.com/chazu/graft/bytecode"
	"github.com/chazu/graft/codesource"
	"github.com/chazu/graft/config"
	"github.com/chazu/graft/manifest"
	"github.com/chazu/graft/merge"
	"github.com/chazu/graft/patch"
	"github.com/chazu/graft/unit"
	"github.com/chazu/graft/vm"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func writeArchive(t *testing.T, path string, files map[string]string, units ...*unit.Unit) {
	t.Helper()
	s := codesource.NewMapStore()
	for p, data := range files {
		s.Put(p, []byte(data))
	}
	for _, u := range units {
		require.NoError(t, s.PutUnit(u))
	}
	require.NoError(t, archive.Write(path, s))
}

func hostUnits() []*unit.Unit {
	score := bytecode.NewStaticBuilder("score", []string{"int"}, "int")
	score.PushTemp(0)
	score.PushInt(10)
	score.Code().Emit(bytecode.OpMul)
	score.Code().Emit(bytecode.OpReturnTop)
	calc := &unit.Unit{Name: "game.Calc", Methods: []*unit.Method{score.Build()}}

	// main() = score(3) + " " + Mods.count() + " " + Runtime.version()
	main := bytecode.NewStaticBuilder("main", nil, "string")
	c := main.Code()
	main.PushInt(3)
	main.InvokeStatic("game.Calc", "score", "int")
	main.PushString(" ")
	c.Emit(bytecode.OpConcat)
	main.InvokeStatic(ModsUnit, "count")
	c.Emit(bytecode.OpConcat)
	main.PushString(" ")
	c.Emit(bytecode.OpConcat)
	main.InvokeStatic(RuntimeUnit, "version")
	c.Emit(bytecode.OpConcat)
	c.Emit(bytecode.OpReturnTop)

	return []*unit.Unit{calc, {Name: "game.Main", Methods: []*unit.Method{main.Build()}}}
}

// scorePatch returns a patch unit whose postfix computes result <op> k.
func scorePatch(name string, op bytecode.Opcode, k int64) *unit.Unit {
	post := bytecode.NewStaticBuilder(patch.PostfixName, []string{"int", "int"}, "int")
	post.PushTemp(0)
	post.PushInt(k)
	post.Code().Emit(op)
	post.Code().Emit(bytecode.OpReturnTop)
	return &unit.Unit{
		Name: name,
		Markers: []unit.Marker{{Kind: patch.MarkerPatch, Attrs: map[string]any{
			"target": "game.Calc", "method": "score",
		}}},
		Methods: []*unit.Method{post.Build()},
	}
}

// layout writes a host, two mods (b depends on a) and a load-order file
// listing b before a.
func layout(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	mods := filepath.Join(dir, "mods")
	require.NoError(t, os.Mkdir(mods, 0o755))

	writeArchive(t, filepath.Join(dir, "host.zip"), nil, hostUnits()...)
	writeArchive(t, filepath.Join(mods, "a.zip"),
		map[string]string{manifest.FileName: "id = \"a\"\nname = \"Alpha\"\nextension_runtime_version = \"1.2\"\n"},
		scorePatch("a.Score", bytecode.OpAdd, 1))
	writeArchive(t, filepath.Join(mods, "b.zip"),
		map[string]string{manifest.FileName: "id = \"b\"\ndependencies = [\"a\"]\nextension_runtime_version = \"9.0\"\n"},
		scorePatch("b.Score", bytecode.OpMul, 2))

	order := filepath.Join(dir, "order.yaml")
	require.NoError(t, os.WriteFile(order, []byte("default: main\nlists:\n  main: [b.zip, a.zip]\n"), 0o644))

	cfg := config.Default()
	cfg.Host = filepath.Join(dir, "host.zip")
	cfg.ModsDir = mods
	cfg.LoadOrder = order
	cfg.Entry = "game.Main.main"
	cfg.Output = filepath.Join(dir, "dist")
	return cfg
}

func ids(mods []*manifest.Descriptor) []string {
	out := make([]string, len(mods))
	for i, d := range mods {
		out[i] = d.ID
	}
	return out
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func TestRun(t *testing.T) {
	got, err := Run(context.Background(), layout(t), nil)
	require.NoError(t, err)
	// a is loaded before b despite the list order, so b's postfix sees a's
	// result: (30 + 1) * 2.
	assert.Equal(t, "62 2 "+EngineVersion, got)
}

func TestStages(t *testing.T) {
	c := New(layout(t))
	ctx := context.Background()

	require.NoError(t, c.Discover(ctx))
	assert.Equal(t, []string{"b", "a"}, ids(c.Mods))
	assert.Equal(t, "Alpha", c.Mods[1].Name)

	assert.ErrorIs(t, c.Patch(ctx), ErrStage)

	require.NoError(t, c.Resolve(ctx))
	assert.Equal(t, []string{"a", "b"}, ids(c.Mods))

	require.NoError(t, c.Patch(ctx))
	assert.Len(t, c.Patches.Applied, 2)
	assert.Empty(t, c.Patches.Skipped)

	require.NoError(t, c.Build(ctx))
	e, err := c.Source.Resolve(unit.PathFor("game.Calc"))
	require.NoError(t, err)
	assert.Equal(t, codesource.GeneratedOrigin(), e.Origin)

	e, err = c.Source.Resolve(unit.PathFor(ModsUnit))
	require.NoError(t, err)
	assert.Equal(t, codesource.RuntimeOrigin(), e.Origin)
}

func TestScanModsDirectory(t *testing.T) {
	cfg := layout(t)
	cfg.LoadOrder = ""
	c := New(cfg)
	require.NoError(t, c.Discover(context.Background()))
	assert.Equal(t, []string{"a", "b"}, ids(c.Mods))

	cfg.ModsDir = filepath.Join(t.TempDir(), "absent")
	c = New(cfg)
	require.NoError(t, c.Discover(context.Background()))
	assert.Empty(t, c.Mods)
}

func TestMissingDependencyHaltsBeforeRun(t *testing.T) {
	cfg := layout(t)
	writeArchive(t, filepath.Join(cfg.ModsDir, "c.zip"),
		map[string]string{manifest.FileName: "id = \"c\"\ndependencies = [\"zzz\"]\n"})
	require.NoError(t, os.WriteFile(cfg.LoadOrder, []byte("default: main\nlists:\n  main: [a.zip, c.zip]\n"), 0o644))

	_, err := Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, manifest.ErrMissingDependency)
}

func TestRunRequiresHostAndEntry(t *testing.T) {
	cfg := layout(t)
	cfg.Entry = ""
	_, err := Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrNoEntry)

	cfg.Host = ""
	_, err = Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, layout(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge(t *testing.T) {
	cfg := layout(t)
	out, err := Merge(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Mods, 2)

	base, err := archive.Open(filepath.Join(cfg.Output, merge.DefaultBaseName))
	require.NoError(t, err)
	m, err := merge.ReadManifest(base)
	require.NoError(t, err)
	assert.Equal(t, "game.Main.main", m.Main)
	assert.Equal(t, []string{"mod-a.zip", "mod-b.zip"}, m.Classpath)

	_, ok := base.Get(unit.PathFor("game.Calc"))
	assert.True(t, ok)
	modA, err := archive.Open(filepath.Join(cfg.Output, "mod-a.zip"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a/Score.unit"}, modA.Paths())
}

// ---------------------------------------------------------------------------
// Runtime support
// ---------------------------------------------------------------------------

func TestRuntimeStore(t *testing.T) {
	c := New(nil)
	c.Mods = []*manifest.Descriptor{{ID: "core"}, {ID: "tweaks"}}
	rt, err := RuntimeStore(c)
	require.NoError(t, err)

	src, err := codesource.NewBuilder().Runtime(rt).Build()
	require.NoError(t, err)
	v := vm.New(src, nil)

	tests := []struct {
		name   string
		params []string
		args   []vm.Value
		want   vm.Value
	}{
		{"count", nil, nil, int64(2)},
		{"loaded", []string{"string"}, []vm.Value{"tweaks"}, true},
		{"loaded", []string{"string"}, []vm.Value{"nope"}, false},
		{"at", []string{"int"}, []vm.Value{int64(0)}, "core"},
		{"at", []string{"int"}, []vm.Value{int64(1)}, "tweaks"},
		{"at", []string{"int"}, []vm.Value{int64(2)}, nil},
	}
	for _, tc := range tests {
		got, err := v.Invoke(ModsUnit, tc.name, tc.params, tc.args...)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	version, err := v.Invoke(RuntimeUnit, "version", nil)
	require.NoError(t, err)
	assert.Equal(t, EngineVersion, version)
}

func TestRuntimeStoreWithoutMods(t *testing.T) {
	rt, err := RuntimeStore(New(nil))
	require.NoError(t, err)
	src, err := codesource.NewBuilder().Runtime(rt).Build()
	require.NoError(t, err)
	v := vm.New(src, nil)

	got, err := v.Invoke(ModsUnit, "loaded", []string{"string"}, "x")
	require.NoError(t, err)
	assert.Equal(t, false, got)
}
