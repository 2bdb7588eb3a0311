package codesource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func store(entries map[string]string) *MapStore {
	s := NewMapStore()
	for p, v := range entries {
		s.Put(p, []byte(v))
	}
	return s
}

func lookup(t *testing.T, s *Source, path string) (string, Origin) {
	t.Helper()
	e, err := s.Resolve(path)
	require.NoError(t, err, path)
	return string(e.Data), e.Origin
}

func TestPriorityOrder(t *testing.T) {
	host := store(map[string]string{
		"game/Player.unit": "host-player",
		"game/World.unit":  "host-world",
		"game/Only.unit":   "host-only",
		"assets/logo.png":  "host-logo",
	})
	modA := store(map[string]string{
		"game/Player.unit": "a-player",
		"game/World.unit":  "a-world",
		"assets/logo.png":  "a-logo",
	})
	modB := store(map[string]string{
		"game/Player.unit": "b-player",
		"b/Extra.unit":     "b-extra",
	})
	runtime := store(map[string]string{"game/World.unit": "rt-world"})
	generated := store(map[string]string{"game/Player.unit": "patched-player"})

	src, err := NewBuilder().
		Host(host).
		Mod("a", modA).
		Mod("b", modB).
		Runtime(runtime).
		Generated(generated).
		Build()
	require.NoError(t, err)

	tests := []struct {
		path   string
		want   string
		origin Origin
	}{
		{"game/Player.unit", "patched-player", GeneratedOrigin()},
		{"game/World.unit", "rt-world", RuntimeOrigin()},
		{"assets/logo.png", "a-logo", ModOrigin("a")},
		{"b/Extra.unit", "b-extra", ModOrigin("b")},
		{"game/Only.unit", "host-only", HostOrigin()},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			data, origin := lookup(t, src, tc.path)
			assert.Equal(t, tc.want, data)
			assert.Equal(t, tc.origin, origin)
		})
	}

	_, err = src.Resolve("game/Missing.unit")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModOverridesHost(t *testing.T) {
	src, err := NewBuilder().
		Host(store(map[string]string{"game/Player.unit": "host"})).
		Mod("m", store(map[string]string{"game/Player.unit": "mod"})).
		Build()
	require.NoError(t, err)

	data, err := src.Lookup("game.Player")
	require.NoError(t, err)
	assert.Equal(t, "mod", string(data))
}

func TestFirstModWins(t *testing.T) {
	src, err := NewBuilder().
		Mod("first", store(map[string]string{"x/Y.unit": "first"})).
		Mod("second", store(map[string]string{"x/Y.unit": "second"})).
		Build()
	require.NoError(t, err)

	data, origin := lookup(t, src, "x/Y.unit")
	assert.Equal(t, "first", data)
	assert.Equal(t, "mod:first", origin.String())
}

func TestDenylistedNeverResolves(t *testing.T) {
	forged := map[string]string{
		"sys/Security.unit":  "forged",
		"sys/Integrity.unit": "forged",
		"evil/Hook.unit":     "forged",
		"evil/sub/X.unit":    "forged",
		"secrets/key.pem":    "forged",
	}
	src, err := NewBuilder().
		Deny("evil.*", "secrets/key.pem").
		Runtime(store(forged)).
		Mod("m", store(forged)).
		Generated(store(forged)).
		Host(store(forged)).
		Build()
	require.NoError(t, err)

	for path := range forged {
		_, err := src.Resolve(path)
		assert.ErrorIs(t, err, ErrDenied, path)
	}
	_, err = src.Lookup("sys.Security")
	assert.ErrorIs(t, err, ErrDenied)

	assert.Empty(t, src.Paths())
	assert.True(t, src.Denied("graft.Source"))
	assert.True(t, src.Denied("evil.Anything"))
	assert.False(t, src.Denied("game.Player"))
}

func TestPathsAndLayers(t *testing.T) {
	src, err := NewBuilder().
		Host(store(map[string]string{"b.unit": "", "a.unit": ""})).
		Mod("m", store(map[string]string{"c.unit": "", "a.unit": ""})).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"a.unit", "b.unit", "c.unit"}, src.Paths())

	layers := src.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, ModOrigin("m"), layers[0].Origin)
	assert.Equal(t, HostOrigin(), layers[1].Origin)
}

func TestCachedLookupsAreIdempotent(t *testing.T) {
	src, err := NewBuilder().
		CacheSize(2).
		Host(store(map[string]string{"a.unit": "a.unit", "b.unit": "b.unit", "c.unit": "c.unit"})).
		Build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, p := range []string{"a.unit", "b.unit", "c.unit", "a.unit"} {
				data, err := src.LookupPath(p)
				assert.NoError(t, err)
				assert.Equal(t, p, string(data))
			}
		}()
	}
	wg.Wait()
}

func TestUncached(t *testing.T) {
	src, err := NewBuilder().CacheSize(0).Host(store(map[string]string{"a.unit": "A"})).Build()
	require.NoError(t, err)
	data, err := src.LookupPath("a.unit")
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))
}
