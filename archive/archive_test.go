package archive

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/graft/codesource"
)

func sample() *codesource.MapStore {
	s := codesource.NewMapStore()
	s.Put("mod.toml", []byte("id = \"m\"\n"))
	s.Put("game/Player.unit", bytes.Repeat([]byte{0xA1, 0x01}, 64))
	s.Put("assets/readme.txt", []byte("hello"))
	return s
}

func TestRoundTripOnDisk(t *testing.T) {
	name := filepath.Join(t.TempDir(), "m.zip")
	require.NoError(t, Write(name, sample()))

	got, err := Open(name)
	require.NoError(t, err)
	assert.Equal(t, sample().Paths(), got.Paths())
	for _, p := range got.Paths() {
		want, _ := sample().Get(p)
		data, ok := got.Get(p)
		require.True(t, ok)
		assert.Equal(t, want, data, p)
	}
}

func TestDeterministicOutput(t *testing.T) {
	a, err := Bytes(sample())
	require.NoError(t, err)
	b, err := Bytes(sample())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadSkipsDirectoriesAndRejectsEscapes(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("game/")
	require.NoError(t, err)
	w, err := zw.Create("game/A.unit")
	require.NoError(t, err)
	_, err = w.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	s, err := Load(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"game/A.unit"}, s.Paths())

	buf.Reset()
	zw = zip.NewWriter(&buf)
	_, err = zw.Create("../escape.txt")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Load(buf.Bytes())
	assert.ErrorIs(t, err, ErrBadEntry)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.zip"))
	assert.Error(t, err)
}
