package loadorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
default: survival
lists:
  survival: [core.zip, tweaks.zip, maps.zip]
  vanilla: []
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"survival", "vanilla"}, f.Names())

	got, err := f.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"core.zip", "tweaks.zip", "maps.zip"}, got)

	got, err = f.List("vanilla")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.List("hardcore")
	assert.ErrorIs(t, err, ErrUnknownList)
}

func TestListReturnsCopy(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	got, err := f.List("survival")
	require.NoError(t, err)
	got[0] = "changed.zip"

	again, err := f.List("survival")
	require.NoError(t, err)
	assert.Equal(t, "core.zip", again[0])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown default", "default: nope\nlists:\n  a: []\n", ErrUnknownList},
		{"path entry", "lists:\n  a: [../evil.zip]\n", ErrBadEntry},
		{"empty entry", "lists:\n  a: ['']\n", ErrBadEntry},
		{"duplicate entry", "lists:\n  a: [x.zip, x.zip]\n", ErrBadEntry},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Parse([]byte("lists: [1, 2"))
	assert.Error(t, err)
}

func TestLoadAndScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.zip", "a.ZIP", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.zip"), 0o755))

	got, err := Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ZIP", "b.zip"}, got)

	path := filepath.Join(dir, "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "survival", f.Default)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
