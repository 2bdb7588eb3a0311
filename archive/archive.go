// Package archive reads and writes the zip containers mods, the host and
// merged outputs travel in.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/chazu/graft/codesource"
)

var ErrBadEntry = errors.New("archive: invalid entry name")

// epoch is stamped on every written entry so equal contents produce equal
// archives.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Open reads a zip archive from disk into memory.
func Open(name string) (*codesource.MapStore, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	s, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("archive: %s: %w", name, err)
	}
	return s, nil
}

// Load reads a zip archive held in memory. Directory entries are skipped.
func Load(data []byte) (*codesource.MapStore, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, err
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	s := codesource.NewMapStore()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := cleanName(f.Name)
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		s.Put(name, content)
	}
	return s, nil
}

// Write stores every entry of s, in sorted path order, as a zip file.
func Write(name string, s codesource.Store) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := WriteTo(f, s); err != nil {
		f.Close()
		return fmt.Errorf("archive: %s: %w", name, err)
	}
	return f.Close()
}

// WriteTo encodes s as a zip stream. Output depends only on the entries.
func WriteTo(w io.Writer, s codesource.Store) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, p := range s.Paths() {
		name, err := cleanName(p)
		if err != nil {
			return err
		}
		data, _ := s.Get(p)
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: epoch,
		})
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Bytes is WriteTo into memory.
func Bytes(s codesource.Store) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTo(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cleanName normalizes an entry name and rejects names escaping the root.
func cleanName(name string) (string, error) {
	n := strings.ReplaceAll(name, "\\", "/")
	n = path.Clean(strings.TrimPrefix(n, "/"))
	if n == "." || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w: %q", ErrBadEntry, name)
	}
	return n, nil
}
