// Package loadorder reads load-order list files: named, ordered lists of
// mod archive file names.
//
//	default: survival
//	lists:
//	  survival: [core.zip, tweaks.zip]
//	  vanilla: []
package loadorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownList = errors.New("loadorder: unknown list")
	ErrBadEntry    = errors.New("loadorder: invalid archive entry")
)

// File is a parsed load-order file.
type File struct {
	Default string              `yaml:"default"`
	Lists   map[string][]string `yaml:"lists"`
}

// Load reads a load-order file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loadorder: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a load-order file and validates its entries.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("loadorder: %w", err)
	}
	if f.Lists == nil {
		f.Lists = map[string][]string{}
	}
	for name, entries := range f.Lists {
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e == "" || filepath.Base(e) != e || strings.ContainsAny(e, `/\`) {
				return nil, fmt.Errorf("%w: list %s: %q", ErrBadEntry, name, e)
			}
			if seen[e] {
				return nil, fmt.Errorf("%w: list %s: %s listed twice", ErrBadEntry, name, e)
			}
			seen[e] = true
		}
	}
	if f.Default != "" {
		if _, ok := f.Lists[f.Default]; !ok {
			return nil, fmt.Errorf("%w: default %s", ErrUnknownList, f.Default)
		}
	}
	return &f, nil
}

// Names returns the list names, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Lists))
	for name := range f.Lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the archive names of a list. An empty name selects the
// default list.
func (f *File) List(name string) ([]string, error) {
	if name == "" {
		name = f.Default
	}
	entries, ok := f.Lists[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
	return append([]string(nil), entries...), nil
}

// Scan lists every *.zip file of dir in sorted order; it is the load order
// used when no list file is configured.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loadorder: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
