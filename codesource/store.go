package codesource

import (
	"maps"
	"slices"
	"sort"

	"github.com/chazu/graft/unit"
)

// Store is a flat, read-only set of path-addressed entries: the contents of
// one archive, the generated patch output, or units built in memory.
type Store interface {
	Get(path string) ([]byte, bool)
	Paths() []string
}

// MapStore is an in-memory Store.
type MapStore struct {
	files map[string][]byte
}

// NewMapStore returns an empty store.
func NewMapStore() *MapStore {
	return &MapStore{files: make(map[string][]byte)}
}

// Put stores data at path, replacing any previous entry.
func (s *MapStore) Put(path string, data []byte) {
	s.files[path] = data
}

// PutUnit encodes u and stores it at its unit path.
func (s *MapStore) PutUnit(u *unit.Unit) error {
	data, err := unit.Encode(u)
	if err != nil {
		return err
	}
	s.files[u.Path()] = data
	return nil
}

// Get returns the entry at path.
func (s *MapStore) Get(path string) ([]byte, bool) {
	data, ok := s.files[path]
	return data, ok
}

// Paths returns every path, sorted.
func (s *MapStore) Paths() []string {
	paths := slices.Collect(maps.Keys(s.files))
	sort.Strings(paths)
	return paths
}

// Len returns the number of entries.
func (s *MapStore) Len() int {
	return len(s.files)
}
