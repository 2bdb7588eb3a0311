// Package codesource implements the merged, precedence-ordered view over
// every origin of compiled units and resources: a denylist, the engine's
// runtime-support units, mods in load order, generated patch output and the
// host.
package codesource

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tliron/commonlog"

	"github.com/chazu/graft/unit"
)

var (
	ErrDenied   = errors.New("codesource: name is denylisted")
	ErrNotFound = errors.New("codesource: not found")
)

// DefaultDenylist names units that no origin may ever supply.
var DefaultDenylist = []string{
	"sys.Security",
	"sys.Integrity",
	"graft.Source",
}

// DefaultCacheSize is the lookup cache capacity used when none is set.
const DefaultCacheSize = 1024

// Layer is one origin's store.
type Layer struct {
	Origin Origin
	Store  Store
}

// Entry is a resolved path.
type Entry struct {
	Path   string
	Origin Origin
	Data   []byte
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder collects origins and produces an immutable Source.
type Builder struct {
	deny      []string
	runtime   Store
	mods      []Layer
	generated Store
	host      Store
	cacheSize int
}

// NewBuilder returns a builder seeded with the default denylist.
func NewBuilder() *Builder {
	return &Builder{
		deny:      append([]string(nil), DefaultDenylist...),
		cacheSize: DefaultCacheSize,
	}
}

// Deny adds denylist patterns. A pattern is a fully-qualified unit name, a
// resource path, or a prefix ending in ".*" (or "/*" for resources).
func (b *Builder) Deny(patterns ...string) *Builder {
	b.deny = append(b.deny, patterns...)
	return b
}

// Runtime sets the engine's runtime-support units.
func (b *Builder) Runtime(s Store) *Builder {
	b.runtime = s
	return b
}

// Mod appends a mod layer; call in load order.
func (b *Builder) Mod(id string, s Store) *Builder {
	b.mods = append(b.mods, Layer{Origin: ModOrigin(id), Store: s})
	return b
}

// Generated sets the patch engine output.
func (b *Builder) Generated(s Store) *Builder {
	b.generated = s
	return b
}

// Host sets the host application's units.
func (b *Builder) Host(s Store) *Builder {
	b.host = s
	return b
}

// CacheSize sets the lookup cache capacity; 0 disables caching.
func (b *Builder) CacheSize(n int) *Builder {
	b.cacheSize = n
	return b
}

// Build freezes the configuration.
func (b *Builder) Build() (*Source, error) {
	s := &Source{
		deny: newDenylist(b.deny),
		log:  commonlog.GetLogger("graft.codesource"),
	}
	if b.runtime != nil {
		s.layers = append(s.layers, Layer{Origin: RuntimeOrigin(), Store: b.runtime})
	}
	s.layers = append(s.layers, b.mods...)
	if b.generated != nil {
		s.generated = &Layer{Origin: GeneratedOrigin(), Store: b.generated}
	}
	if b.host != nil {
		s.host = &Layer{Origin: HostOrigin(), Store: b.host}
	}
	if b.cacheSize > 0 {
		cache, err := lru.New(b.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("codesource: cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

// Source resolves paths against its layers. It is immutable once built and
// safe for concurrent lookups.
type Source struct {
	deny      denylist
	layers    []Layer // runtime, then mods in load order
	generated *Layer
	host      *Layer
	cache     *lru.Cache
	log       commonlog.Logger
}

// Resolve returns the winning entry for path: denied paths fail with
// ErrDenied; otherwise generated output, runtime, mods in load order and
// the host are consulted. Generated entries are patched copies of the
// winning unit, so they mask the runtime and mod layers for their path.
func (s *Source) Resolve(path string) (Entry, error) {
	if s.deny.match(path) {
		s.log.Debugf("refusing denylisted path %s", path)
		return Entry{}, fmt.Errorf("%w: %s", ErrDenied, path)
	}
	if s.cache != nil {
		if e, ok := s.cache.Get(path); ok {
			return e.(Entry), nil
		}
	}
	e, ok := s.find(path)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if s.cache != nil {
		s.cache.Add(path, e)
	}
	return e, nil
}

func (s *Source) find(path string) (Entry, bool) {
	if s.generated != nil {
		if data, ok := s.generated.Store.Get(path); ok {
			return Entry{Path: path, Origin: s.generated.Origin, Data: data}, true
		}
	}
	for _, l := range s.layers {
		if data, ok := l.Store.Get(path); ok {
			return Entry{Path: path, Origin: l.Origin, Data: data}, true
		}
	}
	if s.host != nil {
		if data, ok := s.host.Store.Get(path); ok {
			return Entry{Path: path, Origin: s.host.Origin, Data: data}, true
		}
	}
	return Entry{}, false
}

// LookupPath returns the winning bytes for path.
func (s *Source) LookupPath(path string) ([]byte, error) {
	e, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return e.Data, nil
}

// Lookup returns the winning encoded unit for a fully-qualified name.
func (s *Source) Lookup(name string) ([]byte, error) {
	return s.LookupPath(unit.PathFor(name))
}

// Paths returns every resolvable path across all layers, sorted. Denied
// paths are omitted.
func (s *Source) Paths() []string {
	seen := make(map[string]struct{})
	for _, l := range s.Layers() {
		for _, p := range l.Store.Paths() {
			if !s.deny.match(p) {
				seen[p] = struct{}{}
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Layers returns the layers in nominal priority order: runtime, mods,
// generated, host.
func (s *Source) Layers() []Layer {
	out := append([]Layer(nil), s.layers...)
	if s.generated != nil {
		out = append(out, *s.generated)
	}
	if s.host != nil {
		out = append(out, *s.host)
	}
	return out
}

// Denied reports whether a unit name or path is denylisted.
func (s *Source) Denied(nameOrPath string) bool {
	if unit.IsUnitPath(nameOrPath) || strings.Contains(nameOrPath, "/") {
		return s.deny.match(nameOrPath)
	}
	return s.deny.match(unit.PathFor(nameOrPath))
}

// ---------------------------------------------------------------------------
// Denylist
// ---------------------------------------------------------------------------

type denylist struct {
	exact    map[string]struct{} // unit names and resource paths
	prefixes []string
}

func newDenylist(patterns []string) denylist {
	d := denylist{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, ".*") || strings.HasSuffix(p, "/*"):
			d.prefixes = append(d.prefixes, strings.TrimSuffix(p, "*"))
		default:
			d.exact[p] = struct{}{}
		}
	}
	return d
}

// match checks a path. Unit paths are matched by their unit name, so
// "sys.Security" denies "sys/Security.unit".
func (d denylist) match(path string) bool {
	key := path
	if name, ok := unit.NameFor(path); ok {
		key = name
	}
	if _, ok := d.exact[key]; ok {
		return true
	}
	for _, prefix := range d.prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
