// Package manifest reads mod.toml metadata from mod archives and orders
// mods so that every mod loads after its dependencies.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"

	"github.com/chazu/graft/codesource"
	"github.com/chazu/graft/internal/schema"
)

// FileName is the metadata file at the root of a mod archive.
const FileName = "mod.toml"

var (
	ErrBadMetadata   = errors.New("manifest: invalid mod metadata")
	ErrRuntimeTooNew = errors.New("manifest: mod requires a newer extension runtime")
	ErrBadVersion    = errors.New("manifest: invalid version")
)

// Dependency is one declared dependency of a mod.
type Dependency struct {
	ID       string `json:"id" toml:"id"`
	Optional bool   `json:"optional" toml:"optional,omitempty"`
}

// Descriptor describes one mod archive. It is built once per archive and
// not modified afterwards.
type Descriptor struct {
	ID             string
	Name           string
	Author         string
	RuntimeVersion string
	Description    string
	Dependencies   []Dependency

	// Archive is the path of the archive the mod was read from.
	Archive string
	// Store holds the archive contents.
	Store codesource.Store
}

func (d *Descriptor) String() string {
	return d.ID
}

// modSchema validates mod.toml after dependency strings are expanded.
var modSchema = schema.MustCompile(`
#ID: string & =~"^[A-Za-z0-9][A-Za-z0-9_.-]*$"

#Dependency: {
	id:        #ID
	optional?: bool
}

#Mod: {
	id?:                        #ID
	name?:                      string
	author?:                    string
	extension_runtime_version?: string
	description?:               string
	dependencies?: [...#Dependency]
}
`)

type modFile struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Author         string       `json:"author"`
	RuntimeVersion string       `json:"extension_runtime_version"`
	Description    string       `json:"description"`
	Dependencies   []Dependency `json:"dependencies"`
}

// Parse decodes mod.toml content. archive names the source archive and
// supplies the default ID and display name.
func Parse(data []byte, archive string) (*Descriptor, error) {
	raw := map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadMetadata, archive, err)
	}
	if deps, ok := raw["dependencies"]; ok {
		raw["dependencies"] = normalizeDependencies(deps)
	}

	mf, err := schema.Decode[modFile](modSchema, "#Mod", raw, archive+"!"+FileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMetadata, err)
	}

	d := &Descriptor{
		ID:             mf.ID,
		Name:           mf.Name,
		Author:         mf.Author,
		RuntimeVersion: mf.RuntimeVersion,
		Description:    mf.Description,
		Dependencies:   mf.Dependencies,
		Archive:        archive,
	}
	d.applyDefaults()
	return d, nil
}

// FromStore builds the descriptor of an opened archive, reading mod.toml
// when present.
func FromStore(archive string, store codesource.Store) (*Descriptor, error) {
	var d *Descriptor
	if data, ok := store.Get(FileName); ok {
		var err error
		if d, err = Parse(data, archive); err != nil {
			return nil, err
		}
	} else {
		d = &Descriptor{Archive: archive}
		d.applyDefaults()
	}
	d.Store = store
	return d, nil
}

func (d *Descriptor) applyDefaults() {
	base := strings.TrimSuffix(filepath.Base(d.Archive), filepath.Ext(d.Archive))
	if d.ID == "" {
		d.ID = base
	}
	if d.Name == "" {
		d.Name = base
	}
}

// normalizeDependencies turns `dependencies = ["a"]` into the table form.
func normalizeDependencies(v any) any {
	var items []any
	switch deps := v.(type) {
	case []any:
		items = deps
	case []map[string]any:
		for _, m := range deps {
			items = append(items, m)
		}
	default:
		return v
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, map[string]any{"id": s})
			continue
		}
		out = append(out, item)
	}
	return out
}

// CheckRuntime compares the mod's declared extension runtime version with
// the running engine's. A mod needing a newer runtime yields
// ErrRuntimeTooNew; an unparsable version yields ErrBadVersion.
func CheckRuntime(d *Descriptor, engine string) error {
	if d.RuntimeVersion == "" {
		return nil
	}
	want := canonical(d.RuntimeVersion)
	if !semver.IsValid(want) {
		return fmt.Errorf("%w: mod %s declares %q", ErrBadVersion, d.ID, d.RuntimeVersion)
	}
	have := canonical(engine)
	if !semver.IsValid(have) {
		return fmt.Errorf("%w: engine version %q", ErrBadVersion, engine)
	}
	if semver.Compare(want, have) > 0 {
		return fmt.Errorf("%w: mod %s needs %s, running %s", ErrRuntimeTooNew, d.ID, d.RuntimeVersion, engine)
	}
	return nil
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
