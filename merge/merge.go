// Package merge flattens a code source into distributable archives: a base
// archive holding everything shared with the host, the runtime or generated
// patches, and one archive per mod holding what only that mod supplies.
package merge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/graft/archive"
	"github.com/chazu/graft/codesource"
	"github.com/chazu/graft/manifest"
)

// ManifestName is the path of the merge manifest inside the base archive.
const ManifestName = "graft-manifest.toml"

// DefaultBaseName is the file name of the base archive.
const DefaultBaseName = "base.zip"

// Options control a merge.
type Options struct {
	// Main is the entry point recorded in the manifest.
	Main string
	// BaseName overrides DefaultBaseName.
	BaseName string
	// BuildID overrides the generated build id.
	BuildID string
}

// Provenance records where one merged entry came from.
type Provenance struct {
	Path    string `toml:"path"`
	Origin  string `toml:"origin"`
	Archive string `toml:"archive"`
}

// Manifest is the content of ManifestName.
type Manifest struct {
	BuildID   string       `toml:"build_id"`
	Main      string       `toml:"main,omitempty"`
	Base      string       `toml:"base"`
	Classpath []string     `toml:"classpath"`
	Entries   []Provenance `toml:"entries"`
}

// Archive is one output archive.
type Archive struct {
	Name  string
	Mod   string // empty for the base archive
	Store *codesource.MapStore
}

// Output is the result of Merge.
type Output struct {
	Base     *Archive
	Mods     []*Archive // load order
	Manifest *Manifest
	// Conflicts counts paths supplied by more than one origin.
	Conflicts int
}

// Archives returns the base archive followed by the mod archives.
func (o *Output) Archives() []*Archive {
	return append([]*Archive{o.Base}, o.Mods...)
}

// Merge resolves every path of src with its priority rule and partitions
// the winners between the base archive and per-mod archives.
func Merge(src *codesource.Source, mods []*manifest.Descriptor, opts Options) (*Output, error) {
	log := commonlog.GetLogger("graft.merge")

	if opts.BaseName == "" {
		opts.BaseName = DefaultBaseName
	}
	if opts.BuildID == "" {
		opts.BuildID = uuid.NewString()
	}

	out := &Output{
		Base: &Archive{Name: opts.BaseName, Store: codesource.NewMapStore()},
		Manifest: &Manifest{
			BuildID: opts.BuildID,
			Main:    opts.Main,
			Base:    opts.BaseName,
		},
	}
	byMod := make(map[string]*Archive, len(mods))
	for _, d := range mods {
		a := &Archive{Name: archiveName(d.ID), Mod: d.ID, Store: codesource.NewMapStore()}
		if _, dup := byMod[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", manifest.ErrDuplicateMod, d.ID)
		}
		byMod[d.ID] = a
		out.Mods = append(out.Mods, a)
		out.Manifest.Classpath = append(out.Manifest.Classpath, a.Name)
	}

	suppliers := make(map[string][]codesource.Origin)
	for _, l := range src.Layers() {
		for _, p := range l.Store.Paths() {
			if src.Denied(p) {
				log.Debugf("dropping denylisted %s from %s", p, l.Origin)
				continue
			}
			suppliers[p] = append(suppliers[p], l.Origin)
		}
	}
	paths := make([]string, 0, len(suppliers))
	for p := range suppliers {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		// Per-archive metadata is replaced by the merge manifest.
		if p == ManifestName || p == manifest.FileName {
			continue
		}
		entry, err := src.Resolve(p)
		if err != nil {
			return nil, err
		}
		from := suppliers[p]
		if len(from) > 1 {
			out.Conflicts++
			log.Debugf("%s: %s wins over %v", p, entry.Origin, from)
		}

		dest := out.Base
		if len(from) == 1 && from[0].Kind == codesource.KindMod {
			if a, ok := byMod[from[0].Mod]; ok {
				dest = a
			}
		}
		dest.Store.Put(p, entry.Data)
		out.Manifest.Entries = append(out.Manifest.Entries, Provenance{
			Path:    p,
			Origin:  entry.Origin.String(),
			Archive: dest.Name,
		})
	}

	data, err := EncodeManifest(out.Manifest)
	if err != nil {
		return nil, err
	}
	out.Base.Store.Put(ManifestName, data)

	log.Infof("merged %d entries into %d archives (%d conflicts)", len(paths), len(out.Mods)+1, out.Conflicts)
	return out, nil
}

func archiveName(mod string) string {
	return "mod-" + mod + ".zip"
}

// EncodeManifest renders m as TOML.
func EncodeManifest(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("merge: manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadManifest parses the manifest of a base archive.
func ReadManifest(base codesource.Store) (*Manifest, error) {
	data, ok := base.Get(ManifestName)
	if !ok {
		return nil, fmt.Errorf("merge: %s not found", ManifestName)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("merge: manifest: %w", err)
	}
	return &m, nil
}

// Write writes every archive of out into dir.
func Write(dir string, out *Output) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	for _, a := range out.Archives() {
		if err := archive.Write(filepath.Join(dir, a.Name), a.Store); err != nil {
			return fmt.Errorf("merge: %s: %w", a.Name, err)
		}
	}
	commonlog.GetLogger("graft.merge").Infof("wrote %d archives to %s", len(out.Mods)+1, dir)
	return nil
}
