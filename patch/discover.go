package patch

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/graft/manifest"
	"github.com/chazu/graft/unit"
)

// Discovery is everything the mods declare, in load order.
type Discovery struct {
	Patches []*Declaration
	Enums   []*EnumDeclaration
}

// Discover scans every unit of every mod, mods in load order and units in
// path order. Invalid marker metadata and undecodable units are fatal.
func Discover(mods []*manifest.Descriptor) (*Discovery, error) {
	log := commonlog.GetLogger("graft.patch")
	out := &Discovery{}

	for _, mod := range mods {
		if mod.Store == nil {
			continue
		}
		paths := mod.Store.Paths()
		sort.Strings(paths)
		for _, path := range paths {
			if !unit.IsUnitPath(path) {
				continue
			}
			data, _ := mod.Store.Get(path)
			u, err := unit.Decode(data)
			if err != nil {
				return nil, fmt.Errorf("%w: mod %s: %s: %w", ErrCorruptUnit, mod.ID, path, err)
			}
			if err := out.scan(mod.ID, u); err != nil {
				return nil, err
			}
		}
	}

	log.Debugf("discovered %d patch and %d enum declarations", len(out.Patches), len(out.Enums))
	return out, nil
}

func (d *Discovery) scan(mod string, u *unit.Unit) error {
	where := fmt.Sprintf("mod %s: %s", mod, u.Name)

	for _, mk := range u.MarkersOf(MarkerEnum) {
		attrs, err := decodeMarker[enumAttrs]("#Enum", mk, where)
		if err != nil {
			return err
		}
		d.Enums = append(d.Enums, &EnumDeclaration{
			Mod:      mod,
			Unit:     u.Name,
			Target:   attrs.Target,
			Name:     attrs.Name,
			Remove:   attrs.Remove,
			Required: attrs.Required,
		})
	}

	patches := u.MarkersOf(MarkerPatch)
	if len(patches) == 0 {
		return nil
	}
	if len(patches) > 1 {
		return fmt.Errorf("%w: %s: %d patch markers, want one", ErrInvalidDeclaration, where, len(patches))
	}
	attrs, err := decodeMarker[patchAttrs]("#Patch", patches[0], where)
	if err != nil {
		return err
	}
	var params []string
	if _, explicit := patches[0].Attrs["params"]; explicit {
		params = append([]string{}, attrs.Params...)
	}

	found := 0
	for _, m := range u.Methods {
		decl := &Declaration{
			Mod:          mod,
			Unit:         u.Name,
			TargetType:   attrs.Target,
			TargetMethod: attrs.Method,
			Params:       params,
			Handler:      m,
		}
		if mk, ok := m.Marker(MarkerInsert); ok {
			ins, err := decodeMarker[insertAttrs]("#Insert", mk, where+"."+m.Name)
			if err != nil {
				return err
			}
			decl.Kind = Insert
			decl.Offset = ins.Offset
		} else {
			switch m.Name {
			case PrefixName:
				decl.Kind = Prefix
			case PostfixName:
				decl.Kind = Postfix
			default:
				continue
			}
		}
		decl.seq = len(d.Patches)
		d.Patches = append(d.Patches, decl)
		found++
	}
	if found == 0 {
		commonlog.GetLogger("graft.patch").Warningf("%s: patch unit declares no handlers", where)
	}
	return nil
}
