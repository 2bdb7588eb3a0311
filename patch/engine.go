package patch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/graft/codesource"
	"github.com/chazu/graft/enum"
	"github.com/chazu/graft/manifest"
	"github.com/chazu/graft/unit"
)

// Base is the pre-patch view targets are resolved against.
type Base interface {
	enum.UnitSource
	Resolve(path string) (codesource.Entry, error)
}

// Skip records a declaration that was not applied.
type Skip struct {
	Mod    string
	What   string
	Reason error
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %s", s.What, s.Reason)
}

// Result is the outcome of one Apply.
type Result struct {
	// Generated holds one patched unit per successfully patched type.
	Generated *codesource.MapStore
	Applied   []*Declaration
	Enums     []*EnumDeclaration
	Skipped   []Skip
	// Failed maps a target type to the error that left it unpatched.
	Failed map[string]error
}

// Engine applies mod patches against a base view.
type Engine struct {
	enums *enum.Registry
	log   commonlog.Logger
}

// NewEngine creates an engine that mutates enums through registry. A nil
// registry gets a fresh one.
func NewEngine(registry *enum.Registry) *Engine {
	if registry == nil {
		registry = enum.NewRegistry()
	}
	return &Engine{
		enums: registry,
		log:   commonlog.GetLogger("graft.patch"),
	}
}

// Enums returns the registry enum declarations are applied through.
func (e *Engine) Enums() *enum.Registry {
	return e.enums
}

// Apply discovers every declaration of mods (in load order) and applies
// them against base. The returned error is fatal; per-declaration and
// per-type failures are reported in the Result.
func (e *Engine) Apply(ctx context.Context, mods []*manifest.Descriptor, base Base) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	disc, err := Discover(mods)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Generated: codesource.NewMapStore(),
		Failed:    make(map[string]error),
	}

	if err := e.applyEnums(disc.Enums, base, res); err != nil {
		return nil, err
	}

	types, byType := groupByType(disc.Patches)
	for _, typ := range types {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.patchType(typ, byType[typ], base, res); err != nil {
			return nil, err
		}
	}

	e.log.Infof("patched %d types with %d declarations (%d skipped, %d types failed)",
		res.Generated.Len(), len(res.Applied), len(res.Skipped), len(res.Failed))
	return res, nil
}

func groupByType(decls []*Declaration) ([]string, map[string][]*Declaration) {
	var types []string
	byType := make(map[string][]*Declaration)
	for _, d := range decls {
		if _, ok := byType[d.TargetType]; !ok {
			types = append(types, d.TargetType)
		}
		byType[d.TargetType] = append(byType[d.TargetType], d)
	}
	return types, byType
}

// ---------------------------------------------------------------------------
// Enum extensions
// ---------------------------------------------------------------------------

func (e *Engine) applyEnums(decls []*EnumDeclaration, base Base, res *Result) error {
	for _, d := range decls {
		if _, err := base.Resolve(unit.PathFor(d.Target)); errors.Is(err, codesource.ErrDenied) {
			return fmt.Errorf("%w: %s: %w", ErrDeniedTarget, d, err)
		}
		if err := e.applyEnum(d, base); err != nil {
			if d.Required {
				return fmt.Errorf("%w: %s: %w", ErrRequiredEnum, d, err)
			}
			e.log.Warningf("skipping %s: %s", d, err)
			res.Skipped = append(res.Skipped, Skip{Mod: d.Mod, What: d.String(), Reason: err})
			continue
		}
		e.log.Debugf("applied %s", d)
		res.Enums = append(res.Enums, d)
	}
	return nil
}

func (e *Engine) applyEnum(d *EnumDeclaration, base Base) error {
	if _, err := e.enums.Load(base, d.Target); err != nil {
		return err
	}
	m, err := e.enums.Mutator(d.Target)
	if err != nil {
		return err
	}
	if d.Remove {
		return m.Delete(&enum.Variant{Name: d.Name})
	}
	_, err = m.Upsert(&enum.Variant{Name: d.Name})
	return err
}

// ---------------------------------------------------------------------------
// Method patches
// ---------------------------------------------------------------------------

// patchType applies every declaration targeting typ to a private copy of
// the unit and commits the copy only if the whole type succeeds.
func (e *Engine) patchType(typ string, decls []*Declaration, base Base, res *Result) (fatal error) {
	entry, err := base.Resolve(unit.PathFor(typ))
	if errors.Is(err, codesource.ErrDenied) {
		return fmt.Errorf("%w: %s (declared by %s): %w", ErrDeniedTarget, typ, decls[0], err)
	}
	if err != nil {
		for _, d := range decls {
			e.skip(res, d, fmt.Errorf("%w: type %s", ErrTargetNotFound, typ))
		}
		return nil
	}
	pristine, err := unit.Decode(entry.Data)
	if err != nil {
		e.fail(res, typ, err)
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.fail(res, typ, fmt.Errorf("panic: %v", rec))
		}
	}()

	work := pristine.Clone()
	var (
		methods []*unit.Method
		plans   = make(map[*unit.Method][]*planned)
	)
	for _, d := range decls {
		m, err := resolveMethod(work, d)
		if err != nil {
			e.skip(res, d, err)
			continue
		}
		c, err := checkHandler(work, m, d)
		if err != nil {
			e.skip(res, d, err)
			continue
		}
		if _, ok := plans[m]; !ok {
			methods = append(methods, m)
		}
		plans[m] = append(plans[m], &planned{decl: d, call: c})
	}
	if len(methods) == 0 {
		return nil
	}

	var applied []*Declaration
	for _, m := range methods {
		s, err := newSplice(work, m)
		if err != nil {
			e.fail(res, typ, err)
			return nil
		}
		plan := plans[m]
		sort.SliceStable(plan, func(i, j int) bool {
			if plan[i].decl.Kind != plan[j].decl.Kind {
				return plan[i].decl.Kind < plan[j].decl.Kind
			}
			return plan[i].decl.seq < plan[j].decl.seq
		})
		for _, p := range plan {
			if err := s.apply(p.decl, p.call); err != nil {
				if errors.Is(err, ErrBadOffset) || errors.Is(err, ErrIncompatible) {
					e.skip(res, p.decl, err)
					continue
				}
				e.fail(res, typ, err)
				return nil
			}
			applied = append(applied, p.decl)
		}
		if err := s.finish(); err != nil {
			e.fail(res, typ, err)
			return nil
		}
	}
	if len(applied) == 0 {
		return nil
	}

	work.Markers = append(work.Markers, unit.Marker{
		Kind:  MarkerPatched,
		Attrs: map[string]any{"mods": patchingMods(applied)},
	})
	if err := res.Generated.PutUnit(work); err != nil {
		e.fail(res, typ, err)
		return nil
	}
	for _, d := range applied {
		e.log.Debugf("applied %s", d)
	}
	res.Applied = append(res.Applied, applied...)
	return nil
}

type planned struct {
	decl *Declaration
	call call
}

func (e *Engine) skip(res *Result, d *Declaration, err error) {
	e.log.Warningf("skipping %s: %s", d, err)
	res.Skipped = append(res.Skipped, Skip{Mod: d.Mod, What: d.String(), Reason: err})
}

func (e *Engine) fail(res *Result, typ string, err error) {
	e.log.Errorf("leaving %s unpatched: %s", typ, err)
	res.Failed[typ] = err
}

// patchingMods lists the mods of applied declarations in load order.
func patchingMods(applied []*Declaration) []string {
	sorted := slices.Clone(applied)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].seq < sorted[j].seq })
	var mods []string
	for _, d := range sorted {
		if !slices.Contains(mods, d.Mod) {
			mods = append(mods, d.Mod)
		}
	}
	return mods
}
