package patch

import (
	"fmt"

	"github.com/chazu/graft/unit"
)

// resolveMethod selects the method of u a declaration targets. Explicit
// params select an exact overload. Without them the constructor sentinel
// picks the first declared constructor and any other name must be unique.
func resolveMethod(u *unit.Unit, d *Declaration) (*unit.Method, error) {
	if d.Params != nil {
		if m := u.Method(d.TargetMethod, d.Params); m != nil {
			return m, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, unit.Descriptor(d.TargetMethod, d.Params, "?"))
	}

	found := u.MethodsNamed(d.TargetMethod)
	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s.%s", ErrTargetNotFound, u.Name, d.TargetMethod)
	case d.TargetMethod == unit.Constructor:
		return found[0], nil
	case len(found) > 1:
		return nil, fmt.Errorf("%w: %s.%s has %d overloads", ErrAmbiguousTarget, u.Name, d.TargetMethod, len(found))
	}
	return found[0], nil
}

// call describes how a handler is invoked from a target.
type call struct {
	// withResult is set for a postfix that receives and replaces the
	// target's return value.
	withResult bool
	// discard is set when the handler's own result must be popped.
	discard bool
}

// checkHandler verifies that h can be called from target m of u and
// returns the calling convention.
func checkHandler(u *unit.Unit, m *unit.Method, d *Declaration) (call, error) {
	h := d.Handler
	if !h.Static {
		return call{}, fmt.Errorf("%w: %s.%s is not static", ErrIncompatible, d.Unit, h.Name)
	}

	want := make([]string, 0, len(m.Params)+1)
	if !m.Static {
		want = append(want, u.Name)
	}
	want = append(want, m.Params...)

	if d.Kind == Postfix && !m.IsVoid() && len(h.Params) == len(want)+1 &&
		typeMatches(m.Returns, h.Params[0]) && paramsMatch(want, h.Params[1:]) {
		if !typeMatches(m.Returns, h.Returns) {
			return call{}, fmt.Errorf("%w: %s.%s returns %s, want %s",
				ErrIncompatible, d.Unit, h.Descriptor(), returnName(h.Returns), m.Returns)
		}
		return call{withResult: true}, nil
	}

	if !paramsMatch(want, h.Params) {
		return call{}, fmt.Errorf("%w: %s.%s does not accept %s",
			ErrIncompatible, d.Unit, h.Descriptor(), unit.Descriptor(m.Name, want, m.Returns))
	}
	return call{discard: !h.IsVoid()}, nil
}

func paramsMatch(want, have []string) bool {
	if len(want) != len(have) {
		return false
	}
	for i := range want {
		if !typeMatches(want[i], have[i]) {
			return false
		}
	}
	return true
}

// typeMatches reports whether a handler type accepts a target type.
func typeMatches(target, handler string) bool {
	return handler == unit.Any || handler == target
}

func returnName(r string) string {
	if r == "" {
		return unit.Void
	}
	return r
}
