package manifest

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tliron/commonlog"
)

var (
	ErrDuplicateMod      = errors.New("manifest: duplicate mod id")
	ErrMissingDependency = errors.New("manifest: missing dependency")
	ErrDependencyCycle   = errors.New("manifest: dependency cycle")
)

// CycleError reports mods that could not be ordered.
type CycleError struct {
	// Remaining lists every mod left unordered, in input order.
	Remaining []string
	// Cycle is one concrete cycle, each mod depending on the next; the
	// first element is repeated at the end.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s among %s: %s",
		ErrDependencyCycle, strings.Join(e.Remaining, ", "), strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrDependencyCycle
}

// Resolve orders mods so that each comes after all of its dependencies.
//
// Edges run from a dependency to its dependents. Nodes without remaining
// dependents are removed one at a time, the latest in input order first,
// and the removal sequence is reversed. Independent mods therefore keep
// their input order and identical input always yields identical output.
// Optional dependencies that are present are ordered like required ones;
// absent ones are ignored.
func Resolve(mods []*Descriptor) ([]*Descriptor, error) {
	log := commonlog.GetLogger("graft.manifest")

	index := make(map[string]int, len(mods))
	for i, d := range mods {
		if j, ok := index[d.ID]; ok {
			return nil, fmt.Errorf("%w: %q is declared by both %s and %s",
				ErrDuplicateMod, d.ID, mods[j].Archive, d.Archive)
		}
		index[d.ID] = i
	}

	// deps[i]: indexes i depends on; dependents[j]: remaining dependents of j.
	deps := make([][]int, len(mods))
	dependents := make([]int, len(mods))
	for i, d := range mods {
		for _, dep := range d.Dependencies {
			j, ok := index[dep.ID]
			if !ok {
				if dep.Optional {
					log.Debugf("mod %s: optional dependency %s is not installed", d.ID, dep.ID)
					continue
				}
				return nil, fmt.Errorf("%w: mod %s requires %s", ErrMissingDependency, d.ID, dep.ID)
			}
			if slices.Contains(deps[i], j) {
				continue
			}
			deps[i] = append(deps[i], j)
			dependents[j]++
		}
	}

	removed := make([]bool, len(mods))
	sequence := make([]*Descriptor, 0, len(mods))
	for len(sequence) < len(mods) {
		next := -1
		for i := len(mods) - 1; i >= 0; i-- {
			if !removed[i] && dependents[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, cycleError(mods, deps, removed)
		}
		removed[next] = true
		sequence = append(sequence, mods[next])
		for _, j := range deps[next] {
			dependents[j]--
		}
	}

	slices.Reverse(sequence)
	return sequence, nil
}

// cycleError collects the mods left unordered and extracts one cycle. Every
// remaining mod still has a remaining dependent, so following dependents
// from any of them must revisit a mod.
func cycleError(mods []*Descriptor, deps [][]int, removed []bool) *CycleError {
	e := &CycleError{}
	dependents := make([][]int, len(mods))
	start := -1
	for i, d := range mods {
		if removed[i] {
			continue
		}
		e.Remaining = append(e.Remaining, d.ID)
		if start < 0 {
			start = i
		}
		for _, j := range deps[i] {
			if !removed[j] {
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	seen := make(map[int]int)
	var walk []int
	for cur := start; cur >= 0; {
		if at, ok := seen[cur]; ok {
			cycle := append(walk[at:], cur)
			slices.Reverse(cycle)
			for _, i := range cycle {
				e.Cycle = append(e.Cycle, mods[i].ID)
			}
			break
		}
		seen[cur] = len(walk)
		walk = append(walk, cur)
		cur = -1
		if next := dependents[walk[len(walk)-1]]; len(next) > 0 {
			cur = next[0]
		}
	}
	return e
}
