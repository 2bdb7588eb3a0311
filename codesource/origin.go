package codesource

import "fmt"

// Kind is the provenance category of an entry.
type Kind uint8

const (
	KindHost Kind = iota
	KindMod
	KindGenerated
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindMod:
		return "mod"
	case KindGenerated:
		return "generated"
	case KindRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Origin tags an entry with where it came from. Mod is set for KindMod.
type Origin struct {
	Kind Kind
	Mod  string
}

func HostOrigin() Origin { return Origin{Kind: KindHost} }
func ModOrigin(id string) Origin { return Origin{Kind: KindMod, Mod: id} }
func GeneratedOrigin() Origin { return Origin{Kind: KindGenerated} }
func RuntimeOrigin() Origin { return Origin{Kind: KindRuntime} }

// String renders "host", "generated", "runtime" or "mod:<id>".
func (o Origin) String() string {
	if o.Kind == KindMod {
		return "mod:" + o.Mod
	}
	return o.Kind.String()
}
