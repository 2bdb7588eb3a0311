package unit

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies an encoded unit.
const Magic = "GRFT"

// FormatVersion is the current unit encoding version.
const FormatVersion uint16 = 1

// Extension is the file extension of unit paths.
const Extension = ".unit"

var (
	ErrBadMagic   = errors.New("unit: bad magic")
	ErrBadVersion = errors.New("unit: unsupported format version")
	ErrNoUnit     = errors.New("unit: empty payload")
)

type envelope struct {
	Magic   string `cbor:"1,keyasint"`
	Version uint16 `cbor:"2,keyasint"`
	Unit    *Unit  `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("unit: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("unit: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Encode serializes a unit to canonical CBOR. Equal units encode to
// identical bytes.
func Encode(u *Unit) ([]byte, error) {
	if u == nil {
		return nil, ErrNoUnit
	}
	data, err := encMode.Marshal(envelope{Magic: Magic, Version: FormatVersion, Unit: u})
	if err != nil {
		return nil, fmt.Errorf("unit: encode %s: %w", u.Name, err)
	}
	return data, nil
}

// MustEncode is Encode for units built in code; it panics on error.
func MustEncode(u *Unit) []byte {
	data, err := Encode(u)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode deserializes a unit.
func Decode(data []byte) (*Unit, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unit: decode: %w", err)
	}
	if env.Magic != Magic {
		return nil, ErrBadMagic
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, env.Version)
	}
	if env.Unit == nil {
		return nil, ErrNoUnit
	}
	return env.Unit, nil
}

// PathFor maps a fully-qualified unit name to its archive path.
func PathFor(name string) string {
	return strings.ReplaceAll(name, ".", "/") + Extension
}

// NameFor maps an archive path back to a unit name. The second result is
// false for resource paths.
func NameFor(path string) (string, bool) {
	if !IsUnitPath(path) {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimSuffix(path, Extension), "/", "."), true
}

// IsUnitPath reports whether path addresses a compiled unit.
func IsUnitPath(path string) bool {
	return strings.HasSuffix(path, Extension) && len(path) > len(Extension)
}
