// Package schema validates plain data (decoded TOML tables, unit marker
// attributes) against CUE definitions and decodes it into Go structs.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("schema: validation failed")

// Schema is a compiled set of CUE definitions.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// Compile compiles CUE source holding one or more definitions.
func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src)
	if root.Err() != nil {
		return nil, fmt.Errorf("schema: compile: %w", root.Err())
	}
	return &Schema{ctx: ctx, root: root}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(src string) *Schema {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode unifies data with the named definition (for example "#Mod"),
// validates the result as concrete and decodes it into a T. Struct fields
// of T are matched through their json tags. filename prefixes messages.
func Decode[T any](s *Schema, definition string, data any, filename string) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := s.root.LookupPath(cue.ParsePath(definition))
	if def.Err() != nil {
		return nil, fmt.Errorf("schema: definition %s not found: %w", definition, def.Err())
	}

	value := s.ctx.Encode(data)
	if value.Err() != nil {
		return nil, formatError(value.Err(), filename)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatError(err, filename)
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, formatError(err, filename)
	}
	return &out, nil
}

// formatError flattens CUE errors into "file: path: message" lines.
func formatError(err error, filename string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, filename, err)
	}

	var lines []string
	for _, e := range errs {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		if path != "" {
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%w: %s: %s", ErrInvalid, filename, lines[0])
	}
	return fmt.Errorf("%w: %s:\n  %s", ErrInvalid, filename, strings.Join(lines, "\n  "))
}

// formatPath renders ["deps", "0", "id"] as deps[0].id.
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
