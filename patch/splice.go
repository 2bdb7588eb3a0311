package patch

import (
	"fmt"
	"math"
	"slices"

	"github.com/chazu/graft/bytecode"
	"github.com/chazu/graft/unit"
)

// splice rewrites one target method. The body is parsed once; orig keeps
// the original instruction order so insert offsets stay independent of
// other splices.
type splice struct {
	owner  *unit.Unit
	method *unit.Method
	body   *bytecode.Body
	orig   []*bytecode.Instr
}

func newSplice(owner *unit.Unit, m *unit.Method) (*splice, error) {
	body, err := bytecode.Parse(m.Code)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", owner.Name, m.Descriptor(), err)
	}
	// The landing NOP Parse adds for jumps to the end is not addressable.
	orig := slices.DeleteFunc(slices.Clone(body.Instrs), func(in *bytecode.Instr) bool {
		return in.Origin >= len(m.Code)
	})

	// Execution that runs off the end returns implicitly; make that return
	// explicit so postfixes see it.
	if body.FallsThrough() {
		if m.IsVoid() {
			body.Append(bytecode.Simple(bytecode.OpReturnVoid))
		} else {
			body.Append(bytecode.Simple(bytecode.OpPushNil), bytecode.Simple(bytecode.OpReturnTop))
		}
	}
	return &splice{owner: owner, method: m, body: body, orig: orig}, nil
}

// apply splices one declaration.
func (s *splice) apply(d *Declaration, c call) error {
	if d.Kind == Insert && (d.Offset < 0 || d.Offset >= len(s.orig)) {
		return fmt.Errorf("%w: %d (body has %d instructions)", ErrBadOffset, d.Offset, len(s.orig))
	}
	seq, err := s.callSequence(d, c)
	if err != nil {
		return err
	}

	switch d.Kind {
	case Prefix:
		// Jumps back to the first instruction keep landing after the
		// prefixes.
		return s.body.InsertBefore(s.entry(), seq, false)

	case Insert:
		return s.body.InsertBefore(s.orig[d.Offset], seq, true)

	case Postfix:
		for i, ret := range s.body.Returns() {
			if i > 0 {
				// Each return site gets its own copy of the sequence.
				if seq, err = s.callSequence(d, c); err != nil {
					return err
				}
			}
			if err := s.body.InsertBefore(ret, seq, true); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: kind %s", ErrInvalidDeclaration, d.Kind)
}

// entry is the first original instruction, or the synthesized return of an
// empty body.
func (s *splice) entry() *bytecode.Instr {
	if len(s.orig) > 0 {
		return s.orig[0]
	}
	return s.body.At(0)
}

// callSequence builds the instructions that invoke the handler: the
// receiver, then each argument, then the call. A result-form postfix finds
// the return value already on the stack.
func (s *splice) callSequence(d *Declaration, c call) ([]*bytecode.Instr, error) {
	h := d.Handler
	if len(h.Params) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %s takes %d parameters", ErrIncompatible, h.Name, len(h.Params))
	}
	lit := s.literal(unit.MethodRef(d.Unit, h.Name, h.Params...))
	if lit > math.MaxUint16 {
		return nil, fmt.Errorf("%s.%s: literal pool overflow", s.owner.Name, s.method.Descriptor())
	}

	var seq []*bytecode.Instr
	if !s.method.Static {
		seq = append(seq, bytecode.Simple(bytecode.OpPushSelf))
	}
	for i := range s.method.Params {
		seq = append(seq, bytecode.WithArg(bytecode.OpPushTemp, i))
	}
	seq = append(seq, bytecode.Invoke(bytecode.OpInvokeStatic, lit, len(h.Params)))
	if c.discard {
		seq = append(seq, bytecode.Simple(bytecode.OpPOP))
	}
	return seq, nil
}

// literal returns the pool index of l, appending it when absent.
func (s *splice) literal(l unit.Literal) int {
	for i, existing := range s.method.Literals {
		if existing.Kind == l.Kind && existing.Owner == l.Owner &&
			existing.Name == l.Name && slices.Equal(existing.Params, l.Params) {
			return i
		}
	}
	return s.method.AddLiteral(l)
}

// finish re-emits the body into the method.
func (s *splice) finish() error {
	code, err := s.body.Emit()
	if err != nil {
		return fmt.Errorf("%s.%s: %w", s.owner.Name, s.method.Descriptor(), err)
	}
	s.method.Code = code
	return nil
}
