package streamcodec

import (
	"fmt"
	"sort"
)

// Kind is the one-byte type tag that leads a schema's byte-representation
// on the wire (spec §6). Exact values are part of the wire protocol.
type Kind uint8

const (
	KindArray             Kind = 0x01
	KindObject            Kind = 0x02
	KindString            Kind = 0x03
	KindU8Array           Kind = 0x04
	KindBuffer            Kind = 0x05
	KindPromise           Kind = 0x06
	KindIterator          Kind = 0x07
	KindBoolean           Kind = 0x08
	KindUint8             Kind = 0x09
	KindUint              Kind = 0x0A
	KindUnion             Kind = 0x0B
	KindDate              Kind = 0x0C
	KindInt               Kind = 0x0D
	KindFloat             Kind = 0x0E
	KindNullable          Kind = 0x0F
	KindOptional          Kind = 0x10
	KindBigint            Kind = 0x11
	KindReadableStream    Kind = 0x12
	KindRecord            Kind = 0x13
	KindMap               Kind = 0x14
	KindPotentiallyFloat  Kind = 0x15
	KindAny               Kind = 0x16
	KindCompressionTable  Kind = 0x17
)

// Schema is the closed algebra of type constructors (spec §3, §4.4). Every
// Schema has a canonical byte-representation (Bytes) that is its
// content-address: two schemas with equal bytes are interchangeable.
//
// planValue and readValue are the two halves of the per-type contract: the
// write side runs in two phases (plan discovers size and streaming nodes,
// emit writes bytes) while the read side runs directly against a Reader
// and the session's stream registry.
type Schema interface {
	Kind() Kind
	Bytes() []byte

	// validate reports whether v satisfies this schema, without writing
	// anything.
	validate(v any) error

	// planValue computes the size in bytes that v will occupy under this
	// schema, and returns a closure that writes it once the root buffer
	// has been allocated. Streaming nodes register themselves with pc's
	// multiplexer during this call, not during emit.
	planValue(pc *planContext, v any) (int, func(w *Writer), error)

	// readValue decodes one value of this schema from r, using rc to
	// resolve compression-table references and stream registrations.
	readValue(rc *readContext, r *Reader) (any, error)
}

// pipe wraps a schema with a value transform applied before validation and
// writing; its schema bytes are identical to the inner schema's (spec
// §4.4). It has no tag of its own.
type pipeSchema struct {
	inner Schema
	fn    func(v any) (any, error)
}

// Pipe builds a transparent wrapper: writer applies fn then delegates to
// inner; reader delegates to inner directly. Useful for adapting
// application types into the value universe without a dedicated leaf.
func Pipe(inner Schema, fn func(v any) (any, error)) Schema {
	return &pipeSchema{inner: inner, fn: fn}
}

func (s *pipeSchema) Kind() Kind     { return s.inner.Kind() }
func (s *pipeSchema) Bytes() []byte  { return s.inner.Bytes() }
func (s *pipeSchema) validate(v any) error {
	transformed, err := s.fn(v)
	if err != nil {
		return fmt.Errorf("%w: pipe transform: %v", ErrValidation, err)
	}
	return s.inner.validate(transformed)
}
func (s *pipeSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	transformed, err := s.fn(v)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: pipe transform: %v", ErrValidation, err)
	}
	return s.inner.planValue(pc, transformed)
}
func (s *pipeSchema) readValue(rc *readContext, r *Reader) (any, error) {
	return s.inner.readValue(rc, r)
}

// sortedObjectKeys returns keys sorted by strict lexicographic,
// locale-insensitive ordering of their UTF-8 bytes (spec §3 invariant).
// Go's string comparison is plain byte-wise ordinal comparison, which is
// what "locale-insensitive" means here: no case folding, no linguistic
// tailoring. This matches original_source/rust/src/schema.rs's resolution
// of the same invariant (String::cmp, ordinal rather than collated).
func sortedObjectKeys(keys []string) []string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return sorted
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
}

func internalErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInternal}, args...)...)
}
