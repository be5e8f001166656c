package streamcodec

import "time"

// The value universe (spec §3). Most leaves map onto native Go types
// directly (bool, uint8, uint64, int64, float64, string); the remaining
// ones need distinct wrapper types because the wire distinguishes them by
// schema tag alone, not by shape.

// BigInt is a 64-bit unsigned integer value, distinct from Uint so that a
// Value carrying a BigInt can be told apart from one carrying a Uint purely
// by its Go type, the way the schema distinguishes them by tag (0x11 vs
// 0x0A).
type BigInt uint64

// Uint8Array and ByteBuffer both carry raw bytes; the wire tells them
// apart only by schema tag (0x04 vs 0x05). Two distinct slice types let a
// Value's Go type alone determine which schema it validates against.
// Uint8Array is named after the JS type spec §4.6 maps it from, not after
// the u8-array() constructor, since Go does not allow a type and a
// function to share an identifier.
type (
	Uint8Array []byte
	ByteBuffer []byte
)

// DateTime is carried on the wire as an ISO-8601 string (spec §4.4); the
// original time zone is not preserved beyond UTC offset normalization
// (spec §9).
type DateTime time.Time

// FloatString is the potentially-float-string leaf (tag 0x15): a string
// that may denote a float, kept distinct from String so the reflector can
// round-trip the ambiguity it exists to preserve.
type FloatString string

// KV is one entry of a Record or MapValue.
type KV struct {
	Key   any
	Value any
}

// Record is the value for a record(T) schema: an ordered finite mapping of
// string key to value with dynamic keys. Order is wire (iteration) order,
// not necessarily sorted -- unlike Object, which sorts on write regardless
// of the order Record preserves here.
type Record []KV

// MapValue is the value for a map(K,V) schema: an ordered finite mapping of
// value to value, written in iteration order (spec §3 invariants:
// "preserving iteration order... beyond what the wire mandates" is not
// guaranteed on read, but write order is exactly this slice's order).
type MapValue []KV

// Null is the single value that validates against a naked nullable()
// schema and against the null branch of nullable(T)/optional(T). Go's nil
// already serves this role for most callers; Null exists for APIs that
// need an explicit, typed sentinel instead of an untyped nil interface --
// for instance a Record or MapValue entry, where storing a bare nil as a
// KV.Value reads the same as "no value was set" until something decodes
// it, while a Null makes the null-ness explicit at the call site.
type Null struct{}

// isNull reports whether v is the null value: either an untyped nil or
// the explicit Null sentinel. nullableSchema and optionalSchema both
// accept either spelling on validate/planValue.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
