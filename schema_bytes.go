package streamcodec

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// inferredSchemaCache memoizes infer_schema's result per concrete Go type:
// reflection over a type is expensive and its result never changes for the
// lifetime of the program, so a concurrent-safe map beats recomputing it on
// every any() value of a previously-seen type.
var inferredSchemaCache = xsync.NewMap[reflect.Type, Schema]()

// appendVarint appends the canonical rolling-uint encoding of v to buf,
// shared by every schema whose Bytes() needs an inline varint (object field
// count, union arity, record/map are leaf-only at the tag level and don't).
func appendVarint(buf []byte, v uint64) []byte {
	var tmp [9]byte
	n := VarintEncode(v, tmp[:], 0)
	return append(buf, tmp[:n]...)
}
