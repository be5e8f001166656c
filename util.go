package streamcodec

import "encoding/binary"

// LE is the wire byte order. The rolling-uint varint tails (spec §4.1) and
// the fixed-width float64/bigint leaves (schema_leaf.go) are little-endian
// throughout; the format has no byte-order negotiation.
var LE = binary.LittleEndian
