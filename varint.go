package streamcodec

// Rolling-uint varint codec: a non-negative integer is encoded as the
// shortest of four forms, keyed by its lead byte. See spec §4.1.

const (
	varintTail1 = 0xFD
	varintTail4 = 0xFE
	varintTail8 = 0xFF
)

// VarintSize returns the number of bytes VarintEncode would write for v:
// 1, 3, 5, or 9.
func VarintSize(v uint64) int {
	switch {
	case v < varintTail1:
		return 1
	case v <= 0xFFFF:
		return 3
	case v <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

// VarintEncode writes the canonical rolling-uint encoding of v into buf
// starting at pos, and returns the position immediately after the written
// bytes. buf must have at least VarintSize(v) bytes available from pos.
func VarintEncode(v uint64, buf []byte, pos int) int {
	switch {
	case v < varintTail1:
		buf[pos] = byte(v)
		return pos + 1
	case v <= 0xFFFF:
		buf[pos] = varintTail1
		LE.PutUint16(buf[pos+1:pos+3], uint16(v))
		return pos + 3
	case v <= 0xFFFFFFFF:
		buf[pos] = varintTail4
		LE.PutUint32(buf[pos+1:pos+5], uint32(v))
		return pos + 5
	default:
		buf[pos] = varintTail8
		LE.PutUint64(buf[pos+1:pos+9], v)
		return pos + 9
	}
}

// VarintDecode reads a canonical or non-canonical rolling-uint from buf
// starting at pos. Non-canonical encodings (e.g. a small value written with
// a wider tail) are accepted on decode, per spec §4.1. It returns the
// decoded value and the position immediately after the consumed bytes.
func VarintDecode(buf []byte, pos int) (uint64, int, error) {
	if pos >= len(buf) {
		return 0, pos, ErrOutOfData
	}
	lead := buf[pos]
	switch {
	case lead < varintTail1:
		return uint64(lead), pos + 1, nil
	case lead == varintTail1:
		if pos+3 > len(buf) {
			return 0, pos, ErrOutOfData
		}
		return uint64(LE.Uint16(buf[pos+1 : pos+3])), pos + 3, nil
	case lead == varintTail4:
		if pos+5 > len(buf) {
			return 0, pos, ErrOutOfData
		}
		return uint64(LE.Uint32(buf[pos+1 : pos+5])), pos + 5, nil
	default:
		if pos+9 > len(buf) {
			return 0, pos, ErrOutOfData
		}
		return LE.Uint64(buf[pos+1 : pos+9]), pos + 9, nil
	}
}

// ReadVarint reads a rolling-uint directly from an io.ByteReader-backed
// Reader, mirroring VarintDecode but pulling bytes from a stream instead of
// an in-memory buffer.
func ReadVarint(r *Reader) uint64 {
	lead, err := r.ReadByte()
	if err != nil {
		return 0
	}
	switch {
	case lead < varintTail1:
		return uint64(lead)
	case lead == varintTail1:
		buf := r.readFull(2)
		if r.err != nil {
			return 0
		}
		return uint64(LE.Uint16(buf))
	case lead == varintTail4:
		buf := r.readFull(4)
		if r.err != nil {
			return 0
		}
		return uint64(LE.Uint32(buf))
	default:
		buf := r.readFull(8)
		if r.err != nil {
			return 0
		}
		return LE.Uint64(buf)
	}
}

// WriteVarint appends the canonical rolling-uint encoding of v to w.
func WriteVarint(w *Writer, v uint64) {
	var buf [9]byte
	n := VarintEncode(v, buf[:], 0)
	w.WriteBytes(buf[:n])
}

// ZigzagEncode maps a signed integer to a non-negative one, interleaving
// the sign bit. Per spec §4.1 / §9, this intentionally preserves the
// source implementation's 32-bit arithmetic width: values with
// |v| >= 2^31 round-trip incorrectly. Do not "fix" this without updating
// the wire format version, since it is a documented, load-bearing quirk.
func ZigzagEncode(v int64) uint64 {
	v32 := int32(v)
	return uint64(uint32((v32 << 1) ^ (v32 >> 31)))
}

// ZigzagDecode is the inverse of ZigzagEncode, carrying the same 32-bit
// width limitation.
func ZigzagDecode(z uint64) int64 {
	z32 := uint32(z)
	return int64(int32(z32>>1) ^ -int32(z32&1))
}
