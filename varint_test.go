//go:build test

package streamcodec

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintSizeTable(t *testing.T) {
	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{0xFC, 1},
		{0xFD, 3},
		{0xFFFF, 3},
		{0x10000, 5},
		{0xFFFFFFFF, 5},
		{0x100000000, 9},
		{^uint64(0), 9},
	}
	for _, c := range cases {
		assert.Equal(t, c.size, VarintSize(c.v), "v=%d", c.v)
	}
}

func TestVarintEncodeDecodeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("encode then decode returns the original value", prop.ForAll(
		func(v uint64) bool {
			buf := make([]byte, VarintSize(v))
			VarintEncode(v, buf, 0)
			got, pos, err := VarintDecode(buf, 0)
			return err == nil && got == v && pos == len(buf)
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestVarintDecodeAcceptsNonCanonicalWidths(t *testing.T) {
	// A value small enough for a one-byte lead, written with the widest
	// tail anyway, still decodes to the same value (spec §4.1: decoders
	// accept non-canonical encodings).
	buf := []byte{varintTail8, 5, 0, 0, 0, 0, 0, 0, 0}
	v, pos, err := VarintDecode(buf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
	assert.Equal(t, 9, pos)
}

func TestVarintDecodeOutOfData(t *testing.T) {
	_, _, err := VarintDecode([]byte{varintTail1, 0x01}, 0)
	assert.ErrorIs(t, err, ErrOutOfData)
}

// TestReadWriteVarintViaStream covers every tail width end to end through
// the Reader/Writer stream path (VarintEncode/VarintDecode's buffer-only
// counterparts are covered by the property test above). 500 needs the
// two-byte tail, 1_000_000 the four-byte tail, and 1<<40 the eight-byte
// tail; ReadVarint must agree with WriteVarint's little-endian layout at
// every width, not just the one the original test happened to exercise.
func TestReadWriteVarintViaStream(t *testing.T) {
	for _, v := range []uint64{500, 1_000_000, 1 << 40} {
		var buf bytes.Buffer
		w, err := NewWriter(&buf)
		require.NoError(t, err)
		WriteVarint(w, v)
		_, err = w.Result()
		require.NoError(t, err)

		r, err := NewReader(&buf)
		require.NoError(t, err)
		got := ReadVarint(r)
		require.NoError(t, r.Err())
		assert.EqualValues(t, v, got, "v=%d", v)
	}
}

func TestZigzagRoundTripWithinInt32Range(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("zigzag round-trips any int32-range value", prop.ForAll(
		func(v int32) bool {
			z := ZigzagEncode(int64(v))
			return ZigzagDecode(z) == int64(v)
		},
		gen.Int32(),
	))

	properties.TestingRun(t)
}

func TestZigzagOutsideInt32RangeIsTheDocumentedQuirk(t *testing.T) {
	// Values outside the int32 range do not round-trip. This is the
	// documented, load-bearing width limitation on ZigzagEncode, not a bug.
	big := int64(1) << 40
	z := ZigzagEncode(big)
	assert.NotEqual(t, big, ZigzagDecode(z))
}
