//go:build test

package streamcodec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ReflectionTestSuite exercises both directions of spec §4.6: bytes->schema
// (schema round-trip through reflectBytes) and value->schema (inferSchema,
// used by the any() constructor).
type ReflectionTestSuite struct {
	suite.Suite
}

func (s *ReflectionTestSuite) assertSchemaRoundTrips(schema Schema) {
	b := schema.Bytes()
	r, err := NewReader(NewBytesReader(b))
	s.Require().NoError(err)
	reflected, err := reflectBytes(r)
	s.Require().NoError(err)
	s.Assert().Equal(b, reflected.Bytes())
}

func (s *ReflectionTestSuite) TestLeafSchemasRoundTrip() {
	for _, schema := range []Schema{
		Boolean(), Uint8(), Uint(), Int(), Float(), Bigint(), String(),
		U8Array(), Buffer(), Date(), PotentiallyFloatString(), Any(),
		ReadableStream(),
	} {
		s.assertSchemaRoundTrips(schema)
	}
}

func (s *ReflectionTestSuite) TestCompositeSchemasRoundTrip() {
	for _, schema := range []Schema{
		Array(Uint()),
		Object(map[string]Schema{"a": Uint(), "b": String()}),
		Record(Float()),
		Map(String(), Uint()),
		Union(Boolean(), Uint(), String()),
		Nullable(Uint()),
		Nullable(nil),
		Optional(String()),
		Promise(String()),
		Iterator(Uint()),
		CompressionTable(String(), true),
		Array(Object(map[string]Schema{"x": Nullable(Iterator(Union(Uint(), Boolean())))})),
	} {
		s.assertSchemaRoundTrips(schema)
	}
}

func (s *ReflectionTestSuite) TestReflectBytesRejectsUnknownTag() {
	r, err := NewReader(NewBytesReader([]byte{0xEE}))
	s.Require().NoError(err)
	_, err = reflectBytes(r)
	s.Assert().ErrorIs(err, ErrProtocol)
}

func (s *ReflectionTestSuite) TestInferSchemaLeaves() {
	cases := []struct {
		v    any
		kind Kind
	}{
		{true, KindBoolean},
		{"hi", KindString},
		{DateTime(time.Now()), KindDate},
		{BigInt(3), KindBigint},
		{uint64(5), KindUint},
		{int64(-5), KindInt},
		{float64(1.5), KindFloat},
		{Uint8Array("x"), KindU8Array},
		{ByteBuffer("x"), KindBuffer},
		{FloatString("1.0"), KindPotentiallyFloat},
	}
	for _, c := range cases {
		schema, err := inferSchema(c.v)
		s.Require().NoError(err, "%v", c.v)
		s.Assert().Equal(c.kind, schema.Kind(), "%v", c.v)
	}
}

func (s *ReflectionTestSuite) TestInferSchemaNullIsNakedNullable() {
	schema, err := inferSchema(nil)
	s.Require().NoError(err)
	s.Assert().Equal(KindNullable, schema.Kind())
	s.Assert().Nil(schema.(*nullableSchema).inner)
}

func (s *ReflectionTestSuite) TestInferSchemaEmptyArrayIsArrayOfAny() {
	schema, err := inferSchema([]any{})
	s.Require().NoError(err)
	arr, ok := schema.(*arraySchema)
	s.Require().True(ok)
	s.Assert().Equal(KindAny, arr.elem.Kind())
}

func (s *ReflectionTestSuite) TestInferSchemaArrayUnionsUniqueElementSchemas() {
	schema, err := inferSchema([]any{uint64(1), "a", uint64(2)})
	s.Require().NoError(err)
	arr, ok := schema.(*arraySchema)
	s.Require().True(ok)
	union, ok := arr.elem.(*unionSchema)
	s.Require().True(ok)
	s.Assert().Len(union.alts, 2)
}

func (s *ReflectionTestSuite) TestInferSchemaDetectsCycles() {
	cyclic := make([]any, 1)
	cyclic[0] = cyclic
	_, err := inferSchema(cyclic)
	s.Assert().ErrorIs(err, ErrCyclicValue)
}

func (s *ReflectionTestSuite) TestAnySchemaRoundTrip() {
	ctx := context.Background()
	msg, err := EncodeToBytes(ctx, Any(), map[string]any{
		"n": uint64(7),
		"s": "hi",
		"b": true,
	}, Options{}, nil)
	s.Require().NoError(err)
	got, err := DecodeFromBytes(ctx, msg.bytes, Any(), Options{})
	s.Require().NoError(err)
	s.Assert().Equal(map[string]any{"n": uint64(7), "s": "hi", "b": true}, got)
}

func TestReflection(t *testing.T) {
	suite.Run(t, new(ReflectionTestSuite))
}

func TestReflectNullableNakedVsChild(t *testing.T) {
	naked := Nullable(nil).Bytes()
	require.Equal(t, []byte{byte(KindNullable), 0x00}, naked)

	withChild := Nullable(Uint()).Bytes()
	assert.Equal(t, byte(KindNullable), withChild[0])
	assert.Equal(t, byte(KindUint), withChild[1])
}
