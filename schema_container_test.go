//go:build test

package streamcodec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ContainerSchemaTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *ContainerSchemaTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *ContainerSchemaTestSuite) roundTrip(schema Schema, v any) any {
	msg, err := EncodeToBytes(s.ctx, schema, v, Options{}, nil)
	s.Require().NoError(err)
	got, err := DecodeFromBytes(s.ctx, msg.bytes, schema, Options{})
	s.Require().NoError(err)
	return got
}

func (s *ContainerSchemaTestSuite) TestArray() {
	schema := Array(Uint())
	got := s.roundTrip(schema, []any{uint64(1), uint64(2), uint64(3)})
	s.Assert().Equal([]any{uint64(1), uint64(2), uint64(3)}, got)
}

func (s *ContainerSchemaTestSuite) TestEmptyArray() {
	schema := Array(Uint())
	got := s.roundTrip(schema, []any{})
	s.Assert().Equal([]any{}, got)
}

func (s *ContainerSchemaTestSuite) TestObjectSortsFieldsRegardlessOfBytesOrder() {
	fields := map[string]Schema{"zebra": Boolean(), "apple": Uint()}
	schema := Object(fields)
	obj, ok := schema.(*objectSchema)
	s.Require().True(ok)
	s.Require().Len(obj.fields, 2)
	s.Assert().Equal("apple", obj.fields[0].name)
	s.Assert().Equal("zebra", obj.fields[1].name)

	got := s.roundTrip(schema, map[string]any{"zebra": true, "apple": uint64(7)})
	s.Assert().Equal(map[string]any{"zebra": true, "apple": uint64(7)}, got)
}

// TestObjectKeySortIsPlainByteOrderNotCollation guards the ordering
// invariant on a mixed-case key set where locale-aware collation and
// byte-wise ordinal comparison disagree: a collator sorts "a" before "Z",
// while plain UTF-8 byte order (and Go's string comparison) sorts "Z"
// before "a" since 0x5A < 0x61.
func (s *ContainerSchemaTestSuite) TestObjectKeySortIsPlainByteOrderNotCollation() {
	fields := map[string]Schema{"Zebra": Boolean(), "apple": Uint()}
	schema := Object(fields)
	obj, ok := schema.(*objectSchema)
	s.Require().True(ok)
	s.Require().Len(obj.fields, 2)
	s.Assert().Equal("Zebra", obj.fields[0].name)
	s.Assert().Equal("apple", obj.fields[1].name)
}

func (s *ContainerSchemaTestSuite) TestRecordPreservesInsertionOrder() {
	schema := Record(Uint())
	rec := Record{{Key: "b", Value: uint64(2)}, {Key: "a", Value: uint64(1)}}
	got := s.roundTrip(schema, rec)
	s.Assert().Equal(rec, got)
}

func (s *ContainerSchemaTestSuite) TestMap() {
	schema := Map(String(), Uint())
	m := MapValue{{Key: "a", Value: uint64(1)}, {Key: "b", Value: uint64(2)}}
	got := s.roundTrip(schema, m)
	s.Assert().Equal(m, got)
}

func (s *ContainerSchemaTestSuite) TestNullableWithValue() {
	schema := Nullable(Uint())
	s.Assert().Equal(uint64(9), s.roundTrip(schema, uint64(9)))
}

func (s *ContainerSchemaTestSuite) TestNullableWithNull() {
	schema := Nullable(Uint())
	s.Assert().Nil(s.roundTrip(schema, nil))
}

func (s *ContainerSchemaTestSuite) TestNakedNullableOnlyAcceptsNull() {
	schema := Nullable(nil)
	s.Assert().Nil(s.roundTrip(schema, nil))
	s.Assert().Error(schema.validate("not null"))
}

// TestNullSentinelIsAcceptedLikeNil exercises Null as an alternate, typed
// spelling of the null value: validate and planValue must treat Null{}
// exactly like an untyped nil for every schema that accepts null.
func (s *ContainerSchemaTestSuite) TestNullSentinelIsAcceptedLikeNil() {
	naked := Nullable(nil)
	s.Assert().NoError(naked.validate(Null{}))
	s.Assert().Nil(s.roundTrip(naked, Null{}))

	nullable := Nullable(Uint())
	s.Assert().NoError(nullable.validate(Null{}))
	s.Assert().Nil(s.roundTrip(nullable, Null{}))

	optional := Optional(String())
	s.Assert().NoError(optional.validate(Null{}))
	s.Assert().Nil(s.roundTrip(optional, Null{}))
}

func (s *ContainerSchemaTestSuite) TestOptionalAbsentAndPresent() {
	schema := Optional(String())
	s.Assert().Nil(s.roundTrip(schema, nil))
	s.Assert().Equal("present", s.roundTrip(schema, "present"))
}

func (s *ContainerSchemaTestSuite) TestUnionPicksFirstMatchingAlternative() {
	schema := Union(Boolean(), Uint(), String())
	s.Assert().Equal(true, s.roundTrip(schema, true))
	s.Assert().Equal(uint64(5), s.roundTrip(schema, uint64(5)))
	s.Assert().Equal("text", s.roundTrip(schema, "text"))
}

func (s *ContainerSchemaTestSuite) TestUnionRejectsNonMatchingValue() {
	schema := Union(Boolean(), Uint())
	err := schema.validate("nope")
	s.Assert().ErrorIs(err, ErrValidation)
}

func TestContainerSchemas(t *testing.T) {
	suite.Run(t, new(ContainerSchemaTestSuite))
}

func TestObjectBytesEncodeSortedFieldNamesAndSchemas(t *testing.T) {
	schema := Object(map[string]Schema{"b": Boolean(), "a": Uint()})
	b := schema.Bytes()
	require.Equal(t, byte(KindObject), b[0])
	// varint(2) fields, then "a" (keylen 1) with uint, then "b" with boolean.
	require.Equal(t, []byte{byte(KindObject), 0x02, 0x01, 'a', byte(KindUint), 0x01, 'b', byte(KindBoolean)}, b)
}

func TestUnionBytesEncodesArityMinusOne(t *testing.T) {
	schema := Union(Boolean(), Uint(), String())
	b := schema.Bytes()
	require.Equal(t, byte(KindUnion), b[0])
	require.Equal(t, byte(2), b[1]) // 3 alternatives -> varint(3-1) = 2, one byte
}
