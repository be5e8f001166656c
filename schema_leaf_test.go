//go:build test

package streamcodec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LeafSchemaTestSuite round-trips every leaf constructor through
// EncodeToBytes/DecodeFromBytes, exercising the real session header and
// schema-reflection path rather than calling planValue/readValue directly.
type LeafSchemaTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *LeafSchemaTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *LeafSchemaTestSuite) roundTrip(schema Schema, v any) any {
	msg, err := EncodeToBytes(s.ctx, schema, v, Options{}, nil)
	s.Require().NoError(err)
	got, err := DecodeFromBytes(s.ctx, msg.bytes, schema, Options{})
	s.Require().NoError(err)
	return got
}

func (s *LeafSchemaTestSuite) TestBoolean() {
	s.Assert().Equal(true, s.roundTrip(Boolean(), true))
	s.Assert().Equal(false, s.roundTrip(Boolean(), false))
}

func (s *LeafSchemaTestSuite) TestUint8() {
	s.Assert().Equal(uint8(200), s.roundTrip(Uint8(), uint8(200)))
}

func (s *LeafSchemaTestSuite) TestUint() {
	s.Assert().Equal(uint64(0x1_0000_0001), s.roundTrip(Uint(), uint64(0x1_0000_0001)))
	s.Assert().Equal(uint64(0), s.roundTrip(Uint(), uint64(0)))
}

func (s *LeafSchemaTestSuite) TestInt() {
	s.Assert().Equal(int64(-42), s.roundTrip(Int(), int64(-42)))
	s.Assert().Equal(int64(42), s.roundTrip(Int(), int64(42)))
}

func (s *LeafSchemaTestSuite) TestFloat() {
	s.Assert().Equal(3.5, s.roundTrip(Float(), 3.5))
	s.Assert().Equal(-2.25, s.roundTrip(Float(), -2.25))
}

func (s *LeafSchemaTestSuite) TestBigint() {
	s.Assert().Equal(BigInt(18446744073709551615), s.roundTrip(Bigint(), BigInt(18446744073709551615)))
}

func (s *LeafSchemaTestSuite) TestString() {
	s.Assert().Equal("héllo wörld", s.roundTrip(String(), "héllo wörld"))
	s.Assert().Equal("", s.roundTrip(String(), ""))
}

func (s *LeafSchemaTestSuite) TestU8Array() {
	s.Assert().Equal(Uint8Array("raw"), s.roundTrip(U8Array(), Uint8Array("raw")))
}

func (s *LeafSchemaTestSuite) TestBuffer() {
	s.Assert().Equal(ByteBuffer("raw"), s.roundTrip(Buffer(), ByteBuffer("raw")))
}

func (s *LeafSchemaTestSuite) TestDate() {
	d := DateTime(time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC))
	got := s.roundTrip(Date(), d)
	s.Assert().True(time.Time(d).Equal(time.Time(got.(DateTime))))
}

func (s *LeafSchemaTestSuite) TestPotentiallyFloatString() {
	s.Assert().Equal(FloatString("3.14"), s.roundTrip(PotentiallyFloatString(), FloatString("3.14")))
}

func TestLeafSchemas(t *testing.T) {
	suite.Run(t, new(LeafSchemaTestSuite))
}
