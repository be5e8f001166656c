package streamcodec

import (
	"context"
	"io"
)

// promiseSchema is the promise(T) constructor (spec §4.4, §4.7, tag 0x06):
// a deferred single value of T, multiplexed over a 16-bit sub-stream.
type promiseSchema struct {
	inner      Schema
	bytesCache []byte
}

// Promise returns the promise(T) schema. Write-side values must implement
// PromiseSource; read-side values are decoded as *Promise handles.
func Promise(inner Schema) Schema { return &promiseSchema{inner: inner} }

func (s *promiseSchema) Kind() Kind { return KindPromise }
func (s *promiseSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		return append([]byte{byte(KindPromise)}, s.inner.Bytes()...)
	})
}

func (s *promiseSchema) validate(v any) error {
	if _, ok := v.(PromiseSource); !ok {
		return validationErrorf("expected a PromiseSource, got %T", v)
	}
	return nil
}

func (s *promiseSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	src := v.(PromiseSource)
	id, err := pc.mux.allocate()
	if err != nil {
		return 0, nil, err
	}
	inner := s.inner
	return 2, func(w *Writer) {
		w.WriteByte(byte(id >> 8))
		w.WriteByte(byte(id))
		pc.mux.spawn(id, func(ctx context.Context) error {
			return runPromiseProducer(ctx, pc, inner, id, src)
		})
	}, nil
}

func runPromiseProducer(ctx context.Context, pc *planContext, inner Schema, id uint16, src PromiseSource) error {
	v, err := src.Await(ctx)
	if err != nil {
		body, werr := writeSerializableErrorPayload(pc, asSerializableError(err))
		if werr != nil {
			return werr
		}
		return pc.mux.writeFrame(id, append([]byte{0}, body...))
	}
	body, werr := planAndEmitToBytes(pc, inner, v)
	if werr != nil {
		return werr
	}
	return pc.mux.writeFrame(id, append([]byte{1}, body...))
}

func (s *promiseSchema) readValue(rc *readContext, r *Reader) (any, error) {
	id, err := readStreamID(r)
	if err != nil {
		return nil, err
	}
	p := newPromiseHandle(id, rc.demux, rc, s.inner)
	rc.demux.register(id, p)
	return p, nil
}

// iteratorSchema is the iterator(T) constructor (spec §4.4, §4.7, tag 0x07):
// a finite or infinite stream of T values.
type iteratorSchema struct {
	inner      Schema
	bytesCache []byte
}

// Iterator returns the iterator(T) schema. Write-side values must implement
// IteratorSource; read-side values are decoded as *Iterator handles.
func Iterator(inner Schema) Schema { return &iteratorSchema{inner: inner} }

func (s *iteratorSchema) Kind() Kind { return KindIterator }
func (s *iteratorSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		return append([]byte{byte(KindIterator)}, s.inner.Bytes()...)
	})
}

func (s *iteratorSchema) validate(v any) error {
	if _, ok := v.(IteratorSource); !ok {
		return validationErrorf("expected an IteratorSource, got %T", v)
	}
	return nil
}

func (s *iteratorSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	src := v.(IteratorSource)
	id, err := pc.mux.allocate()
	if err != nil {
		return 0, nil, err
	}
	inner := s.inner
	return 2, func(w *Writer) {
		w.WriteByte(byte(id >> 8))
		w.WriteByte(byte(id))
		pc.mux.spawn(id, func(ctx context.Context) error {
			return runIteratorProducer(ctx, pc, inner, id, src)
		})
	}, nil
}

func runIteratorProducer(ctx context.Context, pc *planContext, inner Schema, id uint16, src IteratorSource) error {
	for {
		v, err := src.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return pc.mux.writeFrame(id, []byte{0})
			}
			body, werr := writeSerializableErrorPayload(pc, asSerializableError(err))
			if werr != nil {
				return werr
			}
			return pc.mux.writeFrame(id, append([]byte{2}, body...))
		}
		body, werr := planAndEmitToBytes(pc, inner, v)
		if werr != nil {
			return werr
		}
		if werr := pc.mux.writeFrame(id, append([]byte{1}, body...)); werr != nil {
			return werr
		}
	}
}

func (s *iteratorSchema) readValue(rc *readContext, r *Reader) (any, error) {
	id, err := readStreamID(r)
	if err != nil {
		return nil, err
	}
	it := newIteratorHandle(id, rc.demux, rc, s.inner)
	rc.demux.register(id, it)
	return it, nil
}

// readableStreamSchema is the readable-stream constructor (spec §4.4,
// §4.7, tag 0x12): a raw byte stream with no child schema.
type readableStreamSchema struct{}

// ReadableStream returns the readable-stream() schema. Write-side values
// must implement io.Reader; read-side values are decoded as *ByteStream
// handles.
func ReadableStream() Schema { return &readableStreamSchema{} }

func (s *readableStreamSchema) Kind() Kind    { return KindReadableStream }
func (s *readableStreamSchema) Bytes() []byte { return []byte{byte(KindReadableStream)} }

func (s *readableStreamSchema) validate(v any) error {
	if _, ok := v.(io.Reader); !ok {
		return validationErrorf("expected an io.Reader, got %T", v)
	}
	return nil
}

func (s *readableStreamSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	src := v.(io.Reader)
	id, err := pc.mux.allocate()
	if err != nil {
		return 0, nil, err
	}
	return 2, func(w *Writer) {
		w.WriteByte(byte(id >> 8))
		w.WriteByte(byte(id))
		pc.mux.spawn(id, func(ctx context.Context) error {
			return runReadableStreamProducer(ctx, pc, id, src)
		})
	}, nil
}

func runReadableStreamProducer(ctx context.Context, pc *planContext, id uint16, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			// Empty chunks are filtered on write (spec §4.7); n>0 here
			// guarantees that.
			payload := appendVarint(make([]byte, 0, 9+n), uint64(n))
			payload = append(payload, buf[:n]...)
			if werr := pc.mux.writeFrame(id, payload); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return pc.mux.writeFrame(id, []byte{0})
			}
			return err
		}
	}
}

func (s *readableStreamSchema) readValue(rc *readContext, r *Reader) (any, error) {
	id, err := readStreamID(r)
	if err != nil {
		return nil, err
	}
	bs := newByteStream()
	rc.demux.register(id, bs)
	return bs, nil
}

// readStreamID reads the 2-byte big-endian sub-stream ID every streaming
// schema reserves in the root buffer (spec §4.2, §4.7).
func readStreamID(r *Reader) (uint16, error) {
	hi, err := r.ReadByte()
	if err != nil {
		return 0, translateReadErr(err)
	}
	lo, err := r.ReadByte()
	if err != nil {
		return 0, translateReadErr(err)
	}
	return uint16(hi)<<8 | uint16(lo), nil
}
