package streamcodec

import (
	"bytes"
	"context"
	"io"

	"go.uber.org/zap"
)

// Options configures a single Encode/Decode call (spec §4.8). It is passed
// by value, following the teacher's NewReaderSize/NewWriterSize convention
// of explicit, no-magic constructors rather than a config file or env-var
// layer.
type Options struct {
	// BufferSize sizes the buffered Reader wrapped around the transport on
	// Decode. Zero uses NewReader's default.
	BufferSize int
	// MaxConcurrentStreams caps the number of simultaneously open
	// sub-streams a session will allocate; zero means unbounded (beyond the
	// 16-bit ID space itself).
	MaxConcurrentStreams int
	// Logger receives a Warn-level record when a sub-stream producer fails
	// and a Debug-level record when Decode's background dispatcher loop ends
	// with an error. Individual frame routing, slurp-releases and
	// cancellations are not logged. A nil Logger is replaced with
	// zap.NewNop().
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Encode validates v against schema, then writes the session header, the
// schema bytes (unless lastDigest already matches schema's digest), and
// the root value to w, in that order, followed by every sub-stream frame
// spawned while encoding (spec §4.2, §4.8). It blocks until every producer
// task has finished and returns schema's digest for the caller to pass as
// lastDigest on a subsequent Encode against the same schema.
func Encode(ctx context.Context, w io.Writer, schema Schema, v any, opts Options, lastDigest []byte) ([]byte, error) {
	if err := schema.validate(v); err != nil {
		return nil, err
	}

	digest := Digest(schema)
	inline := lastDigest == nil || !bytes.Equal(lastDigest, digest)

	mux := newMultiplexer(ctx, w, opts.MaxConcurrentStreams, opts.logger())
	pc := &planContext{ctx: ctx, mux: mux, compress: newCompressTable()}

	size, emit, err := schema.planValue(pc, v)
	if err != nil {
		return nil, err
	}

	var header []byte
	if inline {
		header = append([]byte{0x01}, schema.Bytes()...)
	} else {
		header = []byte{0x00}
	}

	buf := make([]byte, len(header)+size)
	copy(buf, header)
	bw, err := NewWriter(NewBytesWriter(buf[len(header):]))
	if err != nil {
		return nil, err
	}
	emit(bw)
	if bw.Err() != nil {
		return nil, bw.Err()
	}

	if _, err := w.Write(buf); err != nil {
		return nil, err
	}
	if err := mux.flushRoot(); err != nil {
		return nil, err
	}
	if err := mux.wait(); err != nil {
		return nil, err
	}
	return digest, nil
}

// Decode reads the session header from r, reflects the inline schema when
// present (replacing the caller-supplied schema entirely, per spec §4.8),
// decodes the root value, and spawns the dispatcher loop that routes
// sub-stream frames to the consumer handles registered while decoding the
// root value. Decode itself returns as soon as the root value is decoded;
// streaming values continue to be delivered by the dispatcher goroutine
// run in the background.
func Decode(ctx context.Context, r io.Reader, schema Schema, opts Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rd, err := NewReaderSize(r, opts.BufferSize)
	if err != nil {
		return nil, err
	}

	// watchDone covers both the root-value read below and, once started,
	// the background dispatcher loop: closing rd on cancellation is what
	// unblocks whichever blocking read is in flight when ctx is done,
	// mirroring the deadline-on-cancel pattern transport/overlay.go uses
	// for its own blocking ReadFromUDP.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			rd.Close()
		case <-watchDone:
		}
	}()

	header, err := rd.ReadByte()
	if err != nil {
		close(watchDone)
		return nil, firstErr(ctx, translateReadErr(err))
	}
	switch header {
	case 0x01:
		schema, err = reflectBytes(rd)
		if err != nil {
			close(watchDone)
			return nil, firstErr(ctx, err)
		}
	case 0x00:
		if schema == nil {
			close(watchDone)
			return nil, protocolErrorf("session header omits inline schema but no schema was supplied")
		}
	default:
		close(watchDone)
		return nil, protocolErrorf("unexpected session header byte 0x%02x", header)
	}

	demux := newDemuxSession(opts.logger())
	rc := &readContext{ctx: ctx, demux: demux, decomp: newDecompressTable()}

	v, err := schema.readValue(rc, rd)
	if err != nil {
		close(watchDone)
		return nil, firstErr(ctx, err)
	}

	logger := opts.logger()
	go func() {
		defer close(watchDone)
		if derr := demux.dispatch(ctx, rd); derr != nil {
			logger.Debug("dispatcher loop ended", zap.Error(derr))
		}
	}()

	return v, nil
}

// firstErr prefers ctx's cancellation cause over a generic I/O error: when
// the watcher goroutine above closes rd in response to ctx being done, the
// resulting error is whatever the underlying reader/closer happens to
// surface (often just io.ErrClosedPipe or a protocol error from the
// truncated read), which would otherwise mask the actual cancellation.
func firstErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// Message is the result of a buffer-producing Encode: the session header,
// schema bytes (if any), root value, and every sub-stream frame
// concatenated in order. It satisfies Codec so callers that already
// integrate against that aggregate interface can treat an encoded value
// exactly like any other binary-marshalable type.
type Message struct {
	bytes  []byte
	digest []byte
}

// Digest returns the digest of the schema this message was encoded
// against, suitable for passing as lastDigest to a later EncodeToBytes
// call to suppress a redundant inline schema.
func (m *Message) Digest() []byte { return m.digest }

func (m *Message) Size() int { return len(m.bytes) }

func (m *Message) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), m.bytes...), nil
}

func (m *Message) MarshalTo(buf []byte) (int, error) {
	if len(buf) < len(m.bytes) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, m.bytes), nil
}

func (m *Message) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.bytes)
	return int64(n), err
}

func (m *Message) UnmarshalBinary(data []byte) error {
	m.bytes = append([]byte(nil), data...)
	return nil
}

func (m *Message) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	m.bytes = data
	if err != nil {
		return int64(len(data)), err
	}
	return int64(len(data)), nil
}

var _ Codec = (*Message)(nil)

// EncodeToBytes is the buffer-producing variant of Encode (spec.md's
// "there are also buffer-producing variants": it omits the transport,
// accumulating every sub-stream frame into the same in-memory buffer as
// the root value, in order, since the multiplexer's pending-queue
// discipline already guarantees that ordering against any io.Writer).
func EncodeToBytes(ctx context.Context, schema Schema, v any, opts Options, lastDigest []byte) (*Message, error) {
	var buf bytes.Buffer
	digest, err := Encode(ctx, &buf, schema, v, opts, lastDigest)
	if err != nil {
		return nil, err
	}
	return &Message{bytes: buf.Bytes(), digest: digest}, nil
}

// DecodeFromBytes is the buffer-producing variant of Decode: it decodes
// the root value and drains every sub-stream frame from an already
// fully-received buffer, rather than an open transport. Unlike Decode, it
// blocks until the dispatcher loop has finished routing every frame, since
// there is no live transport left to deliver frames after it returns.
func DecodeFromBytes(ctx context.Context, data []byte, schema Schema, opts Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rd, err := NewReader(NewBytesReader(data))
	if err != nil {
		return nil, err
	}

	header, err := rd.ReadByte()
	if err != nil {
		return nil, translateReadErr(err)
	}
	switch header {
	case 0x01:
		schema, err = reflectBytes(rd)
		if err != nil {
			return nil, err
		}
	case 0x00:
		if schema == nil {
			return nil, protocolErrorf("session header omits inline schema but no schema was supplied")
		}
	default:
		return nil, protocolErrorf("unexpected session header byte 0x%02x", header)
	}

	demux := newDemuxSession(opts.logger())
	rc := &readContext{ctx: ctx, demux: demux, decomp: newDecompressTable()}

	v, err := schema.readValue(rc, rd)
	if err != nil {
		return nil, err
	}
	if err := demux.dispatch(ctx, rd); err != nil {
		return nil, err
	}
	return v, nil
}
