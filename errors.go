package streamcodec

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNilIO indicates that NewReader/NewWriter was called with an nil interface
	ErrNilIO = errors.New("streamcodec: NewReader/NewWriter called with a nil io.Reader/io.Writer")

	// ErrSizeTooSmall indicates a size conflict with bufio
	ErrSizeTooSmall = errors.New("streamcodec: NewReaderSize with a size smaller than 16 conflict with bufio")

	// ErrValidation indicates a value does not satisfy its schema's predicate. Raised at
	// encode time before any bytes are written; never session-fatal.
	ErrValidation = errors.New("streamcodec: validation")

	// ErrProtocol indicates a decode-side violation of the wire format (unknown type tag,
	// bad stream flag, union index out of range, malformed nullable/optional flag). Fatal
	// for the session.
	ErrProtocol = errors.New("streamcodec: protocol")

	// ErrOutOfData indicates the transport ended while a reader expected more bytes.
	// Delivered to every registered stream handler's disconnect path. Fatal for the session.
	ErrOutOfData = errors.New("streamcodec: out of data")

	// ErrInternal indicates an invariant violation such as a size mismatch between the
	// plan and emit phases, or a compression-table index out of range. Indicates a bug.
	ErrInternal = errors.New("streamcodec: internal")

	// ErrCyclicValue indicates a cyclic object graph was detected during schema inference
	// for an any() value, which cannot terminate on a cycle. Compression-table
	// canonicalization performs no cycle check of its own.
	ErrCyclicValue = errors.New("streamcodec: cyclic value")

	// ErrSessionClosed indicates a frame write was attempted after the multiplexer closed
	// its transport, which it does on quiescence (every sub-stream finished after the
	// root buffer was flushed).
	ErrSessionClosed = errors.New("streamcodec: session closed")

	// ErrStreamCancelled indicates a consumer handle was cancelled before its sub-stream
	// reached natural completion.
	ErrStreamCancelled = errors.New("streamcodec: stream cancelled")

	// ErrTooManyStreams indicates the 16-bit stream-ID space was exhausted within a
	// single session, or Options.MaxConcurrentStreams sub-streams are already open.
	ErrTooManyStreams = errors.New("streamcodec: too many concurrent streams")
)

// protocolOrOutOfData classifies a low-level I/O error as ErrOutOfData when
// it represents an unexpected end of stream, and as ErrProtocol otherwise.
// This is the single place that decides whether a truncated read is a
// transport-level "ran out of bytes" condition or a framing bug.
func protocolOrOutOfData(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrOutOfData, err)
	}
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}
