package streamcodec

import (
	"bufio"
	"io"
)

type reader interface {
	io.Reader
	io.ByteReader
	io.Closer
}

// Reader wraps the concrete byte source a Schema.readValue call pulls from.
// It tracks the first error encountered so call sites can check it once
// after a run of reads instead of after every individual ReadX call.
//
// A session's root value is always read from a *BytesReader over an
// already fully-received buffer (DecodeFromBytes) or a *Reader built with
// NewReaderSize over the live transport (Decode). Both are handled
// directly by NewReaderSize; there is no nested-Reader or already-buffered
// case to guard against, since nothing in this package re-wraps a Reader
// it already built.
type Reader struct {
	r     reader
	count int64 // total bytes read
	err   error // first error encountered.
}

// NewReaderSize creates a new Reader. If r is already a *BytesReader, its
// buffer is used directly. Otherwise r is wrapped in a bufio.Reader of the
// given size, which is the path Decode takes when reading from a live
// transport.
func NewReaderSize(r io.Reader, size int) (*Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}

	if br, ok := r.(*BytesReader); ok {
		return &Reader{r: br}, nil
	}

	if size == 0 {
		size = 4096
	} else if size < 16 {
		return nil, ErrSizeTooSmall
	}
	return &Reader{r: &bufioReaderAdapter{Reader: bufio.NewReaderSize(r, size), src: r}}, nil
}

// NewReader creates a new Reader with a default buffer size.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, 0)
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	return r.r.Close()
}

// Read implements the io.Reader interface.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.r.Read(p)
	r.count += int64(n)
	r.setError(err)
	return n, r.err
}

func (r *Reader) Err() error { return r.err }

// setError records the first non-nil error.
func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// Result returns the total bytes read and the final error state.
func (r *Reader) Result() (int64, error) {
	return r.count, r.err
}

// readFull is an internal helper to read an exact number of bytes.
func (r *Reader) readFull(n int) []byte {
	if r.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			// To provide a more specific error for callers;
			// a partial read is different from a clean end-of-stream.
			r.err = io.ErrUnexpectedEOF
		} else {
			r.err = err
		}
		return nil
	}
	return buf
}

// ReadBytes reads n bytes and returns a new byte slice.
func (r *Reader) ReadBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	return r.readFull(n)
}

// --- Primitive Read Operations ---

func (r *Reader) ReadBool(dest *bool) {
	if r.err != nil {
		return
	}
	b, err := r.r.ReadByte()
	if err == nil {
		r.count++
		*dest = b != 0
	} else {
		r.err = err
	}
}

func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	b, err := r.r.ReadByte()
	if err == nil {
		r.count++
	} else {
		r.err = err
	}
	return b, err
}

func (r *Reader) ReadUint8(dest *uint8) {
	if r.err != nil {
		return
	}
	b, err := r.r.ReadByte()
	if err == nil {
		r.count++
		*dest = b
	} else {
		r.err = err
	}
}
