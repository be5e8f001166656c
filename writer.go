package streamcodec

import (
	"bufio"
	"io"
)

type writer interface {
	io.Writer
	io.ByteWriter
	io.StringWriter
	io.Closer
	Flush() error
}

// Writer wraps the concrete byte sink a Schema.planValue emit closure
// writes into. It tracks the first error encountered so the plan/emit pair
// can check it once after emit returns instead of threading an error
// return through every WriteX call.
//
// Every emit closure writes into a *BytesWriter over a buffer preallocated
// from the size planValue already computed: Encode's root buffer
// (session.go) or a sub-stream frame's buffer (plan.go's
// planAndEmitToBytes) — there is no nested-Writer or already-buffered case to
// guard against, since nothing in this package re-wraps a Writer it
// already built.
type Writer struct {
	w     writer
	count int64 // total bytes written
	err   error // first error encountered. Subsequent writes become no-ops.
}

// NewWriterSize creates a new Writer. If w is already a *BytesWriter, it is
// used directly. Otherwise w is wrapped in a bufio.Writer of the given
// size.
func NewWriterSize(w io.Writer, size int) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}

	if bw, ok := w.(*BytesWriter); ok {
		return &Writer{w: bw}, nil
	}

	return &Writer{w: &bufioWriterAdapter{bufio.NewWriterSize(w, size)}}, nil
}

// NewWriter creates a new Writer with a default buffer size.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterSize(w, 0)
}

// Close closes the underlying writer if it implements io.Closer.
func (w *Writer) Close() error {
	return w.w.Close()
}

// Write implements the io.Writer interface.
func (w *Writer) Write(buf []byte) (int, error) {
	if buf == nil || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(buf)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

// WriteString implements the io.StringWriter interface.
func (w *Writer) WriteString(str string) (int, error) {
	if str == "" || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.WriteString(str)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

func (w *Writer) Err() error { return w.err }

// setError records the first non-nil error.
// This preserves the root cause of a failure chain instead of a later,
// less relevant error.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Result flushes the buffer and returns the final count and error state.
func (w *Writer) Result() (int64, error) {
	w.Flush()
	return w.count, w.err
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	err := w.w.Flush()
	w.setError(err)
	return err
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(buf []byte) {
	if buf == nil || w.err != nil {
		return
	}
	_, _ = w.Write(buf)
}

// --- Primitive Write Operations ---

func (w *Writer) WriteBool(v bool) {
	if w.err != nil {
		return
	}
	var err error
	if v {
		err = w.w.WriteByte(1)
	} else {
		err = w.w.WriteByte(0)
	}
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
}

func (w *Writer) WriteByte(v byte) error {
	if w.err != nil {
		return w.err
	}
	err := w.w.WriteByte(v)
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
	return err
}

func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	err := w.w.WriteByte(v)
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
}
