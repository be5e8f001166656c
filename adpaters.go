package streamcodec

import (
	"bufio"
	"io"
)

type bufioWriterAdapter struct{ *bufio.Writer }

// bufioReaderAdapter wraps a bufio.Reader over some arbitrary io.Reader
// src. It keeps src around purely so Close can reach it: bufio.Reader
// itself has no Close, but closing src is how a blocked Read gets
// unblocked when ctx is cancelled out from under Decode's dispatcher
// loop (session.go's Decode watches ctx and calls Reader.Close).
type bufioReaderAdapter struct {
	*bufio.Reader
	src io.Reader
}

func (r *bufioReaderAdapter) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *bufioWriterAdapter) Close() error { return nil }
