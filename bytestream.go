package streamcodec

import (
	"io"
	"runtime"
	"sync"
)

// ByteStream is the read-side consumer handle for a decoded
// readable-stream value. It implements io.ReadCloser so a caller can treat
// a decoded byte stream exactly like any other Go byte source (spec §4.7).
type ByteStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	chunks  [][]byte
	pending []byte // left over from a partially-consumed chunk
	err     error
	closed  bool
	discard bool
}

func newByteStream() *ByteStream {
	bs := &ByteStream{}
	bs.cond = sync.NewCond(&bs.mu)
	runtime.SetFinalizer(bs, (*ByteStream).finalizeSlurp)
	return bs
}

func (bs *ByteStream) pushChunk(b []byte) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if !bs.discard {
		bs.chunks = append(bs.chunks, b)
	}
	bs.cond.Broadcast()
}

func (bs *ByteStream) pushErr(err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.err == nil {
		bs.err = err
	}
	bs.closed = true
	bs.cond.Broadcast()
}

// Read implements io.Reader, blocking until a chunk is routed, EOF, or an
// error.
func (bs *ByteStream) Read(p []byte) (int, error) {
	bs.mu.Lock()
	for len(bs.pending) == 0 {
		if len(bs.chunks) > 0 {
			bs.pending, bs.chunks = bs.chunks[0], bs.chunks[1:]
			break
		}
		if bs.closed {
			err := bs.err
			bs.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		bs.cond.Wait()
	}
	n := copy(p, bs.pending)
	bs.pending = bs.pending[n:]
	bs.mu.Unlock()
	return n, nil
}

// Close implements io.Closer: an explicit cancellation that stops
// delivering chunks to this handle while the demultiplexer keeps draining
// (and discarding) frames for its sub-stream until the producer closes it
// (spec §5's slurp-release).
func (bs *ByteStream) Close() error {
	bs.mu.Lock()
	bs.discard = true
	bs.chunks = nil
	bs.pending = nil
	bs.mu.Unlock()
	runtime.SetFinalizer(bs, nil)
	return nil
}

func (bs *ByteStream) finalizeSlurp() {
	bs.mu.Lock()
	bs.discard = true
	bs.chunks = nil
	bs.pending = nil
	bs.mu.Unlock()
}

// handleFrame implements streamHandler: each frame is
// varint(len) || bytes(len); a zero length marks EOF.
func (bs *ByteStream) handleFrame(r *Reader) (bool, error) {
	n := ReadVarint(r)
	if r.err != nil {
		err := translateReadErr(r.err)
		bs.pushErr(err)
		return true, err
	}
	if n == 0 {
		bs.pushErr(nil)
		return true, nil
	}
	chunk := r.ReadBytes(int(n))
	if r.err != nil {
		err := translateReadErr(r.err)
		bs.pushErr(err)
		return true, err
	}
	bs.pushChunk(chunk)
	return false, nil
}

func (bs *ByteStream) disconnect(err error) {
	bs.pushErr(err)
}

var _ io.ReadCloser = (*ByteStream)(nil)
