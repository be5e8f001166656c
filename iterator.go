package streamcodec

import (
	"context"
	"io"
	"runtime"
	"sync"
)

// IteratorSource is what a caller supplies as the value of an iterator(T)
// schema on the write side. Next returns io.EOF to end the stream
// normally, or any other error to end it with a serializable error (spec
// §4.7).
type IteratorSource interface {
	Next(ctx context.Context) (any, error)
}

type iteratorSourceFunc func(ctx context.Context) (any, error)

func (f iteratorSourceFunc) Next(ctx context.Context) (any, error) { return f(ctx) }

// IteratorFrom wraps fn as an IteratorSource.
func IteratorFrom(fn func(ctx context.Context) (any, error)) IteratorSource {
	return iteratorSourceFunc(fn)
}

type iterResult struct {
	value any
	err   error
}

// Iterator is the read-side consumer handle for a decoded iterator(T)
// value. Next yields successive T values until io.EOF or a
// *SerializableError.
type Iterator struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []iterResult
	closed  bool
	discard bool

	id    uint16
	demux *demuxSession
	rc    *readContext
	elem  Schema
}

func newIteratorHandle(id uint16, demux *demuxSession, rc *readContext, elem Schema) *Iterator {
	it := &Iterator{id: id, demux: demux, rc: rc, elem: elem}
	it.cond = sync.NewCond(&it.mu)
	runtime.SetFinalizer(it, (*Iterator).finalizeSlurp)
	return it
}

// Next blocks until the next value is available, the stream ends, or ctx
// is cancelled.
func (it *Iterator) Next(ctx context.Context) (any, error) {
	it.mu.Lock()
	for len(it.queue) == 0 && !it.closed && !it.discard {
		if ctx.Err() != nil {
			it.mu.Unlock()
			return nil, ctx.Err()
		}
		waitCh := make(chan struct{})
		stop := false
		go func() {
			it.mu.Lock()
			for len(it.queue) == 0 && !it.closed && !it.discard && !stop {
				it.cond.Wait()
			}
			it.mu.Unlock()
			close(waitCh)
		}()
		it.mu.Unlock()
		select {
		case <-waitCh:
		case <-ctx.Done():
			it.mu.Lock()
			stop = true
			it.cond.Broadcast() // unblock the waiter goroutine above
			it.mu.Unlock()
			<-waitCh
			return nil, ctx.Err()
		}
		it.mu.Lock()
	}
	defer it.mu.Unlock()
	if it.discard {
		return nil, ErrStreamCancelled
	}
	if len(it.queue) > 0 {
		res := it.queue[0]
		it.queue = it.queue[1:]
		return res.value, res.err
	}
	return nil, io.EOF
}

// Cancel marks this handle as explicitly cancelled: further Next calls
// return ErrStreamCancelled immediately. The sub-stream registration stays
// live so the demultiplexer keeps routing (and discarding) its frames
// until the producer naturally closes it (spec §5's slurp-release).
func (it *Iterator) Cancel() {
	it.mu.Lock()
	it.discard = true
	it.queue = nil
	it.mu.Unlock()
	runtime.SetFinalizer(it, nil)
}

// finalizeSlurp is the GC finalizer for a forgotten (never explicitly
// cancelled) handle: it puts the handle into the same discard mode Cancel
// does, so abandoned frames are drained rather than piling up undelivered
// (spec §4.7: finalization triggers a slurp release).
func (it *Iterator) finalizeSlurp() {
	it.mu.Lock()
	it.discard = true
	it.queue = nil
	it.mu.Unlock()
}

func (it *Iterator) push(res iterResult, terminal bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if terminal {
		it.closed = true
	}
	if !it.discard {
		it.queue = append(it.queue, res)
	}
	it.cond.Broadcast()
}

// handleFrame implements streamHandler.
func (it *Iterator) handleFrame(r *Reader) (bool, error) {
	flag, err := r.ReadByte()
	if err != nil {
		e := translateReadErr(err)
		it.push(iterResult{err: e}, true)
		return true, e
	}
	switch flag {
	case 1:
		v, verr := it.elem.readValue(it.rc, r)
		if verr != nil {
			it.push(iterResult{err: verr}, true)
			return true, verr
		}
		it.push(iterResult{value: v}, false)
		return false, nil
	case 0:
		it.push(iterResult{err: io.EOF}, true)
		return true, nil
	case 2:
		serr, rerr := readSerializableError(it.rc, r)
		if rerr != nil {
			it.push(iterResult{err: rerr}, true)
			return true, rerr
		}
		it.push(iterResult{err: serr}, true)
		return true, nil
	default:
		e := protocolErrorf("invalid iterator flag byte 0x%02x", flag)
		it.push(iterResult{err: e}, true)
		return true, e
	}
}

func (it *Iterator) disconnect(err error) {
	it.push(iterResult{err: err}, true)
}
