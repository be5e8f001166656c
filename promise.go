package streamcodec

import (
	"context"
	"sync"
)

// PromiseSource is what a caller supplies as the value of a promise(T)
// schema on the write side: something that eventually resolves to a value
// of T or rejects with an error (spec §4.7).
type PromiseSource interface {
	Await(ctx context.Context) (any, error)
}

// promiseSourceFunc adapts a plain function into a PromiseSource.
type promiseSourceFunc func(ctx context.Context) (any, error)

func (f promiseSourceFunc) Await(ctx context.Context) (any, error) { return f(ctx) }

// PromiseFrom wraps fn as a PromiseSource.
func PromiseFrom(fn func(ctx context.Context) (any, error)) PromiseSource {
	return promiseSourceFunc(fn)
}

// Promise is the read-side consumer handle for a decoded promise(T) value.
// Await blocks until the multiplexer's dispatcher loop delivers the single
// resolution frame for this sub-stream.
type Promise struct {
	id    uint16
	demux *demuxSession
	rc    *readContext
	elem  Schema
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newPromiseHandle(id uint16, demux *demuxSession, rc *readContext, elem Schema) *Promise {
	return &Promise{id: id, demux: demux, rc: rc, elem: elem, done: make(chan struct{})}
}

// Await blocks until the promise resolves, rejects, or ctx is cancelled.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel marks this handle as explicitly cancelled: Await returns
// ErrStreamCancelled immediately rather than blocking for the resolution
// frame. The registration itself stays live -- the dispatcher still needs
// to consume that one frame off the wire when it eventually arrives, it
// simply discards the result (spec §5: a dropped handle "continues to
// route and discard frames destined for that ID until the sub-stream
// closes").
func (p *Promise) Cancel() {
	p.resolve(nil, ErrStreamCancelled)
}

func (p *Promise) resolve(v any, err error) {
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
	})
}

// handleFrame implements streamHandler: a promise's sub-stream is exactly
// one frame, [flag, body], after which it is always done.
func (p *Promise) handleFrame(r *Reader) (bool, error) {
	flag, err := r.ReadByte()
	if err != nil {
		err = translateReadErr(err)
		p.resolve(nil, err)
		return true, err
	}
	switch flag {
	case 1:
		v, verr := p.elem.readValue(p.rc, r)
		if verr != nil {
			p.resolve(nil, verr)
			return true, verr
		}
		p.resolve(v, nil)
		return true, nil
	case 0:
		serr, rerr := readSerializableError(p.rc, r)
		if rerr != nil {
			p.resolve(nil, rerr)
			return true, rerr
		}
		p.resolve(nil, serr)
		return true, nil
	default:
		err := protocolErrorf("invalid promise flag byte 0x%02x", flag)
		p.resolve(nil, err)
		return true, err
	}
}

func (p *Promise) disconnect(err error) {
	p.resolve(nil, err)
}
