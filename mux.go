package streamcodec

import (
	"context"
	"io"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// multiplexer is the write-side half of the stream multiplexer (spec
// §4.7): it allocates sub-stream IDs, runs each streaming value's producer
// as an independent task, and serializes frame writes to the transport
// behind a single mutex, matching the "single-writer-at-a-time" discipline
// of spec §5.
type multiplexer struct {
	mu          sync.Mutex
	w           io.Writer
	nextID      uint16
	active      *xsync.Map[uint16, struct{}]
	activeCount int
	maxStreams  int
	rootFlushed bool
	pending     [][]byte
	closed      bool
	group       *errgroup.Group
	groupCtx    context.Context
	logger      *zap.Logger
}

func newMultiplexer(ctx context.Context, w io.Writer, maxStreams int, logger *zap.Logger) *multiplexer {
	g, gctx := errgroup.WithContext(ctx)
	return &multiplexer{
		w:          w,
		nextID:     1,
		active:     xsync.NewMap[uint16, struct{}](),
		maxStreams: maxStreams,
		group:      g,
		groupCtx:   gctx,
		logger:     logger,
	}
}

// allocate reserves a fresh 16-bit stream ID, skipping 0 and retrying on
// collision -- the Rust original's `StreamId` allocator policy (spec.md
// supplement, §3 of SPEC_FULL).
func (m *multiplexer) allocate() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxStreams > 0 && m.activeCount >= m.maxStreams {
		return 0, ErrTooManyStreams
	}
	start := m.nextID
	for {
		id := m.nextID
		if m.nextID == 0xFFFF {
			m.nextID = 1
		} else {
			m.nextID++
		}
		if id != 0 {
			if _, loaded := m.active.LoadOrStore(id, struct{}{}); !loaded {
				m.activeCount++
				return id, nil
			}
		}
		if m.nextID == start {
			return 0, ErrTooManyStreams
		}
	}
}

// spawn runs fn as id's producer task under the multiplexer's errgroup,
// releasing id's slot once fn returns regardless of outcome.
func (m *multiplexer) spawn(id uint16, fn func(ctx context.Context) error) {
	m.group.Go(func() error {
		defer m.release(id)
		err := fn(m.groupCtx)
		if err != nil {
			m.logger.Warn("sub-stream producer failed", zap.Uint16("stream_id", id), zap.Error(err))
		}
		return err
	})
}

// writeFrame serializes one [id_high][id_low][payload] frame, queuing it
// behind the root buffer until flushRoot has been called (spec §4.7's
// pending queue, which guarantees root bytes precede every sub-stream
// byte).
func (m *multiplexer) writeFrame(id uint16, payload []byte) error {
	frame := make([]byte, 2+len(payload))
	frame[0] = byte(id >> 8)
	frame[1] = byte(id)
	copy(frame[2:], payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSessionClosed
	}
	if !m.rootFlushed {
		m.pending = append(m.pending, frame)
		return nil
	}
	_, err := m.w.Write(frame)
	return err
}

// flushRoot marks the root buffer as written and drains any frames that
// queued up while it was still in flight.
func (m *multiplexer) flushRoot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootFlushed = true
	for _, frame := range m.pending {
		if _, err := m.w.Write(frame); err != nil {
			return err
		}
	}
	m.pending = nil
	if m.activeCount == 0 {
		m.closeLocked()
	}
	return nil
}

// release decrements the active sub-stream count; quiescence (zero active
// sub-streams once the root has flushed) closes the transport.
func (m *multiplexer) release(id uint16) {
	m.active.Delete(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCount--
	if m.activeCount == 0 && m.rootFlushed {
		m.closeLocked()
	}
}

func (m *multiplexer) closeLocked() {
	if m.closed {
		return
	}
	m.closed = true
	if c, ok := m.w.(io.Closer); ok {
		c.Close()
	}
}

// wait blocks until every spawned producer task has returned, surfacing
// the first error any of them reported.
func (m *multiplexer) wait() error {
	return m.group.Wait()
}

// demuxSession is the read-side half of the stream multiplexer. Handlers
// are registered by sub-stream ID while the root value is being decoded;
// the dispatcher loop started afterward hands each routed frame's payload
// to its registered handler, which owns the shared Reader until it has
// consumed exactly one frame's worth of data (spec §4.3's single-borrower
// discipline).
type demuxSession struct {
	mu       sync.Mutex
	handlers map[uint16]streamHandler
	usages   int
	aborted  bool
	abortErr error
	logger   *zap.Logger
}

// streamHandler consumes exactly one routed frame's payload from r and
// reports whether its sub-stream is now fully drained (in which case it is
// deregistered and usages decrements).
type streamHandler interface {
	handleFrame(r *Reader) (done bool, err error)
	disconnect(err error)
}

func newDemuxSession(logger *zap.Logger) *demuxSession {
	return &demuxSession{handlers: make(map[uint16]streamHandler), logger: logger}
}

// register adds h under id and increments usages; called while decoding
// the root value, before the dispatcher loop starts.
func (d *demuxSession) register(id uint16, h streamHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
	d.usages++
}

// releaseHandle drops id's registration early (explicit cancellation, as opposed
// to natural completion via handleFrame returning done=true).
func (d *demuxSession) releaseHandle(id uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[id]; !ok {
		return
	}
	delete(d.handlers, id)
	d.usages--
}

// dispatch runs the read-side frame loop until usages reaches zero, ctx is
// cancelled, or r is exhausted (spec §4.8's "spawn the dispatcher loop").
// ctx cancellation does not interrupt a read already in flight on its
// own -- the caller is expected to close r out-of-band (Decode does this
// via its watcher goroutine) to unblock that read; the check here only
// stops the loop from starting another one afterward.
func (d *demuxSession) dispatch(ctx context.Context, r *Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			d.abortAll(err)
			return err
		}

		d.mu.Lock()
		if d.usages <= 0 {
			d.mu.Unlock()
			return nil
		}
		d.mu.Unlock()

		var idBuf [2]byte
		idBuf[0], _ = r.ReadByte()
		if r.err != nil {
			err := firstErr(ctx, translateReadErr(r.err))
			d.abortAll(err)
			return err
		}
		idBuf[1], _ = r.ReadByte()
		if r.err != nil {
			err := firstErr(ctx, translateReadErr(r.err))
			d.abortAll(err)
			return err
		}
		id := uint16(idBuf[0])<<8 | uint16(idBuf[1])

		d.mu.Lock()
		h, ok := d.handlers[id]
		d.mu.Unlock()
		if !ok {
			return protocolErrorf("routing frame for unregistered stream id %d", id)
		}

		done, err := h.handleFrame(r)
		if err != nil {
			return err
		}
		if done {
			d.mu.Lock()
			delete(d.handlers, id)
			d.usages--
			d.mu.Unlock()
		}
	}
}

// abortAll delivers err to every still-registered handler's disconnect
// path (spec §4.7's cancellation behavior: "surfaces out-of-data through
// every pending handler's disconnect callback").
func (d *demuxSession) abortAll(err error) {
	d.mu.Lock()
	d.aborted = true
	d.abortErr = err
	handlers := make([]streamHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.handlers = make(map[uint16]streamHandler)
	d.usages = 0
	d.mu.Unlock()
	for _, h := range handlers {
		h.disconnect(err)
	}
}
