package streamcodec

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// compressTable is the write-side compression scratchpad (spec §4.5): an
// identity map from already-seen values to their assigned index, and,
// when the deep flag is set, a canonical-form map for structural dedup of
// non-streaming values. One instance lives for the duration of a single
// Encode call.
type compressTable struct {
	mu        sync.Mutex
	nextIndex int
	plainIdx  map[any]int
	ptrIdx    map[uintptr]int
	deep      map[string]int
	prefix    string
	cbor      cbor.EncMode
}

func newCompressTable() *compressTable {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		enc, _ = cbor.EncOptions{}.EncMode()
	}
	return &compressTable{
		plainIdx: make(map[any]int),
		ptrIdx:   make(map[uintptr]int),
		deep:     make(map[string]int),
		prefix:   uuid.NewString(),
		cbor:     enc,
	}
}

// identityKey derives a lookup key for v: slice/map/pointer/chan/func
// kinds (everything in the value universe that isn't a plain leaf) are
// deduped by their backing data pointer, since their dynamic Go type isn't
// comparable; everything else is deduped by ordinary value equality.
func identityKey(v any) (plain any, ptr uintptr, usesPtr bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Ptr, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			return v, 0, false
		}
		return nil, rv.Pointer(), true
	default:
		return v, 0, false
	}
}

func (t *compressTable) lookupLocked(v any) (idx int, hit bool, key any, ptr uintptr, usesPtr bool) {
	key, ptr, usesPtr = identityKey(v)
	if usesPtr {
		idx, hit = t.ptrIdx[ptr]
	} else {
		idx, hit = t.plainIdx[key]
	}
	return
}

func (t *compressTable) assignLocked(key any, ptr uintptr, usesPtr bool, idx int) {
	if usesPtr {
		t.ptrIdx[ptr] = idx
	} else {
		t.plainIdx[key] = idx
	}
}

// plan implements the compression-table write algorithm (spec §4.5).
func (t *compressTable) plan(pc *planContext, inner Schema, deep bool, v any) (int, func(w *Writer), error) {
	t.mu.Lock()
	idx, hit, key, ptr, usesPtr := t.lookupLocked(v)
	if hit {
		t.mu.Unlock()
		return planCompressionRef(idx)
	}

	newIndex := t.nextIndex
	t.nextIndex++
	t.assignLocked(key, ptr, usesPtr, newIndex)

	if deep && !isStreamingValue(v) {
		if canon, cerr := t.canonicalize(v); cerr == nil {
			if hitIdx, ok := t.deep[canon]; ok {
				t.assignLocked(key, ptr, usesPtr, hitIdx)
				t.mu.Unlock()
				return planCompressionRef(hitIdx)
			}
			t.deep[canon] = newIndex
		}
	}
	t.mu.Unlock()

	size, emit, err := inner.planValue(pc, v)
	if err != nil {
		return 0, nil, err
	}
	return VarintSize(0) + size, func(w *Writer) {
		WriteVarint(w, 0)
		emit(w)
	}, nil
}

func planCompressionRef(idx int) (int, func(w *Writer), error) {
	ref := uint64(idx) + 1
	return planLeaf(VarintSize(ref), func(w *Writer) { WriteVarint(w, ref) })
}

// canonicalize builds the per-session-prefixed canonical encoding used for
// deep structural dedup (spec §4.5). It substitutes opaque sentinels for
// streaming sub-values so a canonicalization attempt on a composite never
// blocks on consuming a stream.
func (t *compressTable) canonicalize(v any) (string, error) {
	enc, err := t.cbor.Marshal(canonicalProjection(v))
	if err != nil {
		return "", err
	}
	return t.prefix + string(enc), nil
}

func canonicalProjection(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case BigInt:
		return fmt.Sprintf("%dn", uint64(x))
	case Uint8Array:
		return []byte(x)
	case ByteBuffer:
		return []byte(x)
	case DateTime:
		return time.Time(x).UTC().Format(time.RFC3339Nano)
	case FloatString:
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = canonicalProjection(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = canonicalProjection(e)
		}
		return out
	case Record:
		out := make(map[string]any, len(x))
		for _, kv := range x {
			if k, ok := kv.Key.(string); ok {
				out[k] = canonicalProjection(kv.Value)
			}
		}
		return out
	case MapValue:
		pairs := make([]any, len(x))
		for i, kv := range x {
			pairs[i] = []any{canonicalProjection(kv.Key), canonicalProjection(kv.Value)}
		}
		return map[string]any{"__map__": pairs}
	case *ByteStream:
		return "[ReadableStream]"
	case *Iterator, IteratorSource:
		return "[Iterable]"
	case *Promise, PromiseSource:
		return "[Promise]"
	default:
		return x
	}
}

// isStreamingValue reports whether v is a streaming node value, which
// compression-table deep dedup must skip (spec §4.5: "if the constructor's
// deep flag is set and the value is not a stream/iterator").
func isStreamingValue(v any) bool {
	switch v.(type) {
	case *Promise, PromiseSource, *Iterator, IteratorSource, *ByteStream, io.Reader:
		return true
	default:
		return false
	}
}

// decompressTable is the read-side parallel vector of materialized
// compression-table entries (spec §4.5).
type decompressTable struct {
	mu      sync.Mutex
	entries []any
}

func newDecompressTable() *decompressTable { return &decompressTable{} }

func (t *decompressTable) read(rc *readContext, inner Schema, r *Reader) (any, error) {
	ref := ReadVarint(r)
	if r.err != nil {
		return nil, translateReadErr(r.err)
	}
	if ref == 0 {
		v, err := inner.readValue(rc, r)
		if err != nil {
			return nil, err
		}
		view := installRecorders(v)
		t.mu.Lock()
		t.entries = append(t.entries, view)
		t.mu.Unlock()
		return cloneTree(view), nil
	}
	idx := int(ref - 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.entries) {
		return nil, internalErrorf("compression-table index %d out of range (n=%d)", idx, len(t.entries))
	}
	return cloneTree(t.entries[idx]), nil
}

// valueRecorder records values pulled from src into an in-memory log so
// independent clones can replay them, giving a once-only streaming source
// the copy-safe re-materialization semantics spec §4.5 requires.
type valueRecorder struct {
	mu   sync.Mutex
	src  func() (any, error)
	log  []any
	done bool
	err  error
}

func newValueRecorder(src func() (any, error)) *valueRecorder {
	return &valueRecorder{src: src}
}

func (r *valueRecorder) at(i int) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i >= len(r.log) && !r.done {
		v, err := r.src()
		if err != nil {
			r.done = true
			if err != io.EOF {
				r.err = err
			}
			break
		}
		r.log = append(r.log, v)
	}
	if i < len(r.log) {
		return r.log[i], nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, io.EOF
}

// byteStreamRecorder is the copy-safe, re-cloneable stand-in installed for
// a *ByteStream found inside a compression-table entry.
type byteStreamRecorder struct {
	rec     *valueRecorder
	idx     int
	pending []byte
}

func newByteStreamRecorder(bs *ByteStream) *byteStreamRecorder {
	rec := newValueRecorder(func() (any, error) {
		buf := make([]byte, 4096)
		n, err := bs.Read(buf)
		if n > 0 {
			return append([]byte(nil), buf[:n]...), nil
		}
		return nil, err
	})
	return &byteStreamRecorder{rec: rec}
}

func (b *byteStreamRecorder) Clone() *byteStreamRecorder { return &byteStreamRecorder{rec: b.rec} }

func (b *byteStreamRecorder) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		chunk, err := b.rec.at(b.idx)
		if err != nil {
			return 0, err
		}
		b.idx++
		b.pending, _ = chunk.([]byte)
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *byteStreamRecorder) Close() error { return nil }

var _ io.Reader = (*byteStreamRecorder)(nil)

// iteratorRecorder is the copy-safe, re-cloneable stand-in installed for
// an *Iterator found inside a compression-table entry.
type iteratorRecorder struct {
	rec *valueRecorder
	idx int
}

func newIteratorRecorder(it *Iterator) *iteratorRecorder {
	rec := newValueRecorder(func() (any, error) { return it.Next(context.Background()) })
	return &iteratorRecorder{rec: rec}
}

func (i *iteratorRecorder) Clone() *iteratorRecorder { return &iteratorRecorder{rec: i.rec} }

func (i *iteratorRecorder) Next(ctx context.Context) (any, error) {
	v, err := i.rec.at(i.idx)
	i.idx++
	return v, err
}

var _ IteratorSource = (*iteratorRecorder)(nil)

// installRecorders walks a freshly-decoded value tree once, replacing any
// *ByteStream/*Iterator leaf with its recorder-backed stand-in, so later
// references into the compression table can be served by cloneTree
// without touching the now-exhausted original handle.
func installRecorders(v any) any {
	switch x := v.(type) {
	case *ByteStream:
		return newByteStreamRecorder(x)
	case *Iterator:
		return newIteratorRecorder(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = installRecorders(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = installRecorders(e)
		}
		return out
	case Record:
		out := make(Record, len(x))
		for i, kv := range x {
			out[i] = KV{Key: kv.Key, Value: installRecorders(kv.Value)}
		}
		return out
	case MapValue:
		out := make(MapValue, len(x))
		for i, kv := range x {
			out[i] = KV{Key: installRecorders(kv.Key), Value: installRecorders(kv.Value)}
		}
		return out
	default:
		return v
	}
}

// cloneTree produces one fresh copy-safe view of an installRecorders tree:
// recorder stand-ins are cloned, composites are rebuilt around cloned
// children, and ordinary leaves are shared as-is since they are immutable
// once decoded.
func cloneTree(v any) any {
	switch x := v.(type) {
	case *byteStreamRecorder:
		return x.Clone()
	case *iteratorRecorder:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneTree(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneTree(e)
		}
		return out
	case Record:
		out := make(Record, len(x))
		for i, kv := range x {
			out[i] = KV{Key: kv.Key, Value: cloneTree(kv.Value)}
		}
		return out
	case MapValue:
		out := make(MapValue, len(x))
		for i, kv := range x {
			out[i] = KV{Key: cloneTree(kv.Key), Value: cloneTree(kv.Value)}
		}
		return out
	default:
		return v
	}
}
