package streamcodec

import "context"

// planContext carries the per-serialize-call state threaded through every
// Schema.planValue call: the compression scratchpad (spec §4.5) and the
// multiplexer used by streaming nodes to reserve a sub-stream ID and spawn
// their producer task (spec §4.2, §4.7). It is created once per Encode
// call and shared by the producer tasks spawned during emit, which keep
// using it to plan and emit their frames until they finish.
type planContext struct {
	ctx      context.Context
	mux      *multiplexer
	compress *compressTable
}

// planLeaf is a convenience for schemas whose size does not depend on
// recursing into planContext (no streaming descendants, no compression
// table bookkeeping beyond what the caller already did).
func planLeaf(size int, write func(w *Writer)) (int, func(w *Writer), error) {
	return size, write, nil
}

// planFixedByte plans a schema that always writes exactly one literal byte.
func planFixedByte(b byte) (int, func(w *Writer), error) {
	return planLeaf(1, func(w *Writer) { w.WriteByte(b) })
}

// planAndEmitToBytes runs schema's two-phase write against v and returns
// the emitted bytes directly, for producer tasks that build one sub-stream
// frame at a time off the main root buffer (spec §4.2: only the root
// value gets a single preallocated buffer; frames are sized and written
// independently once their value becomes available).
func planAndEmitToBytes(pc *planContext, s Schema, v any) ([]byte, error) {
	size, emit, err := s.planValue(pc, v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	w, werr := NewWriter(NewBytesWriter(buf))
	if werr != nil {
		return nil, werr
	}
	emit(w)
	if w.Err() != nil {
		return nil, w.Err()
	}
	return buf, nil
}
