package streamcodec

import "context"

// readContext carries the per-deserialize-call state threaded through
// every Schema.readValue call: the compression table's materialized-value
// vector (spec §4.5) and the demultiplexing session used by streaming
// nodes to register a consumer handle for their sub-stream ID (spec §4.7).
type readContext struct {
	ctx    context.Context
	demux  *demuxSession
	decomp *decompressTable
}

// translateReadErr maps a Reader error (already normalized to
// io.ErrUnexpectedEOF by readFull on a short read) into the session's
// ErrOutOfData taxonomy.
func translateReadErr(err error) error {
	if err == nil {
		return nil
	}
	return protocolOrOutOfData(err)
}
