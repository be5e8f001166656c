package streamcodec

import (
	"context"
	"fmt"
	"net"

	"github.com/coder/websocket"
)

// WebsocketTransport adapts a *websocket.Conn to the io.ReadWriteCloser the
// session layer expects (spec §1: "any ordered byte sink/source is
// acceptable"). Sub-stream frames and root bytes alike are opaque to the
// transport; a WebSocket connection carries them as a single binary
// message stream via websocket.NetConn, so Encode/Decode see the same
// ordered byte sequence they would over a TCP socket.
type WebsocketTransport struct {
	net.Conn
	ws *websocket.Conn
}

// DialWebsocketTransport dials url and wraps the resulting connection for
// use as the w/r argument to Encode/Decode. Grounded on the teacher pack's
// agentflow ws_adapter.go dial-and-wrap shape, adapted from per-message
// JSON framing to a raw binary byte stream since this protocol is
// self-delimiting on its own (varint lengths, routing frame IDs) and needs
// no message boundaries from the transport.
func DialWebsocketTransport(ctx context.Context, url string) (*WebsocketTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("streamcodec: websocket dial: %w", err)
	}
	return &WebsocketTransport{
		Conn: websocket.NetConn(context.Background(), conn, websocket.MessageBinary),
		ws:   conn,
	}, nil
}

// AcceptWebsocketTransport wraps an already-accepted server-side
// *websocket.Conn (e.g. from websocket.Accept) the same way
// DialWebsocketTransport wraps a client-side dial.
func AcceptWebsocketTransport(conn *websocket.Conn) *WebsocketTransport {
	return &WebsocketTransport{
		Conn: websocket.NetConn(context.Background(), conn, websocket.MessageBinary),
		ws:   conn,
	}
}

// Close closes the underlying WebSocket with a normal-closure status,
// rather than the abrupt net.Conn.Close the embedded field would give,
// so a well-behaved peer sees a clean close frame instead of a reset.
func (t *WebsocketTransport) Close() error {
	return t.ws.Close(websocket.StatusNormalClosure, "streamcodec: session closed")
}
