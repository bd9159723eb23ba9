package ws

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"
)

// maxMessageSize bounds one JSON-RPC message. Chat requests carry the whole
// conversation, well past the library's 32KiB default.
const maxMessageSize = 4 << 20

// webSocketStream carries JSON-RPC objects as WebSocket text messages. ctx
// bounds every read and write to the lifetime of the connection.
type webSocketStream struct {
	ctx  context.Context
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

var _ jsonrpc2.ObjectStream = (*webSocketStream)(nil)

func newWebSocketStream(ctx context.Context, conn *websocket.Conn) *webSocketStream {
	conn.SetReadLimit(maxMessageSize)
	return &webSocketStream{ctx: ctx, conn: conn}
}

func (s *webSocketStream) ReadObject(v any) error {
	_, data, err := s.conn.Read(s.ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return io.EOF
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *webSocketStream) WriteObject(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *webSocketStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
