package wire

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
	"nhooyr.io/websocket"

	"github.com/tjfontaine/aiwire/internal/domain"
)

// WebSocketSource reads realtime events off a websocket connection. Every text
// message is one event block; a normal closure is the terminator.
type WebSocketSource struct {
	conn   *websocket.Conn
	frames int

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketSource returns a source that takes ownership of conn.
func NewWebSocketSource(conn *websocket.Conn, maxFrameSize int) *WebSocketSource {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	conn.SetReadLimit(int64(maxFrameSize))
	return &WebSocketSource{conn: conn}
}

// Next reads the next message.
func (s *WebSocketSource) Next(ctx context.Context) (Frame, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return Frame{Kind: FrameTerminator}, nil
		}
		return Frame{}, s.readError(ctx, err)
	}

	s.frames++
	if typ != websocket.MessageText {
		malformed := domain.NewMalformedError(data, nil)
		malformed.Message = "unexpected binary message"
		return Frame{}, malformed
	}
	return Frame{
		Kind:    FrameEventBlock,
		Label:   gjson.GetBytes(data, "type").String(),
		Payload: data,
	}, nil
}

func (s *WebSocketSource) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.NewTransportError("realtime read canceled", ctxErr)
	}
	if s.frames == 0 {
		return domain.NewTransportError("read realtime connection", err)
	}
	return domain.NewTruncatedError(nil, err)
}

// Close performs a normal closure handshake.
func (s *WebSocketSource) Close() error {
	s.closeOnce.Do(func() {
		err := s.conn.Close(websocket.StatusNormalClosure, "")
		if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// Conn returns the underlying connection for writing client events.
func (s *WebSocketSource) Conn() *websocket.Conn {
	return s.conn
}
