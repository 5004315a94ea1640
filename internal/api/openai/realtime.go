package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/tjfontaine/aiwire/internal/codec"
	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/stream"
	"github.com/tjfontaine/aiwire/internal/wire"
)

const realtimeBeta = "realtime=v1"

// CreateRealtimeSession mints an ephemeral realtime session.
func (c *Client) CreateRealtimeSession(ctx context.Context, req *RealtimeSessionRequest) (*model.Session, error) {
	r, err := jsonRequest("realtime.sessions.create", http.MethodPost, "/realtime/sessions", req)
	if err != nil {
		return nil, err
	}
	r.header = http.Header{"Openai-Beta": {realtimeBeta}}
	return do[*model.Session](ctx, c, r)
}

// RealtimeConn is a live realtime connection. Server events are read from
// Events; client events are written with Send. Reads and writes may run on
// different goroutines.
type RealtimeConn struct {
	Events *stream.Decoder[model.Event]

	conn *websocket.Conn
}

// ConnectRealtime opens a realtime websocket for modelName.
func (c *Client) ConnectRealtime(ctx context.Context, modelName string) (_ *RealtimeConn, err error) {
	u, err := url.Parse(c.realtimeURL)
	if err != nil {
		return nil, domain.NewTransportError("parse realtime url", err)
	}
	if modelName != "" {
		q := u.Query()
		q.Set("model", modelName)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	header.Set("Openai-Beta", realtimeBeta)
	header.Set("User-Agent", c.userAgent)
	header.Set("X-Request-ID", uuid.New().String())
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.organization != "" {
		header.Set("OpenAI-Organization", c.organization)
	}

	r := &request{operation: "realtime.connect", method: http.MethodGet, path: u.Path}
	spanCtx, span := c.startSpan(ctx, r)
	defer func() { endSpan(span, err) }()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.dialClient(),
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			if readErr != nil {
				return nil, codec.FromTransport(readErr)
			}
			return nil, codec.FromHTTPResponse(resp.StatusCode, body)
		}
		return nil, codec.FromTransport(err)
	}

	src := wire.NewWebSocketSource(conn, c.maxFrameSize)
	events := stream.NewDecoder(spanCtx, src, codec.ParseRealtimeFrame, c.decoderOptions("realtime")...)
	return &RealtimeConn{Events: events, conn: conn}, nil
}

// dialClient returns the client used for the websocket handshake. The default
// transport is used unwrapped so the upgraded body stays writable.
func (c *Client) dialClient() *http.Client {
	if c.customHTTPClient {
		return c.httpClient
	}
	return &http.Client{Transport: c.baseTransport}
}

// Send writes a client event. An event without an ID is assigned one.
func (rc *RealtimeConn) Send(ctx context.Context, ev model.ClientEvent) error {
	if ev.ClientEventID() == "" {
		ev.SetEventID("evt_" + uuid.New().String())
	}
	data, err := json.Marshal(ev)
	if err != nil {
		ce := domain.NewMalformedError(nil, err)
		ce.Message = "encode client event " + ev.ClientEventType()
		return ce
	}
	if err := rc.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return codec.FromTransport(err)
	}
	return nil
}

// Close ends the event sequence and closes the connection.
func (rc *RealtimeConn) Close() error {
	if err := rc.Events.Close(); err != nil {
		return codec.FromTransport(err)
	}
	return nil
}
