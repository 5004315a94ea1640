package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"nhooyr.io/websocket"

	"github.com/tjfontaine/aiwire/internal/model"
)

// realtimeSession is the server side of one realtime connection.
type realtimeSession struct {
	conn   *websocket.Conn
	logger *slog.Logger
	delay  time.Duration
	limits RateLimits

	seq      int
	lastText string
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("realtime accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	modelName := r.URL.Query().Get("model")
	if modelName == "" {
		modelName = "gpt-4o-realtime-preview"
	}

	rs := &realtimeSession{
		conn:   conn,
		logger: s.logger.With(slog.String("request_id", GetRequestID(r.Context()))),
		delay:  s.opts.FrameDelay,
		limits: s.opts.RateLimits,
	}
	if err := rs.run(r.Context(), modelName); err != nil {
		rs.logger.Debug("realtime session ended", slog.String("error", err.Error()))
	}
}

func (rs *realtimeSession) run(ctx context.Context, modelName string) error {
	err := rs.send(ctx, map[string]any{
		"type":    model.EventSessionCreated,
		"session": model.Session{ID: "sess_mock", Object: model.ObjectRealtimeSession, Model: modelName, Modalities: []string{"text"}},
	})
	if err != nil {
		return err
	}

	for {
		typ, data, err := rs.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText || !json.Valid(data) {
			if err := rs.sendError(ctx, "", "invalid_request_error", "invalid_json", "client event is not valid JSON"); err != nil {
				return err
			}
			continue
		}
		if err := rs.handle(ctx, data); err != nil {
			return err
		}
	}
}

func (rs *realtimeSession) handle(ctx context.Context, data []byte) error {
	eventID := gjson.GetBytes(data, "event_id").String()
	switch eventType := gjson.GetBytes(data, "type").String(); eventType {
	case model.ClientEventSessionUpdate:
		var ev struct {
			Session model.Session `json:"session"`
		}
		json.Unmarshal(data, &ev)
		ev.Session.ID = "sess_mock"
		ev.Session.Object = model.ObjectRealtimeSession
		return rs.send(ctx, map[string]any{"type": model.EventSessionUpdated, "session": ev.Session})

	case model.ClientEventConversationItemCreate:
		item := gjson.GetBytes(data, "item")
		rs.lastText = item.Get("content.0.text").String()
		rs.seq++
		ack := map[string]any{
			"id":     fmt.Sprintf("item_%d", rs.seq),
			"object": "realtime.item",
			"type":   "message",
			"status": "completed",
			"role":   item.Get("role").String(),
		}
		if content := item.Get("content"); content.IsArray() {
			ack["content"] = json.RawMessage(content.Raw)
		}
		return rs.send(ctx, map[string]any{
			"type":             model.EventConversationItemCreated,
			"previous_item_id": nil,
			"item":             ack,
		})

	case model.ClientEventResponseCreate:
		return rs.respond(ctx, eventID)

	case model.ClientEventResponseCancel, model.ClientEventInputAudioBufferClear:
		return nil

	default:
		return rs.sendError(ctx, eventID, "invalid_request_error", "unknown_event",
			fmt.Sprintf("Invalid value: '%s'. Supported values are client event types.", eventType))
	}
}

// respond plays the scripted response to the last user text.
func (rs *realtimeSession) respond(ctx context.Context, eventID string) error {
	scenario := ScenarioFor(rs.lastText)
	if scenario == ScenarioError {
		return rs.sendError(ctx, eventID, "invalid_request_error", "invalid_value", "scripted failure")
	}

	rs.seq++
	responseID := fmt.Sprintf("resp_%d", rs.seq)
	itemID := fmt.Sprintf("item_%d", rs.seq)
	reply := Reply(rs.lastText)

	steps := []map[string]any{
		{"type": model.EventResponseCreated, "response": map[string]any{"id": responseID, "object": "realtime.response", "status": "in_progress"}},
		{"type": model.EventResponseContentPartAdded, "response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0,
			"part": map[string]any{"type": model.ContentTypeText, "text": ""}},
	}
	if scenario == ScenarioAmbiguous {
		steps = append(steps, map[string]any{"type": model.EventResponseContentPartAdded, "response_id": responseID, "item_id": itemID,
			"part": map[string]any{"type": model.ContentTypeText, "text": "x", "audio": "AAAA"}})
	}
	for _, frag := range replyFragments(rs.lastText) {
		steps = append(steps, map[string]any{"type": model.EventResponseTextDelta, "response_id": responseID, "item_id": itemID,
			"output_index": 0, "content_index": 0, "delta": frag})
	}
	steps = append(steps,
		map[string]any{"type": model.EventResponseTextDone, "response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0, "text": reply},
		map[string]any{"type": model.EventResponseContentPartDone, "response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0,
			"part": map[string]any{"type": model.ContentTypeText, "text": reply}},
		map[string]any{"type": model.EventResponseDone, "response": map[string]any{"id": responseID, "object": "realtime.response", "status": "completed",
			"usage": map[string]any{"total_tokens": len(reply), "input_tokens": len(rs.lastText), "output_tokens": len(reply) - len(rs.lastText)}}},
		map[string]any{"type": model.EventRateLimitsUpdated, "rate_limits": []map[string]any{
			{"name": "requests", "limit": rs.limits.RequestsLimit, "remaining": rs.limits.RequestsRemaining, "reset_seconds": rs.limits.RequestsReset.Seconds()},
			{"name": "tokens", "limit": rs.limits.TokensLimit, "remaining": rs.limits.TokensRemaining, "reset_seconds": rs.limits.TokensReset.Seconds()},
		}},
	)

	for i, step := range steps {
		if scenario == ScenarioTruncate && i == 3 {
			return rs.conn.Close(websocket.StatusInternalError, "scripted truncation")
		}
		if err := rs.send(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (rs *realtimeSession) sendError(ctx context.Context, eventID, errType, code, message string) error {
	errObj := map[string]any{"type": errType, "code": code, "message": message, "param": nil}
	if eventID != "" {
		errObj["event_id"] = eventID
	}
	return rs.send(ctx, map[string]any{"type": model.EventError, "error": errObj})
}

func (rs *realtimeSession) send(ctx context.Context, ev map[string]any) error {
	rs.seq++
	ev["event_id"] = fmt.Sprintf("event_%d", rs.seq)
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := rs.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	if rs.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rs.delay):
		}
	}
	return nil
}
