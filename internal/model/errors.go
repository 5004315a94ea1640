package model

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// RealtimeError is an error payload as reported by the remote service. It is a
// leaf value: it is surfaced to the caller and never drives local control flow.
// Optional fields stay nil when absent on the wire.
type RealtimeError struct {
	Type    string  `json:"type"`
	Code    *string `json:"code,omitempty"`
	Message string  `json:"message"`
	Param   *string `json:"param,omitempty"`
	EventID *string `json:"event_id,omitempty"`
}

// UnmarshalJSON accepts string or numeric codes; a numeric code keeps its
// literal text.
func (e *RealtimeError) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Param   *string         `json:"param"`
		EventID *string         `json:"event_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*e = RealtimeError{
		Type:    wire.Type,
		Message: wire.Message,
		Param:   wire.Param,
		EventID: wire.EventID,
	}

	code := strings.TrimSpace(string(wire.Code))
	switch {
	case code == "" || code == "null":
	case strings.HasPrefix(code, `"`):
		var s string
		if err := json.Unmarshal(wire.Code, &s); err != nil {
			return err
		}
		e.Code = &s
	default:
		e.Code = &code
	}
	return nil
}

// ParseErrorPayload recognizes the error shapes the service emits:
//
//	{"error": {"type": ..., "code": ..., "message": ..., "param": ...}}
//	{"type": "error", "event_id": ..., "error": {...}}
//	{"type": "error", "message": ...}
//	{"error": "message"}
//
// It reports false when raw is not an error payload.
func ParseErrorPayload(raw []byte) (*RealtimeError, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, false
	}

	nested := root.Get("error")
	switch {
	case nested.IsObject():
		var e RealtimeError
		if err := json.Unmarshal([]byte(nested.Raw), &e); err != nil {
			return nil, false
		}
		return &e, true

	case nested.Type == gjson.String:
		return &RealtimeError{Message: nested.String()}, true

	case root.Get("type").String() == "error" && root.Get("message").Exists():
		var e RealtimeError
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, false
		}
		return &e, true
	}
	return nil, false
}
