package model

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/tidwall/gjson"
)

func TestRealtimeError_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   RealtimeError
	}{
		{
			name: "all optional fields absent",
			in:   RealtimeError{Type: "invalid_request_error", Message: "bad"},
		},
		{
			name: "all optional fields present",
			in: RealtimeError{
				Type:    "invalid_request_error",
				Code:    strPtr("invalid_value"),
				Message: "bad voice",
				Param:   strPtr("session.voice"),
				EventID: strPtr("evt_123"),
			},
		},
		{
			name: "empty strings are not absent",
			in: RealtimeError{
				Type:    "server_error",
				Code:    strPtr(""),
				Message: "",
				Param:   strPtr(""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var out RealtimeError
			if err := json.Unmarshal(raw, &out); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(out, tt.in) {
				t.Errorf("round trip = %+v, want %+v (wire %s)", out, tt.in, raw)
			}
		})
	}
}

func TestRealtimeError_AbsentFieldsNotWritten(t *testing.T) {
	raw, err := json.Marshal(RealtimeError{Type: "server_error", Message: "boom"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{"code", "param", "event_id"} {
		if gjson.GetBytes(raw, field).Exists() {
			t.Errorf("%s written for unset value: %s", field, raw)
		}
	}
}

func TestRealtimeError_Code(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{name: "string code", raw: `{"type":"x","code":"rate_limit_exceeded","message":"m"}`, want: strPtr("rate_limit_exceeded")},
		{name: "numeric code keeps literal", raw: `{"type":"x","code":429,"message":"m"}`, want: strPtr("429")},
		{name: "null code is unset", raw: `{"type":"x","code":null,"message":"m"}`},
		{name: "absent code is unset", raw: `{"type":"x","message":"m"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e RealtimeError
			if err := json.Unmarshal([]byte(tt.raw), &e); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(e.Code, tt.want) {
				t.Errorf("Code = %v, want %v", deref(e.Code), deref(tt.want))
			}
		})
	}
}

func TestParseErrorPayload(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantOK      bool
		wantMessage string
		wantType    string
	}{
		{
			name:        "nested error object",
			raw:         `{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key","param":null}}`,
			wantOK:      true,
			wantMessage: "Incorrect API key",
			wantType:    "invalid_request_error",
		},
		{
			name:        "realtime error event",
			raw:         `{"type":"error","event_id":"evt_1","error":{"type":"invalid_request_error","message":"bad event"}}`,
			wantOK:      true,
			wantMessage: "bad event",
			wantType:    "invalid_request_error",
		},
		{
			name:        "flat error",
			raw:         `{"type":"error","message":"rate limited"}`,
			wantOK:      true,
			wantMessage: "rate limited",
			wantType:    "error",
		},
		{
			name:        "error string",
			raw:         `{"error":"upstream unavailable"}`,
			wantOK:      true,
			wantMessage: "upstream unavailable",
		},
		{name: "ordinary event", raw: `{"type":"response.done","response":{}}`},
		{name: "error type without message", raw: `{"type":"error"}`},
		{name: "null error", raw: `{"id":"x","error":null}`},
		{name: "array", raw: `[{"error":"x"}]`},
		{name: "not json", raw: `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseErrorPayload([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ParseErrorPayload() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMessage)
			}
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
