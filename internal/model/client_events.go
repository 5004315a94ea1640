package model

import "encoding/json"

// Realtime client event types.
const (
	ClientEventSessionUpdate          = "session.update"
	ClientEventInputAudioBufferAppend = "input_audio_buffer.append"
	ClientEventInputAudioBufferCommit = "input_audio_buffer.commit"
	ClientEventInputAudioBufferClear  = "input_audio_buffer.clear"
	ClientEventConversationItemCreate = "conversation.item.create"
	ClientEventConversationItemDelete = "conversation.item.delete"
	ClientEventResponseCreate         = "response.create"
	ClientEventResponseCancel         = "response.cancel"
)

// ClientEvent is an event sent to the service over a realtime connection.
type ClientEvent interface {
	ClientEventType() string
	ClientEventID() string
	SetEventID(id string)
}

// clientEventHeader carries the optional event ID shared by every client event.
type clientEventHeader struct {
	EventID string `json:"event_id,omitempty"`
}

func (h *clientEventHeader) ClientEventID() string { return h.EventID }
func (h *clientEventHeader) SetEventID(id string)   { h.EventID = id }

// SessionUpdateEvent updates the session configuration.
type SessionUpdateEvent struct {
	clientEventHeader
	Session Session `json:"session"`
}

func (SessionUpdateEvent) ClientEventType() string { return ClientEventSessionUpdate }

func (m SessionUpdateEvent) MarshalJSON() ([]byte, error) {
	type sessionUpdateEvent SessionUpdateEvent
	return marshalClientEvent((*sessionUpdateEvent)(&m), m.ClientEventType())
}

// InputAudioBufferAppendEvent appends base64 audio to the input buffer.
type InputAudioBufferAppendEvent struct {
	clientEventHeader
	Audio string `json:"audio"`
}

func (InputAudioBufferAppendEvent) ClientEventType() string {
	return ClientEventInputAudioBufferAppend
}

func (m InputAudioBufferAppendEvent) MarshalJSON() ([]byte, error) {
	type inputAudioBufferAppendEvent InputAudioBufferAppendEvent
	return marshalClientEvent((*inputAudioBufferAppendEvent)(&m), m.ClientEventType())
}

// InputAudioBufferCommitEvent commits the input buffer to a user message.
type InputAudioBufferCommitEvent struct {
	clientEventHeader
}

func (InputAudioBufferCommitEvent) ClientEventType() string {
	return ClientEventInputAudioBufferCommit
}

func (m InputAudioBufferCommitEvent) MarshalJSON() ([]byte, error) {
	type inputAudioBufferCommitEvent InputAudioBufferCommitEvent
	return marshalClientEvent((*inputAudioBufferCommitEvent)(&m), m.ClientEventType())
}

// InputAudioBufferClearEvent clears the input buffer.
type InputAudioBufferClearEvent struct {
	clientEventHeader
}

func (InputAudioBufferClearEvent) ClientEventType() string {
	return ClientEventInputAudioBufferClear
}

func (m InputAudioBufferClearEvent) MarshalJSON() ([]byte, error) {
	type inputAudioBufferClearEvent InputAudioBufferClearEvent
	return marshalClientEvent((*inputAudioBufferClearEvent)(&m), m.ClientEventType())
}

// ConversationItemCreateEvent adds an item to the conversation.
type ConversationItemCreateEvent struct {
	clientEventHeader
	PreviousItemID *string          `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

func (ConversationItemCreateEvent) ClientEventType() string {
	return ClientEventConversationItemCreate
}

func (m ConversationItemCreateEvent) MarshalJSON() ([]byte, error) {
	type conversationItemCreateEvent ConversationItemCreateEvent
	return marshalClientEvent((*conversationItemCreateEvent)(&m), m.ClientEventType())
}

// ConversationItemDeleteEvent removes an item from the conversation.
type ConversationItemDeleteEvent struct {
	clientEventHeader
	ItemID string `json:"item_id"`
}

func (ConversationItemDeleteEvent) ClientEventType() string {
	return ClientEventConversationItemDelete
}

func (m ConversationItemDeleteEvent) MarshalJSON() ([]byte, error) {
	type conversationItemDeleteEvent ConversationItemDeleteEvent
	return marshalClientEvent((*conversationItemDeleteEvent)(&m), m.ClientEventType())
}

// ResponseCreateEvent asks the service to produce a response.
type ResponseCreateEvent struct {
	clientEventHeader
	Response *ResponseOptions `json:"response,omitempty"`
}

// ResponseOptions overrides session settings for one response.
type ResponseOptions struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions *string  `json:"instructions,omitempty"`
	Voice        *string  `json:"voice,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

func (ResponseCreateEvent) ClientEventType() string { return ClientEventResponseCreate }

func (m ResponseCreateEvent) MarshalJSON() ([]byte, error) {
	type responseCreateEvent ResponseCreateEvent
	return marshalClientEvent((*responseCreateEvent)(&m), m.ClientEventType())
}

// ResponseCancelEvent cancels an in-progress response.
type ResponseCancelEvent struct {
	clientEventHeader
	ResponseID string `json:"response_id,omitempty"`
}

func (ResponseCancelEvent) ClientEventType() string { return ClientEventResponseCancel }

func (m ResponseCancelEvent) MarshalJSON() ([]byte, error) {
	type responseCancelEvent ResponseCancelEvent
	return marshalClientEvent((*responseCancelEvent)(&m), m.ClientEventType())
}

// marshalClientEvent writes v with its "type" discriminator added.
func marshalClientEvent(v any, eventType string) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(eventType)
	if err != nil {
		return nil, err
	}
	if len(body) == 2 {
		return []byte(`{"type":` + string(typ) + `}`), nil
	}
	out := make([]byte, 0, len(body)+len(typ)+9)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
