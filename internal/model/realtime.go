package model

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Realtime server event types.
const (
	EventError                        = "error"
	EventSessionCreated               = "session.created"
	EventSessionUpdated               = "session.updated"
	EventConversationItemCreated      = "conversation.item.created"
	EventConversationItemAdded        = "conversation.item.added"
	EventConversationItemDone         = "conversation.item.done"
	EventConversationItemDeleted      = "conversation.item.deleted"
	EventInputTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	EventInputTranscriptionDelta      = "conversation.item.input_audio_transcription.delta"
	EventInputTranscriptionFailed     = "conversation.item.input_audio_transcription.failed"
	EventInputAudioBufferCommitted    = "input_audio_buffer.committed"
	EventInputAudioBufferCleared      = "input_audio_buffer.cleared"
	EventInputAudioBufferSpeechStart  = "input_audio_buffer.speech_started"
	EventInputAudioBufferSpeechStop   = "input_audio_buffer.speech_stopped"
	EventResponseCreated              = "response.created"
	EventResponseDone                 = "response.done"
	EventResponseOutputItemAdded      = "response.output_item.added"
	EventResponseOutputItemDone       = "response.output_item.done"
	EventResponseContentPartAdded     = "response.content_part.added"
	EventResponseContentPartDone      = "response.content_part.done"
	EventResponseTextDelta            = "response.text.delta"
	EventResponseTextDone             = "response.text.done"
	EventResponseOutputTextDelta      = "response.output_text.delta"
	EventResponseOutputTextDone       = "response.output_text.done"
	EventResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventResponseAudioTranscriptDone  = "response.audio_transcript.done"
	EventResponseAudioDelta           = "response.audio.delta"
	EventResponseAudioDone            = "response.audio.done"
	EventResponseFunctionArgsDelta    = "response.function_call_arguments.delta"
	EventResponseFunctionArgsDone     = "response.function_call_arguments.done"
	EventRateLimitsUpdated            = "rate_limits.updated"
)

// RealtimeEvent is a decoded realtime server event.
type RealtimeEvent struct {
	Type    string
	EventID string
	Payload RealtimePayload
}

func (*RealtimeEvent) isEvent() {}

// RealtimePayload is the closed union of realtime event payloads.
type RealtimePayload interface {
	isRealtimePayload()
}

// ContentPartNotice reports a content part added to or completed in a response.
type ContentPartNotice struct {
	ResponseID   string
	ItemID       string
	OutputIndex  int
	ContentIndex int
	Part         ContentPart
}

// UnmarshalJSON decodes the notice and its single content part. A part that
// fails to decode fails the whole notice.
func (n *ContentPartNotice) UnmarshalJSON(data []byte) error {
	var wire struct {
		ResponseID   string          `json:"response_id"`
		ItemID       string          `json:"item_id"`
		OutputIndex  int             `json:"output_index"`
		ContentIndex int             `json:"content_index"`
		Part         json.RawMessage `json:"part"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	part, err := DecodeContentPart(wire.Part)
	if err != nil {
		return err
	}
	*n = ContentPartNotice{
		ResponseID:   wire.ResponseID,
		ItemID:       wire.ItemID,
		OutputIndex:  wire.OutputIndex,
		ContentIndex: wire.ContentIndex,
		Part:         part,
	}
	return nil
}

// ConversationUpdate reports a conversation item change.
type ConversationUpdate struct {
	PreviousItemID *string          `json:"previous_item_id"`
	ItemID         *string          `json:"item_id"`
	Item           ConversationItem `json:"item"`
}

// ErrorNotice carries an error reported on a realtime connection.
type ErrorNotice struct {
	Error RealtimeError `json:"error"`
}

// SessionUpdate carries the current session configuration.
type SessionUpdate struct {
	Session Session `json:"session"`
}

// OutputDelta is one incremental fragment of response output: text, audio
// transcript, base64 audio, or function-call arguments depending on the event type.
type OutputDelta struct {
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	CallID       string `json:"call_id,omitempty"`
	Delta        string `json:"delta"`
}

// OutputDone closes a stream of output deltas. Only the field matching the
// event type is set.
type OutputDone struct {
	ResponseID   string  `json:"response_id"`
	ItemID       string  `json:"item_id"`
	OutputIndex  int     `json:"output_index"`
	ContentIndex int     `json:"content_index"`
	Text         *string `json:"text"`
	Transcript   *string `json:"transcript"`
	Arguments    *string `json:"arguments"`
}

// OutputItemNotice reports an output item added to or completed in a response.
type OutputItemNotice struct {
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

// ResponseUpdate reports a response lifecycle change.
type ResponseUpdate struct {
	Response RealtimeResponse `json:"response"`
}

// RealtimeResponse summarizes a realtime response.
type RealtimeResponse struct {
	ID            string             `json:"id"`
	Object        string             `json:"object"`
	Status        string             `json:"status"`
	StatusDetails json.RawMessage    `json:"status_details,omitempty"`
	Output        []ConversationItem `json:"output,omitempty"`
	Usage         *RealtimeUsage     `json:"usage,omitempty"`
}

// RealtimeUsage is token usage for a realtime response.
type RealtimeUsage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TranscriptionUpdate reports input audio transcription progress.
type TranscriptionUpdate struct {
	ItemID       string  `json:"item_id"`
	ContentIndex int     `json:"content_index"`
	Transcript   *string `json:"transcript"`
	Delta        *string `json:"delta"`
}

// TranscriptionFailed reports that input audio for an item could not be
// transcribed. The session stays usable.
type TranscriptionFailed struct {
	ItemID       string        `json:"item_id"`
	ContentIndex int           `json:"content_index"`
	Error        RealtimeError `json:"error"`
}

// AudioBufferNotice reports input audio buffer state changes.
type AudioBufferNotice struct {
	ItemID         string  `json:"item_id"`
	PreviousItemID *string `json:"previous_item_id"`
	AudioStartMs   *int    `json:"audio_start_ms"`
	AudioEndMs     *int    `json:"audio_end_ms"`
}

// RateLimitsUpdate reports the current rate limits.
type RateLimitsUpdate struct {
	RateLimits []RateLimit `json:"rate_limits"`
}

// RateLimit is one rate limit bucket.
type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

func (ContentPartNotice) isRealtimePayload()   {}
func (ConversationUpdate) isRealtimePayload()  {}
func (ErrorNotice) isRealtimePayload()         {}
func (SessionUpdate) isRealtimePayload()       {}
func (OutputDelta) isRealtimePayload()         {}
func (OutputDone) isRealtimePayload()          {}
func (OutputItemNotice) isRealtimePayload()    {}
func (ResponseUpdate) isRealtimePayload()      {}
func (TranscriptionUpdate) isRealtimePayload() {}
func (TranscriptionFailed) isRealtimePayload() {}
func (AudioBufferNotice) isRealtimePayload()   {}
func (RateLimitsUpdate) isRealtimePayload()    {}

func realtimeVariant[P RealtimePayload](raw []byte) (*RealtimeEvent, error) {
	var payload P
	if err := decodeInto(raw, &payload); err != nil {
		return nil, err
	}
	return &RealtimeEvent{
		Type:    gjson.GetBytes(raw, "type").String(),
		EventID: gjson.GetBytes(raw, "event_id").String(),
		Payload: payload,
	}, nil
}

// RealtimeEvents is the registry of realtime server events, keyed by "type".
var RealtimeEvents = NewRegistry("type", map[string]VariantDecoder[*RealtimeEvent]{
	EventError:                        realtimeVariant[ErrorNotice],
	EventSessionCreated:               realtimeVariant[SessionUpdate],
	EventSessionUpdated:               realtimeVariant[SessionUpdate],
	EventConversationItemCreated:      realtimeVariant[ConversationUpdate],
	EventConversationItemAdded:        realtimeVariant[ConversationUpdate],
	EventConversationItemDone:         realtimeVariant[ConversationUpdate],
	EventConversationItemDeleted:      realtimeVariant[ConversationUpdate],
	EventInputTranscriptionCompleted:  realtimeVariant[TranscriptionUpdate],
	EventInputTranscriptionDelta:      realtimeVariant[TranscriptionUpdate],
	EventInputTranscriptionFailed:     realtimeVariant[TranscriptionFailed],
	EventInputAudioBufferCommitted:    realtimeVariant[AudioBufferNotice],
	EventInputAudioBufferCleared:      realtimeVariant[AudioBufferNotice],
	EventInputAudioBufferSpeechStart:  realtimeVariant[AudioBufferNotice],
	EventInputAudioBufferSpeechStop:   realtimeVariant[AudioBufferNotice],
	EventResponseCreated:              realtimeVariant[ResponseUpdate],
	EventResponseDone:                 realtimeVariant[ResponseUpdate],
	EventResponseOutputItemAdded:      realtimeVariant[OutputItemNotice],
	EventResponseOutputItemDone:       realtimeVariant[OutputItemNotice],
	EventResponseContentPartAdded:     realtimeVariant[ContentPartNotice],
	EventResponseContentPartDone:      realtimeVariant[ContentPartNotice],
	EventResponseTextDelta:            realtimeVariant[OutputDelta],
	EventResponseTextDone:             realtimeVariant[OutputDone],
	EventResponseOutputTextDelta:      realtimeVariant[OutputDelta],
	EventResponseOutputTextDone:       realtimeVariant[OutputDone],
	EventResponseAudioTranscriptDelta: realtimeVariant[OutputDelta],
	EventResponseAudioTranscriptDone:  realtimeVariant[OutputDone],
	EventResponseAudioDelta:           realtimeVariant[OutputDelta],
	EventResponseAudioDone:            realtimeVariant[OutputDone],
	EventResponseFunctionArgsDelta:    realtimeVariant[OutputDelta],
	EventResponseFunctionArgsDone:     realtimeVariant[OutputDone],
	EventRateLimitsUpdated:            realtimeVariant[RateLimitsUpdate],
})

// DecodeRealtimeEvent decodes a single realtime server event.
func DecodeRealtimeEvent(raw []byte) (*RealtimeEvent, error) {
	return RealtimeEvents.Decode(raw)
}
