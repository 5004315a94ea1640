package model

import (
	"encoding/json"
)

// Event is the closed union of domain events produced by the stream decoder:
// *StreamDelta, *UsageReport, or *RealtimeEvent.
type Event interface {
	isEvent()
}

// StreamDelta is one incremental content fragment. Fragments sharing an ID are
// concatenated by the caller, never by the decoder. Tool call fragments are
// passed through as received; merging them by Index is also left to the caller.
type StreamDelta struct {
	ID           string
	Object       string
	Created      int64
	Model        string
	ChoiceIndex  int
	Text         string
	Role         string
	Refusal      *string
	ToolCalls    []ToolCallChunk
	FinishReason *string
}

func (*StreamDelta) isEvent() {}

// UsageReport carries token usage reported on a stream.
type UsageReport struct {
	ID    string
	Model string
	Usage Usage
}

func (*UsageReport) isEvent() {}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a legacy text completion, or one frame of a streamed one.
type Completion struct {
	ID                string             `json:"id"`
	Object            string             `json:"object"`
	Created           int64              `json:"created"`
	Model             string             `json:"model"`
	SystemFingerprint string             `json:"system_fingerprint,omitempty"`
	Choices           []CompletionChoice `json:"choices"`
	Usage             *Usage             `json:"usage,omitempty"`
}

// CompletionChoice is one choice of a text completion.
type CompletionChoice struct {
	Text         string          `json:"text"`
	Index        int             `json:"index"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
	FinishReason *string         `json:"finish_reason"`
}

// ObjectType implements Resource.
func (*Completion) ObjectType() string { return ObjectTextCompletion }

// Deltas splits the completion frame into one delta per choice, followed by a
// usage report when usage is present.
func (c *Completion) Deltas() []Event {
	events := make([]Event, 0, len(c.Choices)+1)
	for _, choice := range c.Choices {
		events = append(events, &StreamDelta{
			ID:           c.ID,
			Object:       c.Object,
			Created:      c.Created,
			Model:        c.Model,
			ChoiceIndex:  choice.Index,
			Text:         choice.Text,
			FinishReason: choice.FinishReason,
		})
	}
	if c.Usage != nil {
		events = append(events, &UsageReport{ID: c.ID, Model: c.Model, Usage: *c.Usage})
	}
	return events
}

// ChatCompletion represents a chat completion response.
type ChatCompletion struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
	Choices           []ChatChoice `json:"choices"`
	Usage             *Usage       `json:"usage,omitempty"`
}

// ObjectType implements Resource.
func (*ChatCompletion) ObjectType() string { return ObjectChatCompletion }

// ChatChoice is one choice of a chat completion.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatMessage is a message in a chat completion request or response.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content,omitempty"`
	Refusal    *string    `json:"refusal,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool call made by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a function call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionChunk is one frame of a streamed chat completion.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta represents the delta content in a streaming chunk.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Refusal   *string         `json:"refusal,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// ToolCallChunk represents a partial tool call in streaming.
type ToolCallChunk struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallChunk `json:"function,omitempty"`
}

// FunctionCallChunk represents a partial function call.
type FunctionCallChunk struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ObjectType implements Resource.
func (*ChatCompletionChunk) ObjectType() string { return ObjectChatCompletionChunk }

// Deltas splits the chunk into one delta per choice, followed by a usage report
// when usage is present.
func (c *ChatCompletionChunk) Deltas() []Event {
	events := make([]Event, 0, len(c.Choices)+1)
	for _, choice := range c.Choices {
		var text string
		if choice.Delta.Content != nil {
			text = *choice.Delta.Content
		}
		events = append(events, &StreamDelta{
			ID:           c.ID,
			Object:       c.Object,
			Created:      c.Created,
			Model:        c.Model,
			ChoiceIndex:  choice.Index,
			Text:         text,
			Role:         choice.Delta.Role,
			Refusal:      choice.Delta.Refusal,
			ToolCalls:    choice.Delta.ToolCalls,
			FinishReason: choice.FinishReason,
		})
	}
	if c.Usage != nil {
		events = append(events, &UsageReport{ID: c.ID, Model: c.Model, Usage: *c.Usage})
	}
	return events
}

// deltaSource is a stream frame that splits into domain events.
type deltaSource interface {
	Deltas() []Event
}

func chunkVariant[T any, PT interface {
	*T
	deltaSource
}](raw []byte) (deltaSource, error) {
	var v T
	if err := decodeInto(raw, &v); err != nil {
		return nil, err
	}
	return PT(&v), nil
}

// StreamChunks is the registry of incremental text stream frames, keyed by "object".
var StreamChunks = NewRegistry("object", map[string]VariantDecoder[deltaSource]{
	ObjectTextCompletion:      chunkVariant[Completion],
	ObjectChatCompletionChunk: chunkVariant[ChatCompletionChunk],
})

// DecodeStreamChunk decodes one incremental text frame into domain events.
func DecodeStreamChunk(raw []byte) ([]Event, error) {
	src, err := StreamChunks.Decode(raw)
	if err != nil {
		return nil, err
	}
	return src.Deltas(), nil
}
