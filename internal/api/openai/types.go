// Package openai is the request façade: thin builders per resource family that
// hand responses to the single-shot decode path or to the stream decoder.
package openai

import (
	"encoding/json"

	"github.com/tjfontaine/aiwire/internal/model"
)

// CompletionRequest represents a legacy text completion request.
type CompletionRequest struct {
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	Suffix           string         `json:"suffix,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	Temperature      *float32       `json:"temperature,omitempty"`
	TopP             *float32       `json:"top_p,omitempty"`
	N                int            `json:"n,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	StreamOptions    *StreamOptions `json:"stream_options,omitempty"`
	Logprobs         *int           `json:"logprobs,omitempty"`
	Echo             bool           `json:"echo,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	PresencePenalty  float32        `json:"presence_penalty,omitempty"`
	FrequencyPenalty float32        `json:"frequency_penalty,omitempty"`
	User             string         `json:"user,omitempty"`
	Seed             *int           `json:"seed,omitempty"`
}

// ChatCompletionRequest represents a chat completion request.
type ChatCompletionRequest struct {
	Model               string              `json:"model"`
	Messages            []model.ChatMessage `json:"messages"`
	MaxTokens           int                 `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                 `json:"max_completion_tokens,omitempty"`
	Temperature         *float32            `json:"temperature,omitempty"`
	TopP                *float32            `json:"top_p,omitempty"`
	N                   int                 `json:"n,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
	StreamOptions       *StreamOptions      `json:"stream_options,omitempty"`
	Stop                []string            `json:"stop,omitempty"`
	PresencePenalty     float32             `json:"presence_penalty,omitempty"`
	FrequencyPenalty    float32             `json:"frequency_penalty,omitempty"`
	LogitBias           map[string]int      `json:"logit_bias,omitempty"`
	User                string              `json:"user,omitempty"`
	Tools               []Tool              `json:"tools,omitempty"`
	ToolChoice          any                 `json:"tool_choice,omitempty"`
	ResponseFormat      *ResponseFormat     `json:"response_format,omitempty"`
	Seed                *int                `json:"seed,omitempty"`
}

// StreamOptions configures streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Tool represents a tool that the model can call.
type Tool struct {
	Type     string                   `json:"type"`
	Function model.FunctionDefinition `json:"function"`
}

// ResponseFormat specifies the format of the response.
type ResponseFormat struct {
	Type string `json:"type"`
}

// FineTuningJobRequest creates a fine-tuning job.
type FineTuningJobRequest struct {
	Model           string          `json:"model"`
	TrainingFile    string          `json:"training_file"`
	ValidationFile  string          `json:"validation_file,omitempty"`
	Suffix          string          `json:"suffix,omitempty"`
	Seed            *int            `json:"seed,omitempty"`
	Hyperparameters json.RawMessage `json:"hyperparameters,omitempty"`
}

// BatchRequest creates a batch.
type BatchRequest struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// AssistantRequest creates an assistant.
type AssistantRequest struct {
	Model        string                `json:"model"`
	Name         string                `json:"name,omitempty"`
	Description  string                `json:"description,omitempty"`
	Instructions string                `json:"instructions,omitempty"`
	Tools        []model.AssistantTool `json:"tools,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
}

// RealtimeSessionRequest mints an ephemeral realtime session.
type RealtimeSessionRequest struct {
	Model             string   `json:"model"`
	Modalities        []string `json:"modalities,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
}

// ListOptions pages list endpoints that support cursors.
type ListOptions struct {
	After   string
	Limit   int
	Purpose string
}
