// Package aiwire is the public API for the typed OpenAI-compatible client.
// It re-exports the stable surface of the internal packages.
//
//	c := aiwire.NewClient(os.Getenv("OPENAI_API_KEY"))
//	dec, err := c.StreamChatCompletion(ctx, &aiwire.ChatCompletionRequest{...})
//	if err != nil {
//	    return err
//	}
//	defer dec.Close()
//	for ev, err := range dec.All(ctx) {
//	    ...
//	}
package aiwire

import (
	"github.com/tjfontaine/aiwire/internal/api/openai"
	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/stream"
)

// Client is the request façade. See internal/api/openai.Client.
type Client = openai.Client

// ClientOption configures a Client.
type ClientOption = openai.ClientOption

// NewClient creates a client for apiKey.
var NewClient = openai.NewClient

// Client options
var (
	WithBaseURL      = openai.WithBaseURL
	WithRealtimeURL  = openai.WithRealtimeURL
	WithHTTPClient   = openai.WithHTTPClient
	WithOrganization = openai.WithOrganization
	WithUserAgent    = openai.WithUserAgent
	WithTimeout      = openai.WithTimeout
	WithMaxFrameSize = openai.WithMaxFrameSize
	WithLogger       = openai.WithLogger
	WithMetrics      = openai.WithMetrics
)

// Requests
type (
	CompletionRequest      = openai.CompletionRequest
	ChatCompletionRequest  = openai.ChatCompletionRequest
	StreamOptions          = openai.StreamOptions
	FineTuningJobRequest   = openai.FineTuningJobRequest
	BatchRequest           = openai.BatchRequest
	AssistantRequest       = openai.AssistantRequest
	RealtimeSessionRequest = openai.RealtimeSessionRequest
	ListOptions            = openai.ListOptions
	RealtimeConn           = openai.RealtimeConn
)

// Decoder is the incremental event decoder returned by every streaming call.
type Decoder = stream.Decoder[model.Event]

// State is a decoder lifecycle state.
type State = stream.State

// Decoder states
const (
	StateOpen     = stream.StateOpen
	StateDraining = stream.StateDraining
	StateClosed   = stream.StateClosed
	StateErrored  = stream.StateErrored
)

// Events and resources
type (
	Event         = model.Event
	StreamDelta   = model.StreamDelta
	UsageReport   = model.UsageReport
	Usage         = model.Usage
	ChatMessage   = model.ChatMessage
	RealtimeEvent = model.RealtimeEvent
	ClientEvent   = model.ClientEvent
	ContentPart   = model.ContentPart
	TextPart      = model.TextPart
	AudioPart     = model.AudioPart
	Resource      = model.Resource
	List          = model.List
	Unrecognized  = model.Unrecognized
)

// Errors
type (
	ClientError = domain.ClientError
	ErrorKind   = domain.ErrorKind
	RemoteError = domain.RemoteError
)

// Error kinds
const (
	KindTransport      = domain.KindTransport
	KindRemote         = domain.KindRemote
	KindMalformed      = domain.KindMalformed
	KindUnknownVariant = domain.KindUnknownVariant
	KindAmbiguous      = domain.KindAmbiguous
	KindTruncated      = domain.KindTruncated
	KindFile           = domain.KindFile
)

// Sentinels for errors.Is.
var (
	ErrTransport      = domain.ErrTransport
	ErrRemote         = domain.ErrRemote
	ErrMalformed      = domain.ErrMalformed
	ErrUnknownVariant = domain.ErrUnknownVariant
	ErrAmbiguous      = domain.ErrAmbiguous
	ErrTruncated      = domain.ErrTruncated
	ErrFile           = domain.ErrFile
)

// KindOf returns the kind of err, or "" for errors not raised by the client.
var KindOf = domain.KindOf
