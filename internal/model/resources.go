package model

import (
	"encoding/json"

	"github.com/tjfontaine/aiwire/internal/domain"
)

// Resource object discriminators.
const (
	ObjectTextCompletion      = "text_completion"
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectModel               = "model"
	ObjectFile                = "file"
	ObjectFineTuningJob       = "fine_tuning.job"
	ObjectBatch               = "batch"
	ObjectAssistant           = "assistant"
	ObjectRealtimeSession     = "realtime.session"
	ObjectList                = "list"
)

// Resource is the closed union of resource objects, keyed by "object".
type Resource interface {
	ObjectType() string
}

// Model represents a model.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func (*Model) ObjectType() string { return ObjectModel }

// File is an uploaded file.
type File struct {
	ID            string  `json:"id"`
	Object        string  `json:"object"`
	Bytes         int64   `json:"bytes"`
	CreatedAt     int64   `json:"created_at"`
	Filename      string  `json:"filename"`
	Purpose       string  `json:"purpose"`
	Status        *string `json:"status,omitempty"`
	StatusDetails *string `json:"status_details,omitempty"`
}

func (*File) ObjectType() string { return ObjectFile }

// FineTuningJob is a fine-tuning job.
type FineTuningJob struct {
	ID              string          `json:"id"`
	Object          string          `json:"object"`
	Model           string          `json:"model"`
	CreatedAt       int64           `json:"created_at"`
	FinishedAt      *int64          `json:"finished_at,omitempty"`
	FineTunedModel  *string         `json:"fine_tuned_model,omitempty"`
	Status          string          `json:"status"`
	TrainingFile    string          `json:"training_file"`
	ValidationFile  *string         `json:"validation_file,omitempty"`
	ResultFiles     []string        `json:"result_files,omitempty"`
	TrainedTokens   *int            `json:"trained_tokens,omitempty"`
	Hyperparameters json.RawMessage `json:"hyperparameters,omitempty"`
	Error           *RealtimeError  `json:"error,omitempty"`
}

func (*FineTuningJob) ObjectType() string { return ObjectFineTuningJob }

// Batch is a batch job.
type Batch struct {
	ID               string              `json:"id"`
	Object           string              `json:"object"`
	Endpoint         string              `json:"endpoint"`
	InputFileID      string              `json:"input_file_id"`
	CompletionWindow string              `json:"completion_window"`
	Status           string              `json:"status"`
	OutputFileID     *string             `json:"output_file_id,omitempty"`
	ErrorFileID      *string             `json:"error_file_id,omitempty"`
	CreatedAt        int64               `json:"created_at"`
	RequestCounts    *BatchRequestCounts `json:"request_counts,omitempty"`
	Metadata         map[string]string   `json:"metadata,omitempty"`
}

// BatchRequestCounts tracks batch progress.
type BatchRequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (*Batch) ObjectType() string { return ObjectBatch }

// Assistant is an assistant definition.
type Assistant struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	CreatedAt    int64             `json:"created_at"`
	Name         *string           `json:"name,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Model        string            `json:"model"`
	Instructions *string           `json:"instructions,omitempty"`
	Tools        []AssistantTool   `json:"tools,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AssistantTool is a tool enabled on an assistant.
type AssistantTool struct {
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func (*Assistant) ObjectType() string { return ObjectAssistant }

// List is a page of resources. Elements that fail to decode are isolated in
// Unrecognized.
type List struct {
	Data         []Resource
	Unrecognized []Unrecognized
	HasMore      bool
	FirstID      *string
	LastID       *string
}

func (*List) ObjectType() string { return ObjectList }

func decodeList(raw []byte) (Resource, error) {
	var wire struct {
		Data    json.RawMessage `json:"data"`
		HasMore bool            `json:"has_more"`
		FirstID *string         `json:"first_id"`
		LastID  *string         `json:"last_id"`
	}
	if err := decodeInto(raw, &wire); err != nil {
		return nil, err
	}

	list := &List{HasMore: wire.HasMore, FirstID: wire.FirstID, LastID: wire.LastID}
	if len(wire.Data) == 0 {
		return list, nil
	}
	data, skipped, err := Resources.DecodeList(wire.Data)
	if err != nil {
		return nil, err
	}
	list.Data = data
	list.Unrecognized = skipped
	return list, nil
}

func resourceVariant[T any, PT interface {
	*T
	Resource
}](raw []byte) (Resource, error) {
	var v T
	if err := decodeInto(raw, &v); err != nil {
		return nil, err
	}
	return PT(&v), nil
}

// Resources is the registry of resource objects, keyed by "object".
var Resources *Registry[Resource]

func init() {
	Resources = NewRegistry("object", map[string]VariantDecoder[Resource]{
		ObjectTextCompletion:      resourceVariant[Completion],
		ObjectChatCompletion:      resourceVariant[ChatCompletion],
		ObjectChatCompletionChunk: resourceVariant[ChatCompletionChunk],
		ObjectModel:               resourceVariant[Model],
		ObjectFile:                resourceVariant[File],
		ObjectFineTuningJob:       resourceVariant[FineTuningJob],
		ObjectBatch:               resourceVariant[Batch],
		ObjectAssistant:           resourceVariant[Assistant],
		ObjectRealtimeSession:     resourceVariant[Session],
		ObjectList:                decodeList,
	})
}

// DecodeResource decodes a single top-level resource object.
func DecodeResource(raw []byte) (Resource, error) {
	return Resources.Decode(raw)
}

// DecodeAs decodes a top-level resource and requires it to be of type T. A
// resource of any other object type is reported as an unknown variant.
func DecodeAs[T Resource](raw []byte) (T, error) {
	var zero T
	res, err := Resources.Decode(raw)
	if err != nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, domain.NewUnknownVariantError(Resources.Field(), res.ObjectType(), raw)
	}
	return typed, nil
}

// Items returns the list elements of type T, skipping elements of other types.
func Items[T Resource](l *List) []T {
	out := make([]T, 0, len(l.Data))
	for _, r := range l.Data {
		if typed, ok := r.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
