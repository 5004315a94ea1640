package openai

import (
	"context"
	"net/http"

	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/stream"
)

// CreateCompletion creates a legacy text completion.
func (c *Client) CreateCompletion(ctx context.Context, req *CompletionRequest) (*model.Completion, error) {
	body := *req
	body.Stream = false
	body.StreamOptions = nil

	r, err := jsonRequest("completions.create", http.MethodPost, "/completions", &body)
	if err != nil {
		return nil, err
	}
	return do[*model.Completion](ctx, c, r)
}

// StreamCompletion streams a legacy text completion. The caller owns the
// returned decoder and must Close it.
func (c *Client) StreamCompletion(ctx context.Context, req *CompletionRequest) (*stream.Decoder[model.Event], error) {
	body := *req
	body.Stream = true

	r, err := jsonRequest("completions.stream", http.MethodPost, "/completions", &body)
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, r, "completion")
}

// CreateChatCompletion creates a chat completion.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*model.ChatCompletion, error) {
	body := *req
	body.Stream = false
	body.StreamOptions = nil

	r, err := jsonRequest("chat.create", http.MethodPost, "/chat/completions", &body)
	if err != nil {
		return nil, err
	}
	return do[*model.ChatCompletion](ctx, c, r)
}

// StreamChatCompletion streams a chat completion. The caller owns the
// returned decoder and must Close it.
func (c *Client) StreamChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*stream.Decoder[model.Event], error) {
	body := *req
	body.Stream = true

	r, err := jsonRequest("chat.stream", http.MethodPost, "/chat/completions", &body)
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, r, "chat")
}
