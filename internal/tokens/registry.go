// Package tokens estimates the token footprint of prompts and reassembled
// stream output.
package tokens

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/aiwire/internal/model"
)

// Request is the input to a token count.
type Request struct {
	Model    string
	Prompt   string
	Messages []model.ChatMessage
	Tools    []Tool
}

// Tool is a function definition counted as part of a request.
type Tool = model.FunctionDefinition

// Result is a token count. Estimated is set when the count is a heuristic.
type Result struct {
	InputTokens int    `json:"input_tokens"`
	Model       string `json:"model,omitempty"`
	Estimated   bool   `json:"estimated,omitempty"`
}

// Counter counts tokens for the models it supports.
type Counter interface {
	CountTokens(ctx context.Context, req *Request) (*Result, error)
	SupportsModel(model string) bool
}

// Registry picks the first registered counter supporting a model, falling
// back to an estimator.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the character estimator as fallback.
func NewRegistry() *Registry {
	return &Registry{
		fallback: NewEstimator(),
	}
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// CountTokens counts tokens using the appropriate counter for the model.
func (r *Registry) CountTokens(ctx context.Context, req *Request) (*Result, error) {
	if counter := r.GetCounter(req.Model); counter != nil {
		return counter.CountTokens(ctx, req)
	}
	return nil, fmt.Errorf("no token counter available for model: %s", req.Model)
}

// GetCounter returns the appropriate counter for a model.
func (r *Registry) GetCounter(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// CountTokens estimates the token count.
func (e *Estimator) CountTokens(ctx context.Context, req *Request) (*Result, error) {
	totalChars := len(req.Prompt)

	for _, msg := range req.Messages {
		totalChars += len(msg.Role)
		if msg.Content != nil {
			totalChars += len(*msg.Content)
		}
		totalChars += 4 // role tokens + separators
	}

	for _, tool := range req.Tools {
		totalChars += len(tool.Name)
		totalChars += len(tool.Description)
		totalChars += len(tool.Parameters)
	}

	return &Result{
		InputTokens: int(float64(totalChars) / e.CharsPerToken),
		Model:       req.Model,
		Estimated:   true,
	}, nil
}

// SupportsModel returns true; the estimator accepts every model.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher matches model names by exact name or prefix.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}

	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}

	return false
}
