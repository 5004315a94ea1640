package tokens

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Per-message framing overhead of the chat format.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	tokensPerTool    = 7
	assistantPriming = 3
)

// TiktokenCounter counts tokens exactly for models with a known tiktoken
// encoding.
type TiktokenCounter struct {
	matcher *ModelMatcher

	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewTiktokenCounter creates a counter for the OpenAI model families.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		matcher: NewModelMatcher(
			// "o" prefixes cover the reasoning models.
			[]string{"gpt-", "o1", "o3", "o4", "text-embedding", "text-davinci", "chatgpt-"},
			[]string{"davinci", "curie", "babbage", "ada"},
		),
		codecs: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

func (c *TiktokenCounter) codec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	c.mu.RLock()
	codec, ok := c.codecs[encoding]
	c.mu.RUnlock()
	if ok {
		return codec, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("get tokenizer encoding %s: %w", encoding, err)
	}

	c.mu.Lock()
	c.codecs[encoding] = codec
	c.mu.Unlock()
	return codec, nil
}

// modelToEncoding maps model names to encodings.
//
//	O200kBase   gpt-4o, gpt-4.1, gpt-5, o-series, and unknown models
//	Cl100kBase  gpt-4, gpt-3.5-turbo, text-embedding-*
//	P50kBase    text-davinci-*
//	R50kBase    davinci, curie, babbage, ada
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "chatgpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-davinci"):
		return tokenizer.P50kBase
	case model == "davinci" || model == "curie" || model == "babbage" || model == "ada":
		return tokenizer.R50kBase
	default:
		return tokenizer.O200kBase
	}
}

// CountTokens counts the prompt, chat messages, and tool definitions of req.
func (c *TiktokenCounter) CountTokens(ctx context.Context, req *Request) (*Result, error) {
	codec, err := c.codec(req.Model)
	if err != nil {
		return nil, err
	}
	count := func(s string) int {
		if s == "" {
			return 0
		}
		ids, _, _ := codec.Encode(s)
		return len(ids)
	}

	total := count(req.Prompt)

	for _, msg := range req.Messages {
		total += tokensPerMessage + tokensPerRole
		if msg.Content != nil {
			total += count(*msg.Content)
		}
		total += count(msg.Name)
		for _, tc := range msg.ToolCalls {
			total += count(tc.Function.Name) + count(tc.Function.Arguments) + 3
		}
	}

	for _, tool := range req.Tools {
		total += count(tool.Name) + count(tool.Description) + count(string(tool.Parameters))
		total += tokensPerTool
	}

	if len(req.Messages) > 0 {
		total += assistantPriming
	}

	return &Result{InputTokens: total, Model: req.Model}, nil
}

// SupportsModel reports whether model belongs to a known tiktoken family.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(model)
}

// CountText counts the tokens of a plain string, such as reassembled stream
// output.
func (c *TiktokenCounter) CountText(model, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

var _ Counter = (*TiktokenCounter)(nil)
