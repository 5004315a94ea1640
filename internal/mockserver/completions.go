package mockserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/aiwire/internal/codec"
	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
)

// Scenario is a deterministic upstream behavior selected by prompt text.
type Scenario string

const (
	ScenarioNormal    Scenario = "normal"
	ScenarioError     Scenario = "error"
	ScenarioMalformed Scenario = "malformed"
	ScenarioTruncate  Scenario = "truncate"
	ScenarioAmbiguous Scenario = "ambiguous"
)

// ScenarioFor picks the scenario named by the first matching keyword in prompt.
func ScenarioFor(prompt string) Scenario {
	p := strings.ToLower(prompt)
	for _, s := range []Scenario{ScenarioError, ScenarioMalformed, ScenarioTruncate, ScenarioAmbiguous} {
		if strings.Contains(p, string(s)) {
			return s
		}
	}
	return ScenarioNormal
}

// Reply is the deterministic answer to prompt.
func Reply(prompt string) string {
	return "You said: " + prompt
}

// replyFragments splits the reply into the fragments streamed one per frame.
func replyFragments(prompt string) []string {
	return strings.SplitAfter(Reply(prompt), " ")
}

// rateLimited is the remote error of the error scenario.
func rateLimited() *domain.RemoteError {
	code := "rate_limit_exceeded"
	return &domain.RemoteError{
		Category:   domain.ErrorTypeRateLimit,
		Type:       "rate_limit_error",
		WireCode:   &code,
		Message:    "rate limited",
		StatusCode: http.StatusTooManyRequests,
	}
}

type completionBody struct {
	Model         string `json:"model"`
	Stream        bool   `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

func (b completionBody) includeUsage() bool {
	return b.StreamOptions != nil && b.StreamOptions.IncludeUsage
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(raw) {
		writeInvalidRequest(w, "request body is not valid JSON")
		return nil, false
	}
	return raw, true
}

func writeInvalidRequest(w http.ResponseWriter, msg string) {
	codec.WriteError(w, &domain.RemoteError{
		Category:   domain.ErrorTypeInvalidRequest,
		Type:       "invalid_request_error",
		Message:    msg,
		StatusCode: http.StatusBadRequest,
	})
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var body completionBody
	json.Unmarshal(raw, &body)
	prompt := gjson.GetBytes(raw, "prompt").String()

	chunk := func(id string, text string, finish *string) any {
		return model.Completion{
			ID:      id,
			Object:  model.ObjectTextCompletion,
			Created: created,
			Model:   body.Model,
			Choices: []model.CompletionChoice{{Text: text, FinishReason: finish}},
		}
	}

	if !body.Stream {
		if ScenarioFor(prompt) == ScenarioError {
			codec.WriteError(w, rateLimited())
			return
		}
		stop := "stop"
		c := chunk("cmpl-mock", Reply(prompt), &stop).(model.Completion)
		c.Usage = usageFor(prompt)
		writeJSON(w, http.StatusOK, c)
		return
	}
	s.streamText(w, r, prompt, body, "cmpl-mock", chunk)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var body completionBody
	json.Unmarshal(raw, &body)
	prompt := lastUserMessage(raw)

	chunk := func(id string, text string, finish *string) any {
		var content *string
		if text != "" {
			content = &text
		}
		return model.ChatCompletionChunk{
			ID:      id,
			Object:  model.ObjectChatCompletionChunk,
			Created: created,
			Model:   body.Model,
			Choices: []model.ChunkChoice{{Delta: model.ChunkDelta{Content: content}, FinishReason: finish}},
		}
	}

	if !body.Stream {
		if ScenarioFor(prompt) == ScenarioError {
			codec.WriteError(w, rateLimited())
			return
		}
		stop := "stop"
		reply := Reply(prompt)
		writeJSON(w, http.StatusOK, model.ChatCompletion{
			ID:      "chatcmpl-mock",
			Object:  model.ObjectChatCompletion,
			Created: created,
			Model:   body.Model,
			Choices: []model.ChatChoice{{
				Message:      model.ChatMessage{Role: "assistant", Content: &reply},
				FinishReason: &stop,
			}},
			Usage: usageFor(prompt),
		})
		return
	}
	s.streamText(w, r, prompt, body, "chatcmpl-mock", chunk)
}

// streamText writes the SSE stream for prompt's scenario.
func (s *Server) streamText(w http.ResponseWriter, r *http.Request, prompt string, body completionBody, id string, chunk func(id, text string, finish *string) any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(data string) bool {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		if s.opts.FrameDelay > 0 {
			select {
			case <-r.Context().Done():
				return false
			case <-time.After(s.opts.FrameDelay):
			}
		}
		return r.Context().Err() == nil
	}
	sendJSON := func(v any) bool {
		data, _ := json.Marshal(v)
		return send(string(data))
	}

	scenario := ScenarioFor(prompt)
	if scenario == ScenarioError {
		remote := rateLimited()
		sendJSON(map[string]any{"error": map[string]any{
			"message": remote.Message,
			"type":    remote.Type,
			"code":    remote.WireCode,
		}})
		return
	}

	fragments := replyFragments(prompt)
	for i, frag := range fragments {
		if scenario == ScenarioMalformed && i == 0 {
			if !send("{not json") {
				return
			}
		}
		if !sendJSON(chunk(id, frag, nil)) {
			return
		}
		if scenario == ScenarioTruncate {
			return
		}
	}

	stop := "stop"
	if !sendJSON(chunk(id, "", &stop)) {
		return
	}
	if body.includeUsage() {
		usage := chunk(id, "", nil)
		switch c := usage.(type) {
		case model.Completion:
			c.Choices = nil
			c.Usage = usageFor(prompt)
			usage = c
		case model.ChatCompletionChunk:
			c.Choices = []model.ChunkChoice{}
			c.Usage = usageFor(prompt)
			usage = c
		}
		if !sendJSON(usage) {
			return
		}
	}
	send("[DONE]")
}

// lastUserMessage returns the text of the last user message in a chat body.
func lastUserMessage(raw []byte) string {
	var prompt string
	gjson.GetBytes(raw, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "user" {
			prompt = msg.Get("content").String()
		}
		return true
	})
	return prompt
}

func usageFor(prompt string) *model.Usage {
	in := len(strings.Fields(prompt))
	out := len(replyFragments(prompt))
	return &model.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}
