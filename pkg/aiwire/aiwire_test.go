package aiwire_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/aiwire/internal/mockserver"
	"github.com/tjfontaine/aiwire/pkg/aiwire"
)

func TestPublicAPI(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(mockserver.New(mockserver.Options{Logger: logger}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := aiwire.NewClient("sk-test", aiwire.WithBaseURL(srv.URL+"/v1"), aiwire.WithLogger(logger))

	tests := []struct {
		prompt    string
		wantText  string
		wantErr   error
		wantState aiwire.State
	}{
		{prompt: "hello", wantText: "You said: hello", wantState: aiwire.StateClosed},
		{prompt: "truncate", wantText: "You ", wantErr: aiwire.ErrTruncated, wantState: aiwire.StateErrored},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			content := tt.prompt
			dec, err := c.StreamChatCompletion(ctx, &aiwire.ChatCompletionRequest{
				Model:    "gpt-4o-mini",
				Messages: []aiwire.ChatMessage{{Role: "user", Content: &content}},
			})
			if err != nil {
				t.Fatalf("StreamChatCompletion() error = %v", err)
			}
			defer dec.Close()

			var (
				text    strings.Builder
				lastErr error
			)
			for ev, err := range dec.All(ctx) {
				if err != nil {
					lastErr = err
					continue
				}
				if d, ok := ev.(*aiwire.StreamDelta); ok {
					text.WriteString(d.Text)
				}
			}

			if text.String() != tt.wantText {
				t.Errorf("text = %q, want %q", text.String(), tt.wantText)
			}
			if tt.wantErr == nil && lastErr != nil || tt.wantErr != nil && !errors.Is(lastErr, tt.wantErr) {
				t.Errorf("error = %v, want %v", lastErr, tt.wantErr)
			}
			if dec.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", dec.State(), tt.wantState)
			}
		})
	}
}
