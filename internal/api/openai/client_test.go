package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/mockserver"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/stream"
	"github.com/tjfontaine/aiwire/internal/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(mockserver.New(mockserver.Options{APIKey: "sk-test", Logger: quietLogger()}))
	t.Cleanup(srv.Close)

	opts = append([]ClientOption{
		WithBaseURL(srv.URL + "/v1"),
		WithRealtimeURL("ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime"),
		WithLogger(quietLogger()),
	}, opts...)
	return NewClient("sk-test", opts...)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func strPtr(s string) *string { return &s }

func userMessage(text string) []model.ChatMessage {
	return []model.ChatMessage{{Role: "user", Content: strPtr(text)}}
}

// element is one item of a drained sequence.
type element struct {
	event model.Event
	err   error
}

func drain(t *testing.T, dec *stream.Decoder[model.Event]) []element {
	t.Helper()
	ctx := testContext(t)
	var out []element
	for {
		ev, err := dec.Next(ctx)
		if err == io.EOF {
			return out
		}
		out = append(out, element{ev, err})
	}
}

func concat(elems []element) string {
	var b strings.Builder
	for _, e := range elems {
		if d, ok := e.event.(*model.StreamDelta); ok {
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("sk-test")

	if c.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %v, want %v", c.baseURL, defaultBaseURL)
	}
	if c.realtimeURL != defaultRealtimeURL {
		t.Errorf("realtimeURL = %v, want %v", c.realtimeURL, defaultRealtimeURL)
	}
	if c.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, defaultTimeout)
	}
	if c.httpClient == nil || c.customHTTPClient {
		t.Error("expected default instrumented http client")
	}

	c = NewClient("sk-test", WithBaseURL("http://localhost:1234/v1/"), WithHTTPClient(http.DefaultClient))
	if c.baseURL != "http://localhost:1234/v1" {
		t.Errorf("baseURL = %v, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient != http.DefaultClient || c.dialClient() != http.DefaultClient {
		t.Error("expected custom http client to be used for requests and dialing")
	}
}

func TestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"asst_1","object":"assistant","created_at":1,"model":"gpt-4o"}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test",
		WithBaseURL(srv.URL),
		WithOrganization("org-1"),
		WithUserAgent("aiwire-test"),
		WithLogger(quietLogger()),
	)
	if _, err := c.RetrieveAssistant(testContext(t), "asst_1"); err != nil {
		t.Fatalf("RetrieveAssistant() error = %v", err)
	}

	tests := []struct {
		header string
		want   string
	}{
		{"Authorization", "Bearer sk-test"},
		{"OpenAI-Organization", "org-1"},
		{"User-Agent", "aiwire-test"},
		{"OpenAI-Beta", "assistants=v2"},
	}
	for _, tt := range tests {
		if v := got.Get(tt.header); v != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, v, tt.want)
		}
	}
	if got.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestCreateChatCompletion(t *testing.T) {
	c := newMockClient(t)

	resp, err := c.CreateChatCompletion(testContext(t), &ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: userMessage("hello"),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content == nil {
		t.Fatalf("choices = %+v", resp.Choices)
	}
	if got := *resp.Choices[0].Message.Content; got != "You said: hello" {
		t.Errorf("content = %q, want %q", got, "You said: hello")
	}
	if resp.Usage == nil || resp.Usage.TotalTokens == 0 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestCreateCompletion_RemoteError(t *testing.T) {
	c := newMockClient(t)

	_, err := c.CreateCompletion(testContext(t), &CompletionRequest{Model: "gpt-3.5-turbo-instruct", Prompt: "error"})
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("CreateCompletion() error = %v, want remote", err)
	}
	var ce *domain.ClientError
	errors.As(err, &ce)
	if ce.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", ce.StatusCode)
	}
	if ce.Remote.Category != domain.ErrorTypeRateLimit {
		t.Errorf("Category = %v, want %v", ce.Remote.Category, domain.ErrorTypeRateLimit)
	}
}

func TestStreamChatCompletion(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		wantText  string
		wantErrs  []domain.ErrorKind
		wantState stream.State
	}{
		{
			name:      "normal",
			prompt:    "hello world",
			wantText:  "You said: hello world",
			wantState: stream.StateClosed,
		},
		{
			name:      "first frame error",
			prompt:    "error",
			wantErrs:  []domain.ErrorKind{domain.KindRemote},
			wantState: stream.StateErrored,
		},
		{
			name:      "malformed then valid",
			prompt:    "malformed",
			wantText:  "You said: malformed",
			wantErrs:  []domain.ErrorKind{domain.KindMalformed},
			wantState: stream.StateClosed,
		},
		{
			name:      "truncated",
			prompt:    "truncate",
			wantText:  "You ",
			wantErrs:  []domain.ErrorKind{domain.KindTruncated},
			wantState: stream.StateErrored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockClient(t)
			dec, err := c.StreamChatCompletion(testContext(t), &ChatCompletionRequest{
				Model:    "gpt-4o-mini",
				Messages: userMessage(tt.prompt),
			})
			if err != nil {
				t.Fatalf("StreamChatCompletion() error = %v", err)
			}
			defer dec.Close()

			elems := drain(t, dec)
			if got := concat(elems); got != tt.wantText {
				t.Errorf("text = %q, want %q", got, tt.wantText)
			}

			var kinds []domain.ErrorKind
			for _, e := range elems {
				if e.err != nil {
					kinds = append(kinds, domain.KindOf(e.err))
				}
			}
			if len(kinds) != len(tt.wantErrs) {
				t.Fatalf("errors = %v, want %v", kinds, tt.wantErrs)
			}
			for i := range kinds {
				if kinds[i] != tt.wantErrs[i] {
					t.Errorf("error[%d] = %v, want %v", i, kinds[i], tt.wantErrs[i])
				}
			}
			if got := dec.State(); got != tt.wantState {
				t.Errorf("State() = %v, want %v", got, tt.wantState)
			}
		})
	}
}

func TestStreamCompletion_Usage(t *testing.T) {
	c := newMockClient(t)

	dec, err := c.StreamCompletion(testContext(t), &CompletionRequest{
		Model:         "gpt-3.5-turbo-instruct",
		Prompt:        "hi",
		StreamOptions: &StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	defer dec.Close()

	elems := drain(t, dec)
	last := elems[len(elems)-1]
	usage, ok := last.event.(*model.UsageReport)
	if !ok {
		t.Fatalf("last element = %#v, want *model.UsageReport", last)
	}
	if usage.Usage.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", usage.Usage.TotalTokens)
	}
	if got := concat(elems); got != "You said: hi" {
		t.Errorf("text = %q", got)
	}
}

func TestStream_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream unavailable")
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL), WithLogger(quietLogger()))
	_, err := c.StreamChatCompletion(testContext(t), &ChatCompletionRequest{Model: "m", Messages: userMessage("x")})

	var ce *domain.ClientError
	if !errors.As(err, &ce) || ce.Kind != domain.KindRemote {
		t.Fatalf("error = %v, want remote", err)
	}
	if ce.StatusCode != http.StatusBadGateway || ce.Remote.Message != "upstream unavailable" {
		t.Errorf("error = %+v", ce.Remote)
	}
}

func TestNonSuccessStatus_BodyCutShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"message":"upstr`)
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL), WithLogger(quietLogger()))
	_, err := c.ListModels(testContext(t))
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("ListModels() error = %v, want transport", err)
	}
	if errors.Is(err, domain.ErrRemote) {
		t.Errorf("ListModels() error = %v, built from a partial body", err)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient("sk-test", WithBaseURL(url), WithLogger(quietLogger()))
	_, err := c.ListModels(testContext(t))
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("ListModels() error = %v, want transport", err)
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond), WithLogger(quietLogger()))
	_, err := c.RetrieveModel(testContext(t), "gpt-4o")
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("RetrieveModel() error = %v, want transport", err)
	}
}

func TestWrongObjectType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"file-1","object":"file","bytes":1,"created_at":1,"filename":"a","purpose":"batch"}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL), WithLogger(quietLogger()))
	_, err := c.RetrieveBatch(testContext(t), "batch_1")
	var ce *domain.ClientError
	if !errors.As(err, &ce) || ce.Kind != domain.KindUnknownVariant || ce.Discriminator != "file" {
		t.Errorf("RetrieveBatch() error = %v, want unknown variant \"file\"", err)
	}
}

func TestResources(t *testing.T) {
	c := newMockClient(t)
	ctx := testContext(t)

	t.Run("list models", func(t *testing.T) {
		list, err := c.ListModels(ctx)
		if err != nil {
			t.Fatalf("ListModels() error = %v", err)
		}
		models := model.Items[*model.Model](list)
		if len(models) != len(mockserver.Models) {
			t.Errorf("models = %d, want %d", len(models), len(mockserver.Models))
		}
	})

	t.Run("retrieve unknown model", func(t *testing.T) {
		_, err := c.RetrieveModel(ctx, "nope")
		var ce *domain.ClientError
		if !errors.As(err, &ce) || ce.Remote == nil || ce.Remote.Category != domain.ErrorTypeNotFound {
			t.Errorf("RetrieveModel() error = %v, want not_found", err)
		}
	})

	t.Run("list files", func(t *testing.T) {
		list, err := c.ListFiles(ctx, &ListOptions{Purpose: "fine-tune", Limit: 10})
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		files := model.Items[*model.File](list)
		if len(files) != 1 || files[0].ID != "file-abc" {
			t.Errorf("files = %+v", files)
		}
	})

	t.Run("fine-tuning job", func(t *testing.T) {
		job, err := c.CreateFineTuningJob(ctx, &FineTuningJobRequest{Model: "gpt-4o-mini", TrainingFile: "file-abc"})
		if err != nil {
			t.Fatalf("CreateFineTuningJob() error = %v", err)
		}
		if job.Status != "queued" || job.TrainingFile != "file-abc" {
			t.Errorf("job = %+v", job)
		}
		if _, err := c.RetrieveFineTuningJob(ctx, job.ID); err != nil {
			t.Errorf("RetrieveFineTuningJob() error = %v", err)
		}
	})

	t.Run("batch", func(t *testing.T) {
		b, err := c.CreateBatch(ctx, &BatchRequest{InputFileID: "file-def", Endpoint: "/v1/chat/completions", CompletionWindow: "24h"})
		if err != nil {
			t.Fatalf("CreateBatch() error = %v", err)
		}
		if b.InputFileID != "file-def" || b.Status != "validating" {
			t.Errorf("batch = %+v", b)
		}
		if _, err := c.RetrieveBatch(ctx, "missing-batch"); !errors.Is(err, domain.ErrRemote) {
			t.Errorf("RetrieveBatch() error = %v, want remote", err)
		}
	})

	t.Run("assistant", func(t *testing.T) {
		a, err := c.CreateAssistant(ctx, &AssistantRequest{Model: "gpt-4o", Name: "helper"})
		if err != nil {
			t.Fatalf("CreateAssistant() error = %v", err)
		}
		if a.ID != "asst_mock" || a.Name == nil || *a.Name != "helper" {
			t.Errorf("assistant = %+v", a)
		}
	})

	t.Run("realtime session", func(t *testing.T) {
		s, err := c.CreateRealtimeSession(ctx, &RealtimeSessionRequest{Model: "gpt-4o-realtime-preview"})
		if err != nil {
			t.Fatalf("CreateRealtimeSession() error = %v", err)
		}
		if s.ClientSecret == nil || s.ClientSecret.Value != "ek_mock" {
			t.Errorf("session = %+v", s)
		}
	})
}

func TestUploadFile(t *testing.T) {
	c := newMockClient(t)
	ctx := testContext(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "train.jsonl")
	if err := os.WriteFile(path, []byte(`{"prompt":"a"}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := c.UploadFile(ctx, path, "fine-tune")
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if f.Filename != "train.jsonl" || f.Bytes != 15 || f.Purpose != "fine-tune" {
		t.Errorf("file = %+v", f)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing path", filepath.Join(dir, "absent.jsonl")},
		{"directory", dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.UploadFile(ctx, tt.path, "fine-tune")
			if !errors.Is(err, domain.ErrFile) {
				t.Errorf("UploadFile() error = %v, want file error", err)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	m := telemetry.NewMetrics()
	c := newMockClient(t, WithMetrics(m))

	dec, err := c.StreamChatCompletion(testContext(t), &ChatCompletionRequest{Model: "gpt-4o-mini", Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("StreamChatCompletion() error = %v", err)
	}
	drain(t, dec)
	dec.Close()

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat.stream", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StreamsEnded.WithLabelValues("chat", "closed")); got != 1 {
		t.Errorf("closed streams = %v, want 1", got)
	}
}
