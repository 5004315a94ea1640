package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/aiwire/internal/codec"
	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/stream"
	"github.com/tjfontaine/aiwire/internal/telemetry"
	"github.com/tjfontaine/aiwire/internal/wire"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultRealtimeURL = "wss://api.openai.com/v1/realtime"
	defaultTimeout     = 120 * time.Second
	defaultUserAgent   = "aiwire/1.0"

	// maxErrorBody bounds how much of a non-2xx body is read.
	maxErrorBody = 1 << 20
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithRealtimeURL sets the websocket endpoint for realtime connections.
func WithRealtimeURL(realtimeURL string) ClientOption {
	return func(c *Client) {
		c.realtimeURL = strings.TrimSuffix(realtimeURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
		c.customHTTPClient = true
	}
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) ClientOption {
	return func(c *Client) {
		c.organization = org
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout bounds single-shot calls end to end and streaming calls until
// response headers arrive. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxFrameSize bounds a single stream frame.
func WithMaxFrameSize(n int) ClientOption {
	return func(c *Client) {
		c.maxFrameSize = n
	}
}

// WithLogger sets the logger used by the client and its decoders.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records request and stream metrics.
func WithMetrics(m *telemetry.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client issues requests against the OpenAI API and decodes the results into
// model types. Every returned error is a *domain.ClientError.
type Client struct {
	apiKey       string
	baseURL      string
	realtimeURL  string
	organization string
	userAgent    string
	timeout      time.Duration
	maxFrameSize int
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	tracer       trace.Tracer

	customHTTPClient bool
	baseTransport    *http.Transport
}

// NewClient creates a new OpenAI API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		realtimeURL:  defaultRealtimeURL,
		userAgent:    defaultUserAgent,
		timeout:      defaultTimeout,
		maxFrameSize: wire.DefaultMaxFrameSize,
		logger:       slog.Default(),
		tracer:       otel.Tracer("aiwire/openai"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseTransport = http.DefaultTransport.(*http.Transport).Clone()
	c.baseTransport.ResponseHeaderTimeout = c.timeout
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(c.baseTransport)}
	}
	return c
}

// request describes one outgoing call.
type request struct {
	operation   string
	method      string
	path        string
	body        io.Reader
	contentType string
	header      http.Header
}

func jsonRequest(operation, method, path string, in any) (*request, error) {
	r := &request{operation: operation, method: method, path: path}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			ce := domain.NewMalformedError(nil, err)
			ce.Message = "encode request"
			return nil, ce
		}
		r.body = bytes.NewReader(data)
		r.contentType = "application/json"
	}
	return r, nil
}

// send issues r and returns the response when its status is 2xx. Any other
// status is read and mapped to a remote error.
func (c *Client) send(ctx context.Context, r *request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, domain.NewTransportError("build request", err)
	}
	c.setHeaders(httpReq, r.contentType)
	for k, v := range r.header {
		httpReq.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(r.operation, 0, start)
		return nil, codec.FromTransport(err)
	}
	c.observe(r.operation, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return nil, codec.FromTransport(err)
		}
		ce := codec.FromHTTPResponse(resp.StatusCode, body)
		c.logger.Debug("remote error",
			slog.String("operation", r.operation),
			slog.Int("status", resp.StatusCode),
			slog.String("category", string(ce.Remote.Category)),
		)
		return nil, ce
	}
	return resp, nil
}

// do runs a single-shot call and decodes the body as a resource of type T.
func do[T model.Resource](ctx context.Context, c *Client, r *request) (_ T, err error) {
	var zero T
	ctx, span := c.startSpan(ctx, r)
	defer func() { endSpan(span, err) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, codec.FromTransport(err)
	}
	return model.DecodeAs[T](body)
}

// openStream starts a streaming call and hands the body to a decoder.
func (c *Client) openStream(ctx context.Context, r *request, name string) (_ *stream.Decoder[model.Event], err error) {
	spanCtx, span := c.startSpan(ctx, r)
	defer func() { endSpan(span, err) }()

	if r.header == nil {
		r.header = http.Header{}
	}
	r.header.Set("Accept", "text/event-stream")

	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}

	src := wire.NewSSEReader(resp.Body, wire.WithMaxFrameSize(c.maxFrameSize))
	return stream.NewDecoder(spanCtx, src, codec.ParseTextFrame, c.decoderOptions(name)...), nil
}

func (c *Client) decoderOptions(name string) []stream.Option {
	opts := []stream.Option{stream.WithName(name), stream.WithLogger(c.logger)}
	if c.metrics != nil {
		opts = append(opts, stream.WithObserver(c.metrics))
	}
	return opts
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())
}

func (c *Client) observe(operation string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(operation, status, time.Since(start))
	}
}

func (c *Client) startSpan(ctx context.Context, r *request) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "openai."+r.operation, trace.WithAttributes(
		attribute.String("http.method", r.method),
		attribute.String("aiwire.path", r.path),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
	}
	span.End()
}
