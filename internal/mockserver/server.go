// Package mockserver emulates the upstream API deterministically. Prompt text
// selects the scenario, so streaming failure modes can be exercised end to end
// without a network.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures the mock server.
type Options struct {
	// Port is the listen port for Run.
	Port int

	// APIKey, when set, is the only bearer token accepted.
	APIKey string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// RequestTimeout bounds single-shot handlers. Zero means 30s.
	RequestTimeout time.Duration

	// FrameDelay is slept between streamed frames.
	FrameDelay time.Duration

	// RateLimits are advertised on every response.
	RateLimits RateLimits

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

const shutdownTimeout = 10 * time.Second

// Server is the mock upstream.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	opts   Options
}

// DefaultRateLimits are advertised when Options.RateLimits is zero.
var DefaultRateLimits = RateLimits{
	RequestsLimit:     500,
	RequestsRemaining: 499,
	RequestsReset:     120 * time.Millisecond,
	TokensLimit:       200000,
	TokensRemaining:   199000,
	TokensReset:       300 * time.Millisecond,
}

// New builds the router. Routes live under /v1.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimits == (RateLimits{}) {
		opts.RateLimits = DefaultRateLimits
	}

	s := &Server{Port: opts.Port, logger: opts.Logger, opts: opts}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "mock-upstream")
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(opts.APIKey))
		r.Use(RateLimitMiddleware(opts.RateLimits))

		r.Post("/completions", s.handleCompletions)
		r.Post("/chat/completions", s.handleChatCompletions)
		r.Get("/realtime", s.handleRealtime)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(opts.RequestTimeout))

			r.Get("/models", s.handleListModels)
			r.Get("/models/{id}", s.handleRetrieveModel)
			r.Post("/files", s.handleUploadFile)
			r.Get("/files", s.handleListFiles)
			r.Get("/files/{id}", s.handleRetrieveFile)
			r.Post("/fine_tuning/jobs", s.handleCreateFineTuningJob)
			r.Get("/fine_tuning/jobs/{id}", s.handleRetrieveFineTuningJob)
			r.Post("/batches", s.handleCreateBatch)
			r.Get("/batches/{id}", s.handleRetrieveBatch)
			r.Post("/assistants", s.handleCreateAssistant)
			r.Get("/assistants/{id}", s.handleRetrieveAssistant)
			r.Post("/realtime/sessions", s.handleCreateRealtimeSession)
		})
	})

	s.Router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Run listens on the configured port until ctx is cancelled, then shuts the
// listener down, waiting up to shutdownTimeout for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting mock upstream", slog.Int("port", s.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down mock upstream")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
