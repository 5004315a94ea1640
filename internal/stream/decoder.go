// Package stream turns a feed of wire frames into a lazy, forward-only sequence
// of typed events.
//
// A Decoder is an explicit state machine:
//
//	Open      the feed is live; Next reads frames.
//	Draining  the feed has ended; decoded events and the final outcome are
//	          still being handed out. The transport is already released.
//	Closed    the sequence ended cleanly or was closed by the caller.
//	Errored   the sequence ended with a terminal error, which was delivered.
//
// Next is the only suspension point and must be called from one goroutine at a
// time. Close may be called from any goroutine.
//
// The decoder starts no background work of its own. The one exception is a
// cancellation bridge: when Next is given a cancellable context, the read from
// the source runs on a helper goroutine so that the context or Close can end
// the wait. That goroutine exits as soon as the source read returns, which
// Close guarantees by releasing the source. With a context that can never be
// canceled, Next reads the source directly.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/wire"
)

// State is the lifecycle state of a Decoder.
type State int

const (
	StateOpen State = iota
	StateDraining
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseFunc decodes one frame into zero or more events. A returned
// *domain.ClientError whose Terminal method reports true ends the sequence;
// any other error is delivered as one element and decoding continues.
type ParseFunc[T any] func(frame wire.Frame) ([]T, error)

// Observer receives decoder lifecycle notifications.
type Observer interface {
	StreamStarted(stream string)
	FrameReceived(stream string, kind wire.FrameKind)
	DecodeFailed(stream string, kind domain.ErrorKind)
	StreamEnded(stream string, state State)
}

type nopObserver struct{}

func (nopObserver) StreamStarted(string)                  {}
func (nopObserver) FrameReceived(string, wire.FrameKind)  {}
func (nopObserver) DecodeFailed(string, domain.ErrorKind) {}
func (nopObserver) StreamEnded(string, State)             {}

type options struct {
	name     string
	logger   *slog.Logger
	observer Observer
}

// Option configures a Decoder.
type Option func(*options)

// WithName labels the stream in logs, spans, and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// Decoder produces typed events from a wire.Source.
type Decoder[T any] struct {
	src      wire.Source
	parse    ParseFunc[T]
	name     string
	logger   *slog.Logger
	observer Observer
	span     trace.Span

	// Owned by the consumer goroutine.
	pending []T
	final   *domain.ClientError
	frames  atomic.Int64
	events  atomic.Int64

	mu    sync.Mutex
	state State
	done  chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

// NewDecoder returns a decoder that owns src. ctx parents the stream span only;
// per-read cancellation is passed to Next.
func NewDecoder[T any](ctx context.Context, src wire.Source, parse ParseFunc[T], opts ...Option) *Decoder[T] {
	o := options{
		name:     "stream",
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	_, span := otel.Tracer("aiwire/stream").Start(ctx, "stream."+o.name,
		trace.WithAttributes(attribute.String("stream.name", o.name)))

	d := &Decoder[T]{
		src:      src,
		parse:    parse,
		name:     o.name,
		logger:   o.logger.With(slog.String("stream", o.name)),
		observer: o.observer,
		span:     span,
		state:    StateOpen,
		done:     make(chan struct{}),
	}
	d.observer.StreamStarted(d.name)
	return d
}

// State returns the current state.
func (d *Decoder[T]) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Next returns the next event. Non-terminal decode failures are returned as
// errors and the sequence continues. The final element of a failed stream is
// its terminal error. Next returns io.EOF, unwrapped, once the sequence has
// ended.
func (d *Decoder[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		switch d.State() {
		case StateClosed, StateErrored:
			return zero, io.EOF
		}

		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			d.events.Add(1)
			return ev, nil
		}

		if d.State() == StateDraining {
			return zero, d.finish()
		}

		frame, halted, err := d.read(ctx)
		if halted {
			return zero, err
		}
		if err != nil {
			if err == io.EOF {
				d.end(domain.NewTruncatedError(nil, io.ErrUnexpectedEOF))
				continue
			}
			ce := asClientError(err, nil)
			if ce.Terminal() {
				d.end(ce)
				continue
			}
			d.reject(ce)
			return zero, ce
		}

		d.frames.Add(1)
		d.observer.FrameReceived(d.name, frame.Kind)
		if frame.Kind == wire.FrameTerminator {
			d.end(nil)
			continue
		}

		events, err := d.parse(frame)
		if err != nil {
			ce := asClientError(err, frame.Payload)
			if ce.Terminal() {
				d.pending = append(d.pending, events...)
				d.end(ce)
				continue
			}
			d.reject(ce)
			return zero, ce
		}
		d.pending = append(d.pending, events...)
	}
}

// All returns the remaining sequence as an iterator. Stopping the iteration
// early closes the decoder.
func (d *Decoder[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			ev, err := d.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(ev, err) {
				d.Close()
				return
			}
		}
	}
}

// Close ends the sequence and releases the transport. It unblocks a pending
// Next, after which Next returns io.EOF. Close is idempotent.
func (d *Decoder[T]) Close() error {
	d.mu.Lock()
	prev := d.state
	if prev == StateOpen || prev == StateDraining {
		d.state = StateClosed
		close(d.done)
	}
	d.mu.Unlock()

	if prev == StateOpen || prev == StateDraining {
		d.logger.Debug("stream closed by caller", slog.String("from", prev.String()))
		d.complete(StateClosed, nil)
	}
	return d.release()
}

// read waits for the next frame, honoring ctx and Close. It reports halted
// when the decoder stopped while waiting; err is then the element to return.
// A halted read leaves its helper goroutine blocked in the source until the
// released source returns.
func (d *Decoder[T]) read(ctx context.Context) (wire.Frame, bool, error) {
	if ctx.Done() == nil {
		frame, err := d.src.Next(ctx)
		if d.State() != StateOpen {
			return wire.Frame{}, true, io.EOF
		}
		return frame, false, err
	}

	type result struct {
		frame wire.Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		frame, err := d.src.Next(ctx)
		ch <- result{frame, err}
	}()

	select {
	case r := <-ch:
		if d.State() != StateOpen {
			return wire.Frame{}, true, io.EOF
		}
		return r.frame, false, r.err
	case <-d.done:
		return wire.Frame{}, true, io.EOF
	case <-ctx.Done():
		ce := domain.NewTransportError("stream canceled", ctx.Err())
		if !d.transition(StateOpen, StateErrored) {
			return wire.Frame{}, true, io.EOF
		}
		close(d.done)
		d.complete(StateErrored, ce)
		d.release()
		return wire.Frame{}, true, ce
	}
}

// end records the final outcome and releases the transport. A nil final is a
// clean end.
func (d *Decoder[T]) end(final *domain.ClientError) {
	d.final = final
	if !d.transition(StateOpen, StateDraining) {
		return
	}
	if err := d.release(); err != nil {
		d.logger.Debug("release transport", slog.String("error", err.Error()))
	}
}

// finish hands out the final outcome of a drained stream.
func (d *Decoder[T]) finish() error {
	if d.final == nil {
		if d.transition(StateDraining, StateClosed) {
			d.complete(StateClosed, nil)
		}
		return io.EOF
	}
	final := d.final
	if d.transition(StateDraining, StateErrored) {
		d.complete(StateErrored, final)
	}
	return final
}

// reject logs and counts a frame-level failure that does not end the stream.
func (d *Decoder[T]) reject(ce *domain.ClientError) {
	d.observer.DecodeFailed(d.name, ce.Kind)
	d.logger.LogAttrs(context.Background(), slog.LevelWarn, "skipping undecodable frame",
		slog.String("kind", string(ce.Kind)),
		slog.String("error", ce.Error()),
		slog.String("payload", truncate(ce.Raw, 200)),
	)
}

func (d *Decoder[T]) transition(from, to State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != from {
		return false
	}
	d.state = to
	d.logger.Debug("stream state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return true
}

// complete closes the span and reports the final state.
func (d *Decoder[T]) complete(state State, final *domain.ClientError) {
	if final != nil {
		d.observer.DecodeFailed(d.name, final.Kind)
		d.span.RecordError(final)
		d.span.SetStatus(codes.Error, string(final.Kind))
	}
	d.observer.StreamEnded(d.name, state)
	d.span.SetAttributes(
		attribute.String("stream.state", state.String()),
		attribute.Int64("stream.frames", d.frames.Load()),
		attribute.Int64("stream.events", d.events.Load()),
	)
	d.span.End()
}

func (d *Decoder[T]) release() error {
	d.releaseOnce.Do(func() {
		d.releaseErr = d.src.Close()
	})
	return d.releaseErr
}

// asClientError classifies err. Anything that is not already a client error is
// treated as a malformed frame when a payload is at hand, and as a transport
// failure otherwise.
func asClientError(err error, payload []byte) *domain.ClientError {
	var ce *domain.ClientError
	if errors.As(err, &ce) {
		return ce
	}
	if payload != nil {
		return domain.NewMalformedError(payload, err)
	}
	return domain.NewTransportError("read stream", err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
