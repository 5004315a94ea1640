// Package conversation records decoded stream sequences into a transcript
// store. Recording happens on the caller's side of the decoder.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/storage"
	"github.com/tjfontaine/aiwire/internal/stream"
)

const persistTimeout = 5 * time.Second

// Recorder persists transcripts on a best-effort basis: storage failures are
// logged and never reach the caller's sequence.
type Recorder struct {
	store  storage.TranscriptStore
	logger *slog.Logger
}

// NewRecorder returns a recorder writing to store. A nil logger uses
// slog.Default().
func NewRecorder(store storage.TranscriptStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Session is one transcript being recorded.
type Session struct {
	rec *Recorder
	id  string
	seq int
}

// Start creates a transcript for operation and returns its session.
func (r *Recorder) Start(ctx context.Context, operation, modelName string, metadata map[string]string) *Session {
	s := &Session{rec: r, id: "tr_" + uuid.New().String()}

	persistCtx, cancel := buildPersistenceContext(ctx)
	defer cancel()

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	if err := r.store.CreateTranscript(persistCtx, &storage.Transcript{
		ID:        s.id,
		Operation: operation,
		Model:     modelName,
		Metadata:  meta,
	}); err != nil {
		r.logger.Error("failed to create transcript",
			slog.String("transcript_id", s.id),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	return s
}

// ID returns the transcript ID.
func (s *Session) ID() string {
	return s.id
}

// Observe appends one sequence element.
func (s *Session) Observe(ctx context.Context, ev model.Event, err error) {
	entry := &storage.Entry{Seq: s.seq}
	s.seq++

	if err != nil {
		entry.Kind = storage.EntryError
		entry.ErrorKind = string(domain.KindOf(err))
		entry.Message = err.Error()
		var ce *domain.ClientError
		if errors.As(err, &ce) && len(ce.Raw) > 0 {
			entry.Data = ce.Raw
		}
	} else {
		entry.Kind = storage.EntryEvent
		entry.EventType = EventType(ev)
		data, merr := json.Marshal(ev)
		if merr != nil {
			s.rec.logger.Warn("failed to encode event",
				slog.String("transcript_id", s.id),
				slog.String("error", merr.Error()),
			)
		} else {
			entry.Data = data
		}
	}

	persistCtx, cancel := buildPersistenceContext(ctx)
	defer cancel()
	if err := s.rec.store.AppendEntry(persistCtx, s.id, entry); err != nil {
		s.rec.logger.Error("failed to append transcript entry",
			slog.String("transcript_id", s.id),
			slog.Int("seq", entry.Seq),
			slog.String("error", err.Error()),
		)
	}
}

// Finish marks the transcript with the decoder's final state. final is the
// terminal error of an errored stream.
func (s *Session) Finish(ctx context.Context, state stream.State, final error) {
	var stored, kind, msg string
	switch state {
	case stream.StateErrored:
		stored = storage.StateErrored
	case stream.StateClosed:
		stored = storage.StateClosed
	default:
		stored = storage.StateOpen
	}
	if final != nil {
		kind = string(domain.KindOf(final))
		msg = final.Error()
	}

	persistCtx, cancel := buildPersistenceContext(ctx)
	defer cancel()
	if err := s.rec.store.FinishTranscript(persistCtx, s.id, stored, kind, msg); err != nil {
		s.rec.logger.Error("failed to finish transcript",
			slog.String("transcript_id", s.id),
			slog.String("error", err.Error()),
		)
	}
}

// Record yields the decoder's sequence unchanged, recording every element
// before it is yielded. The transcript is finished when the sequence ends or
// the caller stops iterating.
func Record(ctx context.Context, s *Session, dec *stream.Decoder[model.Event]) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		var last error
		defer func() {
			final := last
			if dec.State() != stream.StateErrored {
				final = nil
			}
			s.Finish(ctx, dec.State(), final)
		}()

		for ev, err := range dec.All(ctx) {
			s.Observe(ctx, ev, err)
			last = err
			if !yield(ev, err) {
				return
			}
		}
	}
}

// EventType names an event for transcript listings.
func EventType(ev model.Event) string {
	switch e := ev.(type) {
	case *model.StreamDelta:
		return "delta"
	case *model.UsageReport:
		return "usage"
	case *model.RealtimeEvent:
		return e.Type
	}
	return "unknown"
}

// buildPersistenceContext decouples persistence from the caller's
// cancellation while still bounding it with a timeout.
func buildPersistenceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
