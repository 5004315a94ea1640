// Package storage defines transcript stores for recorded streams.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned, wrapped, when a transcript does not exist.
var ErrNotFound = errors.New("transcript not found")

// Transcript states.
const (
	StateOpen    = "open"
	StateClosed  = "closed"
	StateErrored = "errored"
)

// Entry kinds.
const (
	EntryEvent = "event"
	EntryError = "error"
)

// Transcript is one recorded stream: every element the decoder produced, in
// order, and its final state.
type Transcript struct {
	ID           string
	Operation    string
	Model        string
	State        string
	ErrorKind    string
	ErrorMessage string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Entries      []Entry
}

// Entry is one sequence element. Data holds the encoded event, or the raw
// payload that failed to decode.
type Entry struct {
	Seq       int
	Kind      string
	EventType string
	Data      json.RawMessage
	ErrorKind string
	Message   string
	CreatedAt time.Time
}

// ListOptions filters and pages transcript listings. Results are ordered
// newest first.
type ListOptions struct {
	Operation string
	Limit     int
	Offset    int
}

// TranscriptStore persists transcripts. Implementations are safe for
// concurrent use.
type TranscriptStore interface {
	CreateTranscript(ctx context.Context, t *Transcript) error
	AppendEntry(ctx context.Context, transcriptID string, e *Entry) error
	FinishTranscript(ctx context.Context, id, state, errorKind, errorMessage string) error
	GetTranscript(ctx context.Context, id string) (*Transcript, error)
	ListTranscripts(ctx context.Context, opts ListOptions) ([]*Transcript, error)
	DeleteTranscript(ctx context.Context, id string) error
	Close() error
}
