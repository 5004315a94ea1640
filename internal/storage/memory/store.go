package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/aiwire/internal/storage"
)

// Store is an in-memory implementation of storage.TranscriptStore.
type Store struct {
	mu          sync.RWMutex
	transcripts map[string]*storage.Transcript
}

var _ storage.TranscriptStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		transcripts: make(map[string]*storage.Transcript),
	}
}

func (s *Store) CreateTranscript(ctx context.Context, t *storage.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transcripts[t.ID]; exists {
		return fmt.Errorf("transcript %s already exists", t.ID)
	}

	now := time.Now()
	stored := *t
	stored.State = storage.StateOpen
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Entries = nil

	s.transcripts[t.ID] = &stored
	t.State, t.CreatedAt, t.UpdatedAt = stored.State, now, now
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, transcriptID string, e *storage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.transcripts[transcriptID]
	if !exists {
		return fmt.Errorf("transcript %s: %w", transcriptID, storage.ErrNotFound)
	}

	e.CreatedAt = time.Now()
	entry := *e
	entry.Data = append([]byte(nil), e.Data...)
	t.Entries = append(t.Entries, entry)
	t.UpdatedAt = e.CreatedAt
	return nil
}

func (s *Store) FinishTranscript(ctx context.Context, id, state, errorKind, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.transcripts[id]
	if !exists {
		return fmt.Errorf("transcript %s: %w", id, storage.ErrNotFound)
	}

	t.State = state
	t.ErrorKind = errorKind
	t.ErrorMessage = errorMessage
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*storage.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.transcripts[id]
	if !exists {
		return nil, fmt.Errorf("transcript %s: %w", id, storage.ErrNotFound)
	}
	return clone(t), nil
}

func (s *Store) ListTranscripts(ctx context.Context, opts storage.ListOptions) ([]*storage.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Transcript
	for _, t := range s.transcripts {
		if opts.Operation != "" && t.Operation != opts.Operation {
			continue
		}
		summary := *t
		summary.Entries = nil
		result = append(result, &summary)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*storage.Transcript{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transcripts[id]; !exists {
		return fmt.Errorf("transcript %s: %w", id, storage.ErrNotFound)
	}

	delete(s.transcripts, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func clone(t *storage.Transcript) *storage.Transcript {
	c := *t
	c.Entries = append([]storage.Entry(nil), t.Entries...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
