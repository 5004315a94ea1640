package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/aiwire/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_CreateTranscript(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tr := &storage.Transcript{
		ID:        "tr-1",
		Operation: "chat.stream",
		Model:     "gpt-4o-mini",
		Metadata:  map[string]string{"key": "value"},
	}
	if err := store.CreateTranscript(ctx, tr); err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}
	if err := store.CreateTranscript(ctx, &storage.Transcript{ID: "tr-1", Operation: "x"}); err == nil {
		t.Error("CreateTranscript() duplicate error = nil, want error")
	}

	got, err := store.GetTranscript(ctx, "tr-1")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if got.Operation != "chat.stream" || got.Model != "gpt-4o-mini" {
		t.Errorf("GetTranscript() = %+v", got)
	}
	if got.State != storage.StateOpen {
		t.Errorf("State = %v, want %v", got.State, storage.StateOpen)
	}
	if got.Metadata["key"] != "value" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestSQLiteStore_AppendAndFinish(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.CreateTranscript(ctx, &storage.Transcript{ID: "tr-2", Operation: "completions.stream"}); err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}

	entries := []*storage.Entry{
		{Seq: 0, Kind: storage.EntryError, ErrorKind: "malformed", Message: "malformed payload", Data: json.RawMessage(`{not json`)},
		{Seq: 1, Kind: storage.EntryEvent, EventType: "delta", Data: json.RawMessage(`{"text":"ok"}`)},
		{Seq: 2, Kind: storage.EntryError, ErrorKind: "truncated", Message: "stream ended before terminator"},
	}
	for _, e := range entries {
		if err := store.AppendEntry(ctx, "tr-2", e); err != nil {
			t.Fatalf("AppendEntry() error = %v", err)
		}
	}
	if err := store.AppendEntry(ctx, "tr-2", &storage.Entry{Seq: 1, Kind: storage.EntryEvent}); err == nil {
		t.Error("AppendEntry() duplicate seq error = nil, want error")
	}
	if err := store.FinishTranscript(ctx, "tr-2", storage.StateErrored, "truncated", "stream ended before terminator"); err != nil {
		t.Fatalf("FinishTranscript() error = %v", err)
	}

	got, err := store.GetTranscript(ctx, "tr-2")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if len(got.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(got.Entries))
	}
	for i, e := range got.Entries {
		if e.Seq != i {
			t.Errorf("Entries[%d].Seq = %d", i, e.Seq)
		}
	}
	if string(got.Entries[0].Data) != "{not json" {
		t.Errorf("Entries[0].Data = %s", got.Entries[0].Data)
	}
	if got.Entries[1].EventType != "delta" {
		t.Errorf("Entries[1].EventType = %v", got.Entries[1].EventType)
	}
	if got.Entries[2].Data != nil {
		t.Errorf("Entries[2].Data = %s, want nil", got.Entries[2].Data)
	}
	if got.State != storage.StateErrored || got.ErrorKind != "truncated" {
		t.Errorf("final = %v %v", got.State, got.ErrorKind)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := store.GetTranscript(ctx, "missing"); return err }},
		{"append", func() error { return store.AppendEntry(ctx, "missing", &storage.Entry{Kind: storage.EntryEvent}) }},
		{"finish", func() error { return store.FinishTranscript(ctx, "missing", storage.StateClosed, "", "") }},
		{"delete", func() error { return store.DeleteTranscript(ctx, "missing") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSQLiteStore_ListAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, tr := range []*storage.Transcript{
		{ID: "a", Operation: "completions.stream"},
		{ID: "b", Operation: "realtime"},
		{ID: "c", Operation: "completions.stream"},
	} {
		if err := store.CreateTranscript(ctx, tr); err != nil {
			t.Fatalf("CreateTranscript() error = %v", err)
		}
	}

	got, err := store.ListTranscripts(ctx, storage.ListOptions{Operation: "completions.stream"})
	if err != nil {
		t.Fatalf("ListTranscripts() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, tr := range got {
		if tr.Operation != "completions.stream" {
			t.Errorf("Operation = %v", tr.Operation)
		}
	}

	if err := store.AppendEntry(ctx, "a", &storage.Entry{Seq: 0, Kind: storage.EntryEvent}); err != nil {
		t.Fatalf("AppendEntry() error = %v", err)
	}
	if err := store.DeleteTranscript(ctx, "a"); err != nil {
		t.Fatalf("DeleteTranscript() error = %v", err)
	}

	all, err := store.ListTranscripts(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListTranscripts() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len after delete = %d, want 2", len(all))
	}

	paged, err := store.ListTranscripts(ctx, storage.ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("ListTranscripts() error = %v", err)
	}
	if len(paged) != 1 {
		t.Errorf("len paged = %d, want 1", len(paged))
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.CreateTranscript(ctx, &storage.Transcript{ID: "kept", Operation: "realtime"}); err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}
	store.Close()

	store, err = New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer store.Close()

	if _, err := store.GetTranscript(ctx, "kept"); err != nil {
		t.Errorf("GetTranscript() after reopen error = %v", err)
	}
}
