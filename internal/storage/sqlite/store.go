package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/aiwire/internal/storage"
)

// Store is a SQLite implementation of storage.TranscriptStore.
type Store struct {
	db *sql.DB
}

var _ storage.TranscriptStore = (*Store)(nil)

// New opens or creates the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			model TEXT,
			state TEXT NOT NULL,
			error_kind TEXT,
			error_message TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_entries (
			transcript_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			event_type TEXT,
			data BLOB,
			error_kind TEXT,
			message TEXT,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (transcript_id, seq),
			FOREIGN KEY (transcript_id) REFERENCES transcripts(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_operation ON transcripts(operation)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateTranscript(ctx context.Context, t *storage.Transcript) error {
	t.State = storage.StateOpen
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO transcripts (id, operation, model, state, error_kind, error_message, metadata, created_at, updated_at)
	          VALUES (?, ?, ?, ?, '', '', ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Operation, t.Model, t.State, string(metadata), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}

	return nil
}

func (s *Store) AppendEntry(ctx context.Context, transcriptID string, e *storage.Entry) error {
	e.CreatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE transcripts SET updated_at = ? WHERE id = ?`, e.CreatedAt, transcriptID)
	if err != nil {
		return fmt.Errorf("failed to update transcript: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("transcript %s: %w", transcriptID, storage.ErrNotFound)
	}

	query := `INSERT INTO transcript_entries (transcript_id, seq, kind, event_type, data, error_kind, message, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		transcriptID, e.Seq, e.Kind, e.EventType, []byte(e.Data), e.ErrorKind, e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	return tx.Commit()
}

func (s *Store) FinishTranscript(ctx context.Context, id, state, errorKind, errorMessage string) error {
	query := `UPDATE transcripts SET state = ?, error_kind = ?, error_message = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, state, errorKind, errorMessage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish transcript: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transcript %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*storage.Transcript, error) {
	query := `SELECT id, operation, model, state, error_kind, error_message, metadata, created_at, updated_at
	          FROM transcripts WHERE id = ?`

	t, err := scanTranscript(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transcript %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	entries, err := s.getEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Entries = entries

	return t, nil
}

func (s *Store) getEntries(ctx context.Context, transcriptID string) ([]storage.Entry, error) {
	query := `SELECT seq, kind, event_type, data, error_kind, message, created_at
	          FROM transcript_entries WHERE transcript_id = ?
	          ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var e storage.Entry
		var data []byte
		if err := rows.Scan(&e.Seq, &e.Kind, &e.EventType, &data, &e.ErrorKind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if len(data) > 0 {
			e.Data = json.RawMessage(data)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *Store) ListTranscripts(ctx context.Context, opts storage.ListOptions) ([]*storage.Transcript, error) {
	query := `SELECT id, operation, model, state, error_kind, error_message, metadata, created_at, updated_at
	          FROM transcripts WHERE (? = '' OR operation = ?)
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`

	limit := opts.Limit
	if limit == 0 {
		limit = 100 // default limit
	}

	rows, err := s.db.QueryContext(ctx, query, opts.Operation, opts.Operation, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := []*storage.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		transcripts = append(transcripts, t)
	}

	return transcripts, rows.Err()
}

func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_entries WHERE transcript_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("transcript %s: %w", id, storage.ErrNotFound)
	}

	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row scanner) (*storage.Transcript, error) {
	var t storage.Transcript
	var metadataJSON string

	if err := row.Scan(&t.ID, &t.Operation, &t.Model, &t.State, &t.ErrorKind, &t.ErrorMessage,
		&metadataJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metadataJSON), &t.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &t, nil
}
