// Package sqlite implements memagent.TranscriptStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/memagent"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements memagent.TranscriptStore backed by a local SQLite file.
// Messages are stored as a JSON array in a single column.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ memagent.TranscriptStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the transcripts table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			root TEXT NOT NULL,
			messages TEXT NOT NULL,
			message_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_updated ON transcripts(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("sqlite: init failed", "error", err)
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Debug("sqlite: init ok", "duration", time.Since(start))
	return nil
}

// SaveTranscript inserts t, replacing any transcript with the same ID.
func (s *Store) SaveTranscript(ctx context.Context, t memagent.Transcript) error {
	start := time.Now()
	s.logger.Debug("sqlite: save transcript", "id", t.ID, "messages", len(t.Messages))

	msgs := t.Messages
	if msgs == nil {
		msgs = []memagent.ChatMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, model, root, messages, message_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			root = excluded.root,
			messages = excluded.messages,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at`,
		t.ID, t.Model, t.Root, string(data), len(msgs), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: save transcript failed", "id", t.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("save transcript: %w", err)
	}
	s.logger.Debug("sqlite: save transcript ok", "id", t.ID, "duration", time.Since(start))
	return nil
}

// GetTranscript returns the transcript with the given ID, or
// memagent.ErrTranscriptNotFound.
func (s *Store) GetTranscript(ctx context.Context, id string) (memagent.Transcript, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get transcript", "id", id)

	var t memagent.Transcript
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, root, messages, created_at, updated_at FROM transcripts WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.Model, &t.Root, &data, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return memagent.Transcript{}, fmt.Errorf("get transcript %q: %w", id, memagent.ErrTranscriptNotFound)
	}
	if err != nil {
		s.logger.Error("sqlite: get transcript failed", "id", id, "error", err, "duration", time.Since(start))
		return memagent.Transcript{}, fmt.Errorf("get transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &t.Messages); err != nil {
		return memagent.Transcript{}, fmt.Errorf("decode messages: %w", err)
	}
	s.logger.Debug("sqlite: get transcript ok", "id", id, "duration", time.Since(start))
	return t, nil
}

// ListTranscripts returns summaries ordered by most recently updated first.
func (s *Store) ListTranscripts(ctx context.Context, limit int) ([]memagent.TranscriptSummary, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list transcripts", "limit", limit)
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, root, message_count, created_at, updated_at
		 FROM transcripts
		 ORDER BY updated_at DESC, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		s.logger.Error("sqlite: list transcripts failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []memagent.TranscriptSummary
	for rows.Next() {
		var t memagent.TranscriptSummary
		if err := rows.Scan(&t.ID, &t.Model, &t.Root, &t.Messages, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, t)
	}
	s.logger.Debug("sqlite: list transcripts ok", "count", len(out), "duration", time.Since(start))
	return out, rows.Err()
}

// DeleteTranscript removes a transcript. Deleting an unknown ID is not an error.
func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id); err != nil {
		s.logger.Error("sqlite: delete transcript failed", "id", id, "error", err)
		return fmt.Errorf("delete transcript: %w", err)
	}
	s.logger.Debug("sqlite: delete transcript ok", "id", id, "duration", time.Since(start))
	return nil
}

func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}
