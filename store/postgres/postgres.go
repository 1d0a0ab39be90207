// Package postgres implements memagent.TranscriptStore using PostgreSQL.
// Messages are stored as JSONB.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/memagent"
)

// Store implements memagent.TranscriptStore backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	cfg    pgConfig
	logger *slog.Logger
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	table  string // "" = transcripts
	logger *slog.Logger
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithTable overrides the table name. Useful when several deployments
// share one database.
func WithTable(name string) Option {
	return func(c *pgConfig) { c.table = name }
}

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(c *pgConfig) { c.logger = l }
}

var _ memagent.TranscriptStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	cfg := pgConfig{table: "transcripts"}
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, cfg: cfg, logger: logger}
}

// Connect opens a pool for dsn and returns a Store that owns it; Close
// closes the pool.
func Connect(ctx context.Context, dsn string, opts ...Option) (*OwnedStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &OwnedStore{Store: New(pool, opts...)}, nil
}

// OwnedStore is a Store whose Close also closes the underlying pool.
type OwnedStore struct {
	*Store
}

func (s *OwnedStore) Close() error {
	s.pool.Close()
	return nil
}

// Init creates the transcripts table and its index.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	t := pgx.Identifier{s.cfg.table}.Sanitize()
	idx := pgx.Identifier{s.cfg.table + "_updated_idx"}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			root TEXT NOT NULL,
			messages JSONB NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + idx + ` ON ` + t + ` (updated_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// SaveTranscript upserts t.
func (s *Store) SaveTranscript(ctx context.Context, t memagent.Transcript) error {
	msgs := t.Messages
	if msgs == nil {
		msgs = []memagent.ChatMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("postgres: encode messages: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, model, root, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			model = EXCLUDED.model,
			root = EXCLUDED.root,
			messages = EXCLUDED.messages,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.Model, t.Root, string(data), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		s.logger.Error("postgres: save transcript failed", "id", t.ID, "error", err)
		return fmt.Errorf("postgres: save transcript: %w", err)
	}
	s.logger.Debug("postgres: save transcript ok", "id", t.ID, "messages", len(msgs))
	return nil
}

// GetTranscript returns the transcript with the given ID, or
// memagent.ErrTranscriptNotFound.
func (s *Store) GetTranscript(ctx context.Context, id string) (memagent.Transcript, error) {
	var t memagent.Transcript
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, model, root, messages, created_at, updated_at FROM `+s.table()+` WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Model, &t.Root, &data, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return memagent.Transcript{}, fmt.Errorf("postgres: get transcript %q: %w", id, memagent.ErrTranscriptNotFound)
	}
	if err != nil {
		return memagent.Transcript{}, fmt.Errorf("postgres: get transcript: %w", err)
	}
	if err := json.Unmarshal(data, &t.Messages); err != nil {
		return memagent.Transcript{}, fmt.Errorf("postgres: decode messages: %w", err)
	}
	return t, nil
}

// ListTranscripts returns summaries ordered by most recently updated first.
func (s *Store) ListTranscripts(ctx context.Context, limit int) ([]memagent.TranscriptSummary, error) {
	query := `SELECT id, model, root, jsonb_array_length(messages), created_at, updated_at
		FROM ` + s.table() + ` ORDER BY updated_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transcripts: %w", err)
	}
	defer rows.Close()

	var out []memagent.TranscriptSummary
	for rows.Next() {
		var t memagent.TranscriptSummary
		if err := rows.Scan(&t.ID, &t.Model, &t.Root, &t.Messages, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transcript: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTranscript removes a transcript. Deleting an unknown ID is not an error.
func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete transcript: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error {
	return nil
}

func (s *Store) table() string {
	return pgx.Identifier{s.cfg.table}.Sanitize()
}
