package memagent

import (
	"context"
	"errors"
)

// ErrTranscriptNotFound is returned by TranscriptStore.GetTranscript for an
// unknown ID.
var ErrTranscriptNotFound = errors.New("transcript not found")

// Transcript is an archived conversation in display form (result blocks as
// role "tool").
type Transcript struct {
	ID        string        `json:"id"`
	Model     string        `json:"model"`
	Root      string        `json:"root"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt int64         `json:"created_at"`
	UpdatedAt int64         `json:"updated_at"`
}

// TranscriptSummary is a Transcript without its messages.
type TranscriptSummary struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Root      string `json:"root"`
	Messages  int    `json:"messages"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// TranscriptStore archives conversations. Saving an existing ID replaces it.
type TranscriptStore interface {
	Init(ctx context.Context) error
	SaveTranscript(ctx context.Context, t Transcript) error
	GetTranscript(ctx context.Context, id string) (Transcript, error)
	// ListTranscripts returns the newest transcripts first, at most limit
	// (0 means all).
	ListTranscripts(ctx context.Context, limit int) ([]TranscriptSummary, error)
	DeleteTranscript(ctx context.Context, id string) error
	Close() error
}
