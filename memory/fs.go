// Package memory implements the filesystem primitives a memory agent's
// snippets use to navigate and edit a rooted tree of Markdown files.
//
// Every name a primitive receives is resolved against the session's current
// directory and must stay under the canonical root; anything else fails with
// a scope_error before the filesystem is touched. Writes are atomic: content
// goes to a temp file in the target directory and is renamed into place only
// after size and quota checks pass.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Limits bounds what a root may hold. Zero fields disable the check.
type Limits struct {
	MaxFileBytes int64 // F: per file
	MaxDirBytes  int64 // D: recursive size of any directory below the root
	MaxRootBytes int64 // R: recursive size of the whole root
}

// DefaultLimits returns F=1MiB, D=10MiB, R=100MiB.
func DefaultLimits() Limits {
	return Limits{
		MaxFileBytes: 1 << 20,
		MaxDirBytes:  10 << 20,
		MaxRootBytes: 100 << 20,
	}
}

// FS is a memory root. It holds no mutable state; navigation state lives in
// Sessions, so one FS may back any number of sequential snippets.
type FS struct {
	root   string
	limits Limits
	logger *slog.Logger
}

// Option configures an FS.
type Option func(*FS)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(f *FS) { f.limits = l }
}

// WithLogger sets the structured logger for write events.
func WithLogger(l *slog.Logger) Option {
	return func(f *FS) { f.logger = l }
}

// Open resolves root to an absolute, symlink-free path, creating it if it
// does not exist yet.
func Open(root string, opts ...Option) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("memory: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("memory: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("memory: canonicalize root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("memory: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("memory: root %s is not a directory", canon)
	}

	f := &FS{root: canon, limits: DefaultLimits()}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = nopLogger
	}
	return f, nil
}

// Root returns the canonical root path.
func (f *FS) Root() string { return f.root }

// Limits returns the configured limits.
func (f *FS) Limits() Limits { return f.limits }

// NewSession returns a session whose current directory is the root.
func (f *FS) NewSession() *Session {
	return &Session{fs: f, cwd: "."}
}

// Size returns the recursive byte size of the whole root.
func (f *FS) Size() (int64, error) {
	return treeSize(f.root)
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
