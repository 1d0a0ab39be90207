package memory

import (
	"errors"
	"fmt"
)

// Kind classifies a primitive failure. The string value is what snippets and
// result blocks see.
type Kind string

const (
	KindScope            Kind = "scope_error"
	KindNotFound         Kind = "not_found"
	KindExists           Kind = "exists"
	KindNotAFile         Kind = "not_a_file"
	KindIsADirectory     Kind = "is_a_directory"
	KindNotEmpty         Kind = "not_empty"
	KindTooLarge         Kind = "too_large"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindAmbiguousReplace Kind = "ambiguous_replace"
	KindIO               Kind = "io_error"
)

// Error is returned by every Session primitive. Path is relative to the root.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Msg  string
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Op, e.Path, e.Msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Op, e.Path)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Msg)
	}
}

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, &memory.Error{Kind: memory.KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newErr(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: fmt.Sprintf(format, args...)}
}
