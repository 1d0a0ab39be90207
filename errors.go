package memagent

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Turn-level flags reported in Response. Primitive kinds live in package
// memory, sandbox kinds in package code.
const (
	KindMalformedTurn   = "malformed_turn"
	KindBudgetExhausted = "budget_exhausted"
	KindAgentError      = "agent_error"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status int
	Body   string
	// RetryAfter is the server-requested wait parsed from the Retry-After
	// header, or 0.
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, given either as
// delay-seconds or as an HTTP date. It returns 0 when the value is empty,
// malformed or in the past.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
