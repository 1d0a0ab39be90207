package code

import (
	"strings"
	"sync"
)

// outputBuffer collects print output up to max bytes. Writes past the limit
// are dropped and remembered so the result can say so.
type outputBuffer struct {
	mu        sync.Mutex
	b         strings.Builder
	max       int
	truncated bool
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{max: limit}
}

func (o *outputBuffer) Write(p []byte) (int, error) {
	o.add(string(p))
	return len(p), nil
}

func (o *outputBuffer) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.max > 0 {
		remaining := o.max - o.b.Len()
		if remaining <= 0 {
			o.truncated = o.truncated || s != ""
			return
		}
		if len(s) > remaining {
			s = s[:remaining]
			o.truncated = true
		}
	}
	o.b.WriteString(s)
}

func (o *outputBuffer) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

func (o *outputBuffer) Truncated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.truncated
}
