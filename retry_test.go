package memagent

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestWithRetry_Chat_SucceedsFirstAttempt(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_Chat_RetriesTransientStatuses(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		stub := &stubProvider{results: []stubResult{
			{err: &ErrHTTP{Status: status, Body: "unavailable"}},
			{resp: ChatResponse{Content: "hello"}},
		}}
		p := WithRetry(stub, RetryBaseDelay(0))

		resp, err := p.Chat(context.Background(), ChatRequest{})
		if err != nil {
			t.Fatalf("%d: unexpected error: %v", status, err)
		}
		if resp.Content != "hello" {
			t.Errorf("%d: got %q, want %q", status, resp.Content, "hello")
		}
		if stub.calls != 2 {
			t.Errorf("%d: got %d calls, want 2", status, stub.calls)
		}
	}
}

func TestWithRetry_Chat_RetriesNetworkErrors(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_Chat_DoesNotRetryNonTransient(t *testing.T) {
	for _, err := range []error{
		&ErrHTTP{Status: 400, Body: "bad request"},
		&ErrHTTP{Status: 401, Body: "unauthorized"},
		&ErrLLM{Provider: "stub", Message: "no choices in response"},
	} {
		stub := &stubProvider{results: []stubResult{{err: err}}}
		p := WithRetry(stub, RetryBaseDelay(0))

		if _, got := p.Chat(context.Background(), ChatRequest{}); got == nil {
			t.Fatalf("%v: expected error, got nil", err)
		}
		if stub.calls != 1 {
			t.Errorf("%v: got %d calls, want 1", err, stub.calls)
		}
	}
}

func TestWithRetry_Chat_ExhaustsMaxAttempts(t *testing.T) {
	transient := stubResult{err: &ErrHTTP{Status: 503, Body: "unavailable"}}
	stub := &stubProvider{results: []stubResult{transient, transient, transient, transient}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryMaxAttempts(3))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error after max attempts, got nil")
	}
	if stub.calls != 3 {
		t.Errorf("got %d calls, want 3", stub.calls)
	}
}

func TestWithRetry_Chat_RespectsRetryAfter(t *testing.T) {
	// Server says wait 100ms via Retry-After. Verify the retry waits at least that long
	// even when base delay is 0.
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 429, Body: "rate limited", RetryAfter: 100 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	start := time.Now()
	resp, err := p.Chat(context.Background(), ChatRequest{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
	if elapsed < 80*time.Millisecond {
		t.Errorf("retry was too fast: %v, expected at least ~100ms from Retry-After", elapsed)
	}
}

func TestWithRetry_Chat_TimeoutExceeded(t *testing.T) {
	// Two transient errors with 100ms Retry-After each. Timeout of 50ms should
	// cause the retry loop to give up after the first attempt's wait.
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 429, RetryAfter: 100 * time.Millisecond}},
		{err: &ErrHTTP{Status: 429, RetryAfter: 100 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryTimeout(50*time.Millisecond))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error due to timeout, got nil")
	}
	if stub.calls > 2 {
		t.Errorf("got %d calls, expected at most 2 with 50ms timeout", stub.calls)
	}
}

func TestWithRetry_Chat_TimeoutAllowsSuccess(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 503}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryTimeout(5*time.Second))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
}

func TestRetryBackoff_Grows(t *testing.T) {
	base := 10 * time.Millisecond
	for i := 0; i < 4; i++ {
		d := retryBackoff(base, i)
		lo := base * (1 << i)
		if d < lo || d > lo+lo/2 {
			t.Errorf("retryBackoff(%v, %d) = %v, want in [%v, %v]", base, i, d, lo, lo+lo/2)
		}
	}
}
