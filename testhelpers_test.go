package memagent

import (
	"context"
	"errors"
	"sync"
)

// stubProvider is a test Provider that returns pre-configured results in order.
// Requests are recorded so tests can inspect what the model was shown.
type stubProvider struct {
	mu       sync.Mutex
	calls    int
	results  []stubResult
	requests []ChatRequest
}

type stubResult struct {
	resp ChatResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, ChatRequest{Model: req.Model, Messages: append([]ChatMessage(nil), req.Messages...)})
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i].resp, s.results[i].err
	}
	return ChatResponse{}, errors.New("stub: no more results")
}

// replies builds a stubProvider answering with the given assistant texts.
func replies(texts ...string) *stubProvider {
	s := &stubProvider{}
	for _, t := range texts {
		s.results = append(s.results, stubResult{resp: ChatResponse{Content: t, Usage: Usage{InputTokens: 10, OutputTokens: 5}}})
	}
	return s
}

// funcProvider answers every call with fn, for models whose next turn
// depends on the conversation so far.
type funcProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req ChatRequest) (string, error)
}

func (f *funcProvider) Name() string { return "func" }

func (f *funcProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	text, err := f.fn(n, req)
	return ChatResponse{Content: text}, err
}

var (
	_ Provider = (*stubProvider)(nil)
	_ Provider = (*funcProvider)(nil)
)
