package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nevindra/memagent"
	"github.com/nevindra/memagent/observer"
	"github.com/nevindra/memagent/store/sqlite"
)

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }

func (echoProvider) Chat(_ context.Context, req memagent.ChatRequest) (memagent.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1].Content
	return memagent.ChatResponse{Content: "<think>echo</think><reply>" + last + "</reply>"}, nil
}

type fixture struct {
	h     *handler
	srv   *httptest.Server
	store *sqlite.Store
}

func newFixture(t *testing.T, slots int) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "memory")
	logger := slog.New(slog.DiscardHandler)

	store := sqlite.New(filepath.Join(dir, "t.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessions := newSessionManager(func() (*memagent.Agent, observer.Chatter, error) {
		agent, err := memagent.New(echoProvider{}, memagent.WithRoot(root))
		return agent, agent, err
	}, time.Hour, logger)
	sessions.archive = func(ctx context.Context, a *memagent.Agent) {
		if err := a.Archive(ctx, store); err != nil {
			t.Errorf("archive: %v", err)
		}
	}
	sessions.start(time.Hour)

	h := &handler{sessions: sessions, store: store, sem: make(chan struct{}, slots), logger: logger}
	srv := httptest.NewServer(h.routes())
	t.Cleanup(func() {
		srv.Close()
		sessions.close(context.Background())
		store.Close()
	})
	return &fixture{h: h, srv: srv, store: store}
}

func (f *fixture) chat(t *testing.T, sessionID, msg string) (int, chatResponse) {
	t.Helper()
	body, _ := json.Marshal(chatRequest{SessionID: sessionID, Message: msg})
	resp, err := http.Post(f.srv.URL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out chatResponse
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestChatCreatesAndReusesSession(t *testing.T) {
	f := newFixture(t, 4)

	code, first := f.chat(t, "", "hello")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if first.SessionID == "" || first.Reply != "hello" || first.Thoughts != "echo" {
		t.Errorf("first = %+v", first)
	}
	if len(first.Flags) != 0 || first.LLMCalls != 1 {
		t.Errorf("flags = %v, llm_calls = %d", first.Flags, first.LLMCalls)
	}

	_, second := f.chat(t, first.SessionID, "again")
	if second.SessionID != first.SessionID || second.Reply != "again" {
		t.Errorf("second = %+v", second)
	}

	resp, err := http.Get(f.srv.URL + "/sessions/" + first.SessionID + "/transcript")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var tr memagent.Transcript
	json.NewDecoder(resp.Body).Decode(&tr)
	if len(tr.Messages) != 5 {
		t.Errorf("transcript has %d messages, want 5", len(tr.Messages))
	}
}

func TestChatValidation(t *testing.T) {
	f := newFixture(t, 4)

	if code, _ := f.chat(t, "", "   "); code != http.StatusBadRequest {
		t.Errorf("empty message status = %d", code)
	}
	if code, _ := f.chat(t, "nope", "hi"); code != http.StatusNotFound {
		t.Errorf("unknown session status = %d", code)
	}
	resp, _ := http.Post(f.srv.URL+"/chat", "application/json", bytes.NewReader([]byte("{")))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", resp.StatusCode)
	}
	resp, _ = http.Get(f.srv.URL + "/chat")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /chat status = %d", resp.StatusCode)
	}
}

func TestChatBusy(t *testing.T) {
	f := newFixture(t, 1)
	f.h.sem <- struct{}{} // occupy the only slot
	defer func() { <-f.h.sem }()

	if code, _ := f.chat(t, "", "hi"); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestDeleteSessionArchives(t *testing.T) {
	f := newFixture(t, 4)
	_, first := f.chat(t, "", "remember this")

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/sessions/"+first.SessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if code, _ := f.chat(t, first.SessionID, "hi"); code != http.StatusNotFound {
		t.Errorf("chat after delete status = %d", code)
	}

	resp, _ = http.Get(f.srv.URL + "/transcripts/" + first.SessionID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archived transcript status = %d", resp.StatusCode)
	}
	var tr memagent.Transcript
	json.NewDecoder(resp.Body).Decode(&tr)
	if len(tr.Messages) != 3 || tr.Messages[1].Content != "remember this" {
		t.Errorf("archived = %+v", tr.Messages)
	}

	resp2, _ := http.Get(f.srv.URL + "/transcripts?limit=10")
	defer resp2.Body.Close()
	var list []memagent.TranscriptSummary
	json.NewDecoder(resp2.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != first.SessionID {
		t.Errorf("list = %+v", list)
	}

	req, _ = http.NewRequest(http.MethodDelete, f.srv.URL+"/sessions/"+first.SessionID, nil)
	resp3, _ := http.DefaultClient.Do(req)
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp3.StatusCode)
	}
}

func TestTranscriptEndpoints(t *testing.T) {
	f := newFixture(t, 4)

	resp, _ := http.Get(f.srv.URL + "/transcripts/missing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing transcript status = %d", resp.StatusCode)
	}
	resp, _ = http.Get(f.srv.URL + "/transcripts?limit=x")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}

	f.h.store = nil
	resp, _ = http.Get(f.srv.URL + "/transcripts")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no store status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 4)
	f.chat(t, "", "hi")

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "ready" || body.Sessions != 1 {
		t.Errorf("health = %+v", body)
	}
}

func TestEvictExpired(t *testing.T) {
	var mu sync.Mutex
	var archived []string
	sm := newSessionManager(func() (*memagent.Agent, observer.Chatter, error) {
		agent, err := memagent.New(echoProvider{}, memagent.WithRoot(filepath.Join(t.TempDir(), "m")))
		return agent, agent, err
	}, time.Minute, slog.New(slog.DiscardHandler))
	sm.archive = func(_ context.Context, a *memagent.Agent) {
		mu.Lock()
		archived = append(archived, a.ID())
		mu.Unlock()
	}

	old, err := sm.create()
	if err != nil {
		t.Fatal(err)
	}
	fresh, _ := sm.create()
	sm.mu.Lock()
	old.lastAccess = time.Now().Add(-2 * time.Minute)
	sm.mu.Unlock()

	sm.evictExpired()
	if _, ok := sm.get(old.agent.ID()); ok {
		t.Error("expired session still live")
	}
	if _, ok := sm.get(fresh.agent.ID()); !ok {
		t.Error("fresh session evicted")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(archived) != 1 || archived[0] != old.agent.ID() {
		t.Errorf("archived = %v", archived)
	}
}
