package memagent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nevindra/memagent/memory"
)

func newTestAgent(t *testing.T, p Provider, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{WithRoot(filepath.Join(t.TempDir(), "memory"))}, opts...)
	a, err := New(p, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func lastRequestMessage(t *testing.T, p *stubProvider) ChatMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	msgs := p.requests[len(p.requests)-1].Messages
	return msgs[len(msgs)-1]
}

func TestNew_Bootstrap(t *testing.T) {
	root := filepath.Join(t.TempDir(), "memory")
	a, err := New(replies(), WithRoot(root))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(a.Root(), memory.OrientationFile))
	if err != nil {
		t.Fatalf("orientation file: %v", err)
	}
	if !strings.Contains(string(data), "# User") {
		t.Errorf("orientation file = %q", data)
	}

	// A second agent leaves an edited root alone.
	edited := "# User\n- Name: Ada\n"
	if err := os.WriteFile(filepath.Join(a.Root(), memory.OrientationFile), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(replies(), WithRoot(root)); err != nil {
		t.Fatalf("second New: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(a.Root(), memory.OrientationFile))
	if string(data) != edited {
		t.Errorf("bootstrap overwrote user.md: %q", data)
	}
}

func TestNew_Defaults(t *testing.T) {
	a := newTestAgent(t, replies())
	if a.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", a.Model(), DefaultModel)
	}
	if a.ID() == "" {
		t.Error("ID() is empty")
	}
	h := a.History()
	if len(h) != 1 || h[0].Role != RoleSystem || h[0].Content != DefaultSystemPrompt() {
		t.Errorf("History() = %+v, want only the default system prompt", h)
	}
}

func TestNew_PromptStatesLimits(t *testing.T) {
	a := newTestAgent(t, replies(),
		WithLimits(memory.Limits{MaxFileBytes: 1024, MaxDirBytes: 1 << 20, MaxRootBytes: 1 << 20}),
		WithSandboxTimeout(5*time.Second))
	got := a.History()[0].Content
	for _, want := range []string{"Files larger than 1 KiB", "Snippets stop after 5 seconds"} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(got, "{{") {
		t.Error("system prompt has unfilled placeholders")
	}
}

func TestRenderSystemPrompt(t *testing.T) {
	tests := []struct {
		size    int64
		timeout time.Duration
		want    string
	}{
		{1 << 20, 20 * time.Second, "1 MiB/20 seconds"},
		{1024, time.Second, "1 KiB/1 second"},
		{1000, 1500 * time.Millisecond, "1000 bytes/1.5s"},
	}
	for _, tt := range tests {
		got := RenderSystemPrompt(PromptMaxFileSize+"/"+PromptSandboxTimeout, tt.size, tt.timeout)
		if got != tt.want {
			t.Errorf("RenderSystemPrompt(%d, %v) = %q, want %q", tt.size, tt.timeout, got, tt.want)
		}
	}
}

func TestNew_NilProvider(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestNew_SystemPromptPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	os.WriteFile(path, []byte("custom prompt"), 0o644)
	a := newTestAgent(t, replies(), WithSystemPromptPath(path))
	if got := a.History()[0].Content; got != "custom prompt" {
		t.Errorf("system prompt = %q", got)
	}

	_, err := New(replies(), WithRoot(t.TempDir()), WithSystemPromptPath(filepath.Join(t.TempDir(), "missing.md")))
	if err == nil {
		t.Error("expected error for missing prompt file")
	}
}

func TestChat_DirectReply(t *testing.T) {
	p := replies("<think>easy</think>\n<reply>Hello!</reply>")
	a := newTestAgent(t, p)

	resp := a.Chat(context.Background(), "hi")
	if resp.Reply != "Hello!" || resp.Thoughts != "easy" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.LLMCalls != 1 || resp.ToolTurns != 0 {
		t.Errorf("calls = %d, tool turns = %d", resp.LLMCalls, resp.ToolTurns)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if p.requests[0].Model != DefaultModel {
		t.Errorf("model sent = %q", p.requests[0].Model)
	}
	if len(resp.Flags()) != 0 {
		t.Errorf("flags = %v", resp.Flags())
	}
}

func TestChat_RememberMittens(t *testing.T) {
	p := replies(
		`<think>Save the cat as an entity and link it.</think>
<python>
create_file("entities/mittens.md", "# Mittens\n- Species: cat\n")
user = read_file("user.md")
update_file("user.md", user + "\n- Pet: [[entities/mittens.md]]\n")
</python>`,
		"<reply>Got it, your cat is Mittens.</reply>",
	)
	a := newTestAgent(t, p)

	resp := a.Chat(context.Background(), "Remember that my cat is named Mittens.")
	if resp.Reply != "Got it, your cat is Mittens." {
		t.Fatalf("reply = %q (flags %v)", resp.Reply, resp.Flags())
	}
	if resp.ToolTurns != 1 || resp.LLMCalls != 2 {
		t.Errorf("tool turns = %d, calls = %d", resp.ToolTurns, resp.LLMCalls)
	}

	note, err := os.ReadFile(filepath.Join(a.Root(), "entities", "mittens.md"))
	if err != nil || !strings.Contains(string(note), "Mittens") {
		t.Fatalf("entity file: %q, %v", note, err)
	}
	user, _ := os.ReadFile(filepath.Join(a.Root(), "user.md"))
	if !strings.Contains(string(user), "[[entities/mittens.md]]") {
		t.Errorf("user.md missing link: %q", user)
	}

	result := p.requests[1].Messages[3]
	if result.Role != RoleUser || !IsResult(result.Content) {
		t.Errorf("result message = %+v", result)
	}
	if strings.Contains(result.Content, "error:") {
		t.Errorf("unexpected error in result: %s", result.Content)
	}

	// A fresh agent over the same root can find the cat again.
	p2 := replies(
		"<python>\npet = go_to_link(\"[[entities/mittens.md]]\")\n</python>",
		"<reply>Your cat is Mittens.</reply>",
	)
	b, err := New(p2, WithRoot(a.Root()))
	if err != nil {
		t.Fatal(err)
	}
	resp = b.Chat(context.Background(), "What is my cat's name?")
	if resp.Reply != "Your cat is Mittens." {
		t.Errorf("recall reply = %q", resp.Reply)
	}
	if got := p2.requests[1].Messages[3].Content; !strings.Contains(got, "# Mittens") {
		t.Errorf("recall result = %s", got)
	}
}

func TestChat_ScopeEscape(t *testing.T) {
	p := replies(
		"<python>\nsecret = read_file(\"../../etc/passwd\")\n</python>",
		"<reply>I can't read files outside my memory.</reply>",
	)
	a := newTestAgent(t, p)

	resp := a.Chat(context.Background(), "Read ../../etc/passwd")
	if resp.Reply == "" {
		t.Fatalf("no reply, flags %v", resp.Flags())
	}
	result := p.requests[1].Messages[3].Content
	if !strings.Contains(result, "error: scope_error") {
		t.Errorf("result = %s", result)
	}
	if strings.Contains(result, "root:x:") {
		t.Error("passwd content leaked into the result")
	}
}

func TestChat_TimeoutThenBudget(t *testing.T) {
	loop := "<think>spin</think>\n<python>\nwhile True:\n    pass\n</python>"
	p := &funcProvider{fn: func(int, ChatRequest) (string, error) { return loop, nil }}
	a := newTestAgent(t, p, WithSandboxTimeout(200*time.Millisecond), WithMaxToolTurns(2))

	start := time.Now()
	resp := a.Chat(context.Background(), "loop forever")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("turn took %v", elapsed)
	}
	if !resp.BudgetExhausted {
		t.Errorf("BudgetExhausted = false, flags %v", resp.Flags())
	}
	if resp.Reply != "" {
		t.Errorf("reply = %q, want empty", resp.Reply)
	}
	if resp.Thoughts != "spin" || !strings.Contains(resp.PythonBlock, "while True") {
		t.Errorf("thoughts = %q, python = %q", resp.Thoughts, resp.PythonBlock)
	}
	if resp.ToolTurns != 2 || resp.LLMCalls != 3 {
		t.Errorf("tool turns = %d, calls = %d", resp.ToolTurns, resp.LLMCalls)
	}
	var timeouts int
	for _, m := range a.History() {
		if m.Role == RoleUser && strings.Contains(m.Content, "error: timeout") {
			timeouts++
		}
	}
	if timeouts != 2 {
		t.Errorf("timeout results = %d, want 2", timeouts)
	}
}

func TestChat_FileTooLarge(t *testing.T) {
	p := replies(
		"<python>\ncreate_file(\"big.md\", \"x\" * 2000)\n</python>",
		"<reply>That note is too large.</reply>",
	)
	a := newTestAgent(t, p, WithLimits(memory.Limits{MaxFileBytes: 1024}))

	resp := a.Chat(context.Background(), "Save a long note")
	if resp.Reply == "" {
		t.Fatalf("no reply, flags %v", resp.Flags())
	}
	if got := p.requests[1].Messages[3].Content; !strings.Contains(got, "error: too_large") {
		t.Errorf("result = %s", got)
	}
	if _, err := os.Stat(filepath.Join(a.Root(), "big.md")); !os.IsNotExist(err) {
		t.Errorf("big.md exists after rejected write: %v", err)
	}
}

func TestSaveConversation(t *testing.T) {
	p := replies(
		"<python>\nfiles = list_files()\n</python>",
		"<reply>You have one note.</reply>",
	)
	a := newTestAgent(t, p)
	a.Chat(context.Background(), "How many notes do I have?")

	path := filepath.Join(t.TempDir(), "out", "chat.json")
	got, err := a.SaveConversation(path)
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var msgs []ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	want := []string{RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleAssistant}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Errorf("roles = %v, want %v", roles, want)
	}
	if !IsResult(msgs[3].Content) {
		t.Errorf("tool message = %q", msgs[3].Content)
	}

	// History sent to the model keeps role user.
	if a.History()[3].Role != RoleUser {
		t.Error("export changed the live history")
	}
}

func TestSaveConversation_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	a := newTestAgent(t, replies("<reply>ok</reply>"), WithTranscriptDir(dir))
	a.Chat(context.Background(), "hi")

	path, err := a.SaveConversation("")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "conversation-"+a.ID()+".json"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
}

func TestChat_Concurrent(t *testing.T) {
	p := &funcProvider{fn: func(int, ChatRequest) (string, error) { return "<reply>ok</reply>", nil }}
	a := newTestAgent(t, p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Chat(context.Background(), "ping")
		}()
	}
	wg.Wait()

	h := a.History()
	if len(h) != 1+8*2 {
		t.Fatalf("history length = %d", len(h))
	}
	for i, m := range h[1:] {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if m.Role != want {
			t.Fatalf("message %d role = %s, want %s", i+1, m.Role, want)
		}
	}
}

func TestReset(t *testing.T) {
	a := newTestAgent(t, replies("<reply>one</reply>"))
	a.Chat(context.Background(), "hi")
	a.Reset()
	if h := a.History(); len(h) != 1 || h[0].Role != RoleSystem {
		t.Errorf("History() after Reset = %+v", h)
	}
}

type memTranscriptStore struct {
	saved map[string]Transcript
}

func (m *memTranscriptStore) Init(context.Context) error { return nil }
func (m *memTranscriptStore) SaveTranscript(_ context.Context, t Transcript) error {
	m.saved[t.ID] = t
	return nil
}
func (m *memTranscriptStore) GetTranscript(_ context.Context, id string) (Transcript, error) {
	t, ok := m.saved[id]
	if !ok {
		return Transcript{}, ErrTranscriptNotFound
	}
	return t, nil
}
func (m *memTranscriptStore) ListTranscripts(context.Context, int) ([]TranscriptSummary, error) {
	return nil, nil
}
func (m *memTranscriptStore) DeleteTranscript(_ context.Context, id string) error {
	delete(m.saved, id)
	return nil
}
func (m *memTranscriptStore) Close() error { return nil }

func TestArchive(t *testing.T) {
	a := newTestAgent(t, replies("<python>\nx = 1\n</python>", "<reply>done</reply>"))
	a.Chat(context.Background(), "hi")

	s := &memTranscriptStore{saved: map[string]Transcript{}}
	if err := a.Archive(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTranscript(context.Background(), a.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != DefaultModel || got.Root != a.Root() || len(got.Messages) != 5 {
		t.Errorf("transcript = %+v", got)
	}
	if got.Messages[3].Role != RoleTool {
		t.Errorf("result role = %s, want tool", got.Messages[3].Role)
	}
}
