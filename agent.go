package memagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nevindra/memagent/code"
	"github.com/nevindra/memagent/memory"
)

// Agent answers user messages from a rooted directory of Markdown notes.
//
// An Agent owns its conversation history. Chat calls are serialized; run
// independent Agents (one per session) for parallelism. Agents over the
// same root share no state in process, but concurrent writes to one root
// are last-writer-wins.
type Agent struct {
	id       string
	cfg      agentConfig
	provider Provider
	fs       *memory.FS
	runner   code.Runner
	created  time.Time

	mu      sync.Mutex // held for a whole user turn
	history []ChatMessage
}

// Response is the outcome of one user turn. Chat never fails; problems are
// reported through the flags.
type Response struct {
	Thoughts    string `json:"thoughts"`
	Reply       string `json:"reply"`
	PythonBlock string `json:"python_block"`

	// Malformed is set when the last assistant message had neither a
	// python nor a reply region, or left a region unclosed.
	Malformed bool `json:"malformed,omitempty"`
	// BudgetExhausted is set when the model still wanted to run code after
	// the tool-turn budget was spent.
	BudgetExhausted bool `json:"budget_exhausted,omitempty"`
	// AgentError holds the gateway failure kind (e.g. "http_503") when the
	// LLM could not be reached; Reply then starts with "agent_error:".
	AgentError string `json:"agent_error,omitempty"`

	ToolTurns int   `json:"tool_turns"`
	LLMCalls  int   `json:"llm_calls"`
	Usage     Usage `json:"usage"`
}

// Flags lists the turn-level conditions of r by error kind.
func (r Response) Flags() []string {
	var flags []string
	if r.Malformed {
		flags = append(flags, KindMalformedTurn)
	}
	if r.BudgetExhausted {
		flags = append(flags, KindBudgetExhausted)
	}
	if r.AgentError != "" {
		flags = append(flags, KindAgentError)
	}
	return flags
}

// New creates an Agent. It resolves and, when empty, bootstraps the memory
// root and loads the system prompt; it makes no network calls.
func New(p Provider, opts ...Option) (*Agent, error) {
	if p == nil {
		return nil, errors.New("memagent: nil provider")
	}
	cfg := buildConfig(opts)

	fs, err := memory.Open(cfg.root, memory.WithLimits(cfg.limits), memory.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("memagent: %w", err)
	}
	if _, err := fs.Bootstrap(); err != nil {
		return nil, fmt.Errorf("memagent: %w", err)
	}

	system := cfg.systemPrompt
	if system == "" {
		if system, err = LoadSystemPrompt(cfg.systemPromptPath); err != nil {
			return nil, fmt.Errorf("memagent: %w", err)
		}
	}
	system = RenderSystemPrompt(system, fs.Limits().MaxFileBytes, cfg.sandboxTimeout)

	runner := cfg.runner
	if runner == nil {
		runner = code.NewStarlarkRunner(code.WithTimeout(cfg.sandboxTimeout), code.WithLogger(cfg.logger))
	}

	a := &Agent{
		id:       NewID(),
		cfg:      cfg,
		provider: p,
		fs:       fs,
		runner:   runner,
		created:  time.Now(),
		history:  []ChatMessage{SystemMessage(system)},
	}
	cfg.logger.Debug("agent created", "id", a.id, "root", fs.Root(), "model", cfg.model, "max_tool_turns", cfg.maxToolTurns)
	return a, nil
}

// ID returns the agent's session identifier (a UUIDv7).
func (a *Agent) ID() string { return a.id }

// Root returns the canonical memory root.
func (a *Agent) Root() string { return a.fs.Root() }

// Model returns the model identifier.
func (a *Agent) Model() string { return a.cfg.model }

// Memory returns the agent's memory root.
func (a *Agent) Memory() *memory.FS { return a.fs }

// Chat runs one user turn and returns its outcome. It blocks while another
// turn on the same Agent is in progress.
func (a *Agent) Chat(ctx context.Context, message string) Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runTurn(ctx, message)
}

// History returns a copy of the conversation as sent to the model, system
// message first.
func (a *Agent) History() []ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ChatMessage(nil), a.history...)
}

// Export returns the history in display form: result blocks carry role
// "tool" instead of "user".
func (a *Agent) Export() []ChatMessage {
	return ExportMessages(a.History())
}

// ExportMessages renames synthesized result messages to role "tool".
func ExportMessages(history []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(history))
	for i, m := range history {
		if m.Role == RoleUser && IsResult(m.Content) {
			m.Role = RoleTool
		}
		out[i] = m
	}
	return out
}

// Reset drops the conversation, keeping only the system message.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = a.history[:1:1]
}

// SaveConversation writes the exported history as a JSON array of
// {role, content} records and returns the path written. An empty path
// writes conversation-<id>.json into the transcript directory.
func (a *Agent) SaveConversation(path string) (string, error) {
	if path == "" {
		path = filepath.Join(a.cfg.transcriptDir, "conversation-"+a.id+".json")
	}
	data, err := json.MarshalIndent(a.Export(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("save conversation: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("save conversation: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("save conversation: %w", err)
	}
	a.cfg.logger.Info("conversation saved", "id", a.id, "path", path)
	return path, nil
}

// Transcript snapshots the conversation for archiving.
func (a *Agent) Transcript() Transcript {
	return Transcript{
		ID:        a.id,
		Model:     a.cfg.model,
		Root:      a.fs.Root(),
		Messages:  a.Export(),
		CreatedAt: a.created.Unix(),
		UpdatedAt: NowUnix(),
	}
}

// Archive saves the conversation to s.
func (a *Agent) Archive(ctx context.Context, s TranscriptStore) error {
	if err := s.SaveTranscript(ctx, a.Transcript()); err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	return nil
}
