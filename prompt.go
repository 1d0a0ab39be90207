package memagent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nevindra/memagent/memory"
)

//go:embed prompts/system.md
var defaultSystemPrompt string

// Placeholders a system prompt may use. New replaces them with the agent's
// own limits so the model is told the caps that actually apply.
const (
	PromptMaxFileSize    = "{{max_file_size}}"
	PromptSandboxTimeout = "{{sandbox_timeout}}"
)

// DefaultSystemPrompt returns the embedded system prompt that teaches the
// model the <think>/<python>/<reply> protocol and the memory functions,
// filled in with the default limits.
func DefaultSystemPrompt() string {
	return RenderSystemPrompt(defaultSystemPrompt, memory.DefaultLimits().MaxFileBytes, DefaultSandboxTimeout)
}

// RenderSystemPrompt fills the limit placeholders of prompt.
func RenderSystemPrompt(prompt string, maxFileBytes int64, timeout time.Duration) string {
	return strings.NewReplacer(
		PromptMaxFileSize, formatBytes(maxFileBytes),
		PromptSandboxTimeout, formatSeconds(timeout),
	).Replace(prompt)
}

// LoadSystemPrompt reads a system prompt from path. An empty path yields the
// embedded default, placeholders unfilled.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("load system prompt: %s is empty", path)
	}
	return prompt, nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func formatSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		if d == time.Second {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", d/time.Second)
	}
	return d.String()
}
