// Package config loads memagent settings: defaults, then a TOML file, then
// MEMAGENT_* environment variables (env wins).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Agent       AgentConfig       `toml:"agent"`
	Sandbox     SandboxConfig     `toml:"sandbox"`
	Limits      LimitsConfig      `toml:"limits"`
	Server      ServerConfig      `toml:"server"`
	Transcripts TranscriptsConfig `toml:"transcripts"`
	Log         LogConfig         `toml:"log"`
	Observer    ObserverConfig    `toml:"observer"`
}

type LLMConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Temperature *float64 `toml:"temperature"`
	TopP        *float64 `toml:"top_p"`
	MaxTokens   *int     `toml:"max_tokens"`
	Seed        *int     `toml:"seed"`
	Stop        []string `toml:"stop"`
	MaxAttempts int      `toml:"max_attempts"`
	TimeoutSecs int      `toml:"timeout_seconds"`
	RPM         int      `toml:"rpm"`
	TPM         int      `toml:"tpm"`

	// OpenAI-compatible providers only.
	FrequencyPenalty *float64 `toml:"frequency_penalty"`
	PresencePenalty  *float64 `toml:"presence_penalty"`
}

type AgentConfig struct {
	Root             string `toml:"root"`
	MaxToolTurns     int    `toml:"max_tool_turns"`
	SystemPromptPath string `toml:"system_prompt_path"`
	TranscriptDir    string `toml:"transcript_dir"`
}

type SandboxConfig struct {
	Runtime        string `toml:"runtime"` // "starlark" or "python"
	PythonBin      string `toml:"python_bin"`
	TimeoutSecs    int    `toml:"timeout_seconds"`
	MaxOutputBytes int    `toml:"max_output_bytes"`
}

type LimitsConfig struct {
	MaxFileBytes int64 `toml:"max_file_bytes"`
	MaxDirBytes  int64 `toml:"max_dir_bytes"`
	MaxRootBytes int64 `toml:"max_root_bytes"`
}

type ServerConfig struct {
	Addr            string `toml:"addr"`
	SessionTTL      string `toml:"session_ttl"`
	CleanupInterval string `toml:"cleanup_interval"`
	MaxConcurrent   int    `toml:"max_concurrent"`
}

type TranscriptsConfig struct {
	Driver string `toml:"driver"` // "", "sqlite" or "postgres"
	DSN    string `toml:"dsn"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Journal bool   `toml:"journal"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:     LLMConfig{Provider: "vllm", Model: "driaforall/mem-agent", MaxAttempts: 3, TimeoutSecs: 120},
		Agent:   AgentConfig{Root: "memory", MaxToolTurns: 20, TranscriptDir: "conversations"},
		Sandbox: SandboxConfig{Runtime: "starlark", PythonBin: "python3", TimeoutSecs: 20, MaxOutputBytes: 64 * 1024},
		Limits: LimitsConfig{
			MaxFileBytes: 1 << 20,
			MaxDirBytes:  10 << 20,
			MaxRootBytes: 100 << 20,
		},
		Server: ServerConfig{Addr: ":8080", SessionTTL: "30m", CleanupInterval: "1m", MaxConcurrent: 10},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "memagent.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = v
		}
	}
	num64 := func(key string, dst *int64) {
		if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
			*dst = v
		}
	}

	str("MEMAGENT_LLM_PROVIDER", &cfg.LLM.Provider)
	str("MEMAGENT_LLM_MODEL", &cfg.LLM.Model)
	str("MEMAGENT_LLM_API_KEY", &cfg.LLM.APIKey)
	str("MEMAGENT_LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("MEMAGENT_ROOT", &cfg.Agent.Root)
	num("MEMAGENT_MAX_TOOL_TURNS", &cfg.Agent.MaxToolTurns)
	str("MEMAGENT_SYSTEM_PROMPT_PATH", &cfg.Agent.SystemPromptPath)
	str("MEMAGENT_SANDBOX_RUNTIME", &cfg.Sandbox.Runtime)
	num("MEMAGENT_SANDBOX_TIMEOUT", &cfg.Sandbox.TimeoutSecs)
	num64("MEMAGENT_MAX_FILE_BYTES", &cfg.Limits.MaxFileBytes)
	num64("MEMAGENT_MAX_DIR_BYTES", &cfg.Limits.MaxDirBytes)
	num64("MEMAGENT_MAX_ROOT_BYTES", &cfg.Limits.MaxRootBytes)
	str("MEMAGENT_SERVER_ADDR", &cfg.Server.Addr)
	str("MEMAGENT_TRANSCRIPTS_DRIVER", &cfg.Transcripts.Driver)
	str("MEMAGENT_TRANSCRIPTS_DSN", &cfg.Transcripts.DSN)
	str("MEMAGENT_LOG_LEVEL", &cfg.Log.Level)
	str("MEMAGENT_LOG_FILE", &cfg.Log.File)
	if v := os.Getenv("MEMAGENT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// OPENAI_API_KEY / GEMINI_API_KEY fall back when no key is configured.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openrouter":
			cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// SandboxTimeout returns the snippet timeout as a duration.
func (c Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSecs) * time.Second
}

// LLMTimeout returns the per-request transport timeout.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// SessionTTL parses Server.SessionTTL, falling back to 30 minutes.
func (c Config) SessionTTL() time.Duration {
	return parseDuration(c.Server.SessionTTL, 30*time.Minute)
}

// CleanupInterval parses Server.CleanupInterval, falling back to 1 minute.
func (c Config) CleanupInterval() time.Duration {
	return parseDuration(c.Server.CleanupInterval, time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}
