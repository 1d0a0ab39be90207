// Package gemini implements a memagent.Provider for Google Gemini models.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nevindra/memagent"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements memagent.Provider for Google Gemini models.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	temperature     float64
	topP            float64
	maxOutputTokens int
	thinkingEnabled bool
	stopSequences   []string
	seed            *int
}

// New creates a new Gemini chat provider with functional options.
func New(apiKey, model string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{},
		temperature: 0.1,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Chat performs a generateContent call and returns the text of the first
// candidate. Thinking parts are dropped. The request's model wins over the
// provider's when set.
func (g *Gemini) Chat(ctx context.Context, req memagent.ChatRequest) (memagent.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	body := g.buildBody(req.Messages)

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	payload, err := json.Marshal(body)
	if err != nil {
		return memagent.ChatResponse{}, g.wrapErr("marshal body: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return memagent.ChatResponse{}, g.wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return memagent.ChatResponse{}, fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return memagent.ChatResponse{}, g.wrapErr("failed to read response body: " + err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return memagent.ChatResponse{}, httpErr(resp, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return memagent.ChatResponse{}, g.wrapErr("failed to parse response JSON: " + err.Error())
	}

	var content strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != nil {
				content.WriteString(*part.Text)
			}
		}
		if fr := parsed.Candidates[0].FinishReason; fr == "SAFETY" || fr == "RECITATION" {
			return memagent.ChatResponse{}, g.wrapErr("response blocked: " + fr)
		}
	}

	var usage memagent.Usage
	if parsed.UsageMetadata != nil {
		usage.InputTokens = parsed.UsageMetadata.PromptTokenCount
		usage.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
	}
	if g.logger != nil {
		g.logger.Debug("gemini generate", "model", model, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}

	return memagent.ChatResponse{Content: content.String(), Usage: usage}, nil
}

func (g *Gemini) wrapErr(msg string) error {
	return &memagent.ErrLLM{Provider: "gemini", Message: msg}
}

// httpErr creates an ErrHTTP from an HTTP response, extracting the retry delay
// from the Retry-After header or from the Gemini-specific google.rpc.RetryInfo
// detail in the JSON error body.
func httpErr(resp *http.Response, body string) *memagent.ErrHTTP {
	ra := memagent.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &memagent.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: ra,
	}
}

// parseRetryInfo extracts the retryDelay from a Gemini error body containing
// a google.rpc.RetryInfo detail. Returns 0 if not found or unparseable.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}

// buildBody converts the conversation into a generateContent body. System
// messages become systemInstruction; consecutive messages with the same
// Gemini role are merged because the API requires alternation.
func (g *Gemini) buildBody(messages []memagent.ChatMessage) map[string]any {
	var systemParts []string
	var contents []map[string]any

	for _, m := range messages {
		if m.Role == memagent.RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		role := mapRole(m.Role)
		if n := len(contents); n > 0 && contents[n-1]["role"] == role {
			parts := contents[n-1]["parts"].([]map[string]any)
			contents[n-1]["parts"] = append(parts, map[string]any{"text": m.Content})
			continue
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": m.Content}},
		})
	}

	body := map[string]any{"contents": contents}
	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": strings.Join(systemParts, "\n\n")}},
		}
	}

	genConfig := map[string]any{
		"temperature": g.temperature,
		"topP":        g.topP,
	}
	if g.maxOutputTokens > 0 {
		genConfig["maxOutputTokens"] = g.maxOutputTokens
	}
	if g.thinkingEnabled {
		genConfig["thinkingConfig"] = map[string]any{"thinkingBudget": -1}
	}
	if len(g.stopSequences) > 0 {
		genConfig["stopSequences"] = g.stopSequences
	}
	if g.seed != nil {
		genConfig["seed"] = *g.seed
	}
	body["generationConfig"] = genConfig

	return body
}

// mapRole converts memagent roles to Gemini API roles. Result messages
// exported as "tool" were user turns.
func mapRole(role string) string {
	switch role {
	case memagent.RoleAssistant:
		return "model"
	default:
		return "user"
	}
}

// ---- Response parsing types ----

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text    *string `json:"text,omitempty"`
	Thought bool    `json:"thought,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// Compile-time interface check.
var _ memagent.Provider = (*Gemini)(nil)
