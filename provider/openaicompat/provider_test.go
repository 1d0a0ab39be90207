package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevindra/memagent"
)

func okServer(t *testing.T, check func(r *http.Request, req ChatRequest), content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			ID: "chatcmpl-1",
			Choices: []Choice{{
				Index:   0,
				Message: &ChoiceMessage{Role: "assistant", Content: content},
			}},
			Usage: &Usage{PromptTokens: 5, CompletionTokens: 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func userHi() memagent.ChatRequest {
	return memagent.ChatRequest{Messages: []memagent.ChatMessage{memagent.UserMessage("Hi")}}
}

func TestProvider_Chat(t *testing.T) {
	srv := okServer(t, func(r *http.Request, req ChatRequest) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}
		if req.Model != "driaforall/mem-agent" {
			t.Errorf("expected default model, got %s", req.Model)
		}
	}, "<reply>Hello!</reply>")

	p := NewProvider("test-key", "driaforall/mem-agent", srv.URL+"/")

	resp, err := p.Chat(context.Background(), userHi())
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "<reply>Hello!</reply>" {
		t.Errorf("expected reply content, got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestProvider_RequestModelWins(t *testing.T) {
	srv := okServer(t, func(_ *http.Request, req ChatRequest) {
		if req.Model != "other" {
			t.Errorf("expected model other, got %s", req.Model)
		}
	}, "ok")

	p := NewProvider("", "default", srv.URL)
	req := userHi()
	req.Model = "other"
	if _, err := p.Chat(context.Background(), req); err != nil {
		t.Fatal(err)
	}
}

func TestProvider_Chat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	p := NewProvider("test-key", "m", srv.URL)
	_, err := p.Chat(context.Background(), userHi())

	var httpErr *memagent.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *memagent.ErrHTTP, got %T", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.Status)
	}
	if httpErr.RetryAfter != 3*time.Second {
		t.Errorf("expected RetryAfter 3s, got %v", httpErr.RetryAfter)
	}
}

func TestProvider_Chat_InBodyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model not found","code":404}}`))
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL, WithName("openrouter"))
	_, err := p.Chat(context.Background(), userHi())

	var llmErr *memagent.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *memagent.ErrLLM, got %T (%v)", err, err)
	}
	if llmErr.Provider != "openrouter" || llmErr.Message != "model not found" {
		t.Errorf("unexpected error %+v", llmErr)
	}
}

func TestProvider_Chat_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewProvider("", "m", srv.URL).Chat(context.Background(), userHi())
	var llmErr *memagent.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *memagent.ErrLLM, got %T", err)
	}
}

func TestProvider_Name(t *testing.T) {
	p := NewProvider("key", "model", "http://localhost")
	if p.Name() != "openai" {
		t.Errorf("expected default name 'openai', got %q", p.Name())
	}

	p = NewProvider("key", "model", "http://localhost", WithName("vllm"))
	if p.Name() != "vllm" {
		t.Errorf("expected name 'vllm', got %q", p.Name())
	}
}

func TestProvider_NoAPIKey(t *testing.T) {
	srv := okServer(t, func(r *http.Request, _ ChatRequest) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no auth header for empty API key")
		}
	}, "OK")

	// vLLM and other local servers don't need API keys.
	p := NewProvider("", "driaforall/mem-agent", srv.URL)
	resp, err := p.Chat(context.Background(), userHi())
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "OK" {
		t.Errorf("expected content 'OK', got %q", resp.Content)
	}
}

func TestProvider_WithOptionsAndHeaders(t *testing.T) {
	srv := okServer(t, func(r *http.Request, req ChatRequest) {
		if req.Temperature == nil || *req.Temperature != 0.7 {
			t.Errorf("expected temperature 0.7, got %v", req.Temperature)
		}
		if req.MaxTokens != 2048 {
			t.Errorf("expected max_tokens 2048, got %d", req.MaxTokens)
		}
		if len(req.Stop) != 1 || req.Stop[0] != "</python>" {
			t.Errorf("expected stop [</python>], got %v", req.Stop)
		}
		if req.Seed == nil || *req.Seed != 1 {
			t.Errorf("expected seed 1, got %v", req.Seed)
		}
		if r.Header.Get("X-Title") != "memagent" {
			t.Errorf("expected X-Title header, got %q", r.Header.Get("X-Title"))
		}
	}, "OK")

	p := NewProvider("key", "m", srv.URL,
		WithOptions(WithTemperature(0.7), WithMaxTokens(2048), WithStop("</python>"), WithSeed(1)),
		WithHeader("X-Title", "memagent"),
	)
	if _, err := p.Chat(context.Background(), userHi()); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
}

func TestBuildBody(t *testing.T) {
	msgs := []memagent.ChatMessage{
		memagent.SystemMessage("sys"),
		memagent.UserMessage("hi"),
		memagent.AssistantMessage("<python>x = 1</python>"),
		{Role: memagent.RoleTool, Content: "<result>\nx = 1\n</result>"},
	}
	body := BuildBody(msgs, "m", WithStop("</python>"))

	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(body.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(body.Messages))
	}
	for i, m := range body.Messages {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d: expected role %s, got %s", i, wantRoles[i], m.Role)
		}
		if m.Content != msgs[i].Content {
			t.Errorf("message %d: content changed", i)
		}
	}
	if len(body.Stop) != 1 || body.Stop[0] != "</python>" {
		t.Errorf("unexpected stop %v", body.Stop)
	}
}

func TestParseResponse(t *testing.T) {
	t.Run("empty choices", func(t *testing.T) {
		out, err := ParseResponse("openai", ChatResponse{Usage: &Usage{PromptTokens: 3}})
		if err != nil || out.Content != "" || out.Usage.InputTokens != 3 {
			t.Errorf("got %+v, %v", out, err)
		}
	})
	t.Run("refusal", func(t *testing.T) {
		_, err := ParseResponse("openai", ChatResponse{Choices: []Choice{{Message: &ChoiceMessage{Refusal: "no"}}}})
		var llmErr *memagent.ErrLLM
		if !errors.As(err, &llmErr) {
			t.Errorf("expected ErrLLM, got %v", err)
		}
	})
}
