package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nevindra/memagent"
)

// chatRequest is the parsed body of POST /chat.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	SessionID   string         `json:"session_id"`
	Reply       string         `json:"reply"`
	Thoughts    string         `json:"thoughts"`
	PythonBlock string         `json:"python_block,omitempty"`
	Flags       []string       `json:"flags"`
	ToolTurns   int            `json:"tool_turns"`
	LLMCalls    int            `json:"llm_calls"`
	Usage       memagent.Usage `json:"usage"`
}

const maxRequestBodyBytes = 1 << 20 // 1MB

// handler serves the HTTP API.
type handler struct {
	sessions *sessionManager
	store    memagent.TranscriptStore // nil = no archive endpoints
	sem      chan struct{}
	logger   *slog.Logger
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /sessions/{id}/transcript", h.handleSessionTranscript)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET /transcripts", h.handleListTranscripts)
	mux.HandleFunc("GET /transcripts/{id}", h.handleGetTranscript)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	// Acquire a turn slot; fail fast under load.
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		writeError(w, http.StatusServiceUnavailable, "server busy: turn capacity reached")
		return
	}

	var entry *sessionEntry
	if req.SessionID == "" {
		entry, err = h.sessions.create()
		if err != nil {
			h.logger.Error("create session", "error", err)
			writeError(w, http.StatusInternalServerError, "create session: "+err.Error())
			return
		}
	} else {
		var ok bool
		if entry, ok = h.sessions.get(req.SessionID); !ok {
			writeError(w, http.StatusNotFound, "unknown session_id: "+req.SessionID)
			return
		}
	}

	resp := entry.chat.Chat(r.Context(), req.Message)
	flags := resp.Flags()
	if flags == nil {
		flags = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:   entry.agent.ID(),
		Reply:       resp.Reply,
		Thoughts:    resp.Thoughts,
		PythonBlock: resp.PythonBlock,
		Flags:       flags,
		ToolTurns:   resp.ToolTurns,
		LLMCalls:    resp.LLMCalls,
		Usage:       resp.Usage,
	})
}

func (h *handler) handleSessionTranscript(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session_id")
		return
	}
	writeJSON(w, http.StatusOK, entry.agent.Transcript())
}

func (h *handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.delete(r.Context(), r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "unknown session_id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no transcript store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := h.store.ListTranscripts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []memagent.TranscriptSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no transcript store configured")
		return
	}
	t, err := h.store.GetTranscript(r.Context(), r.PathValue("id"))
	if errors.Is(err, memagent.ErrTranscriptNotFound) {
		writeError(w, http.StatusNotFound, "unknown transcript")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "sessions": h.sessions.len()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
