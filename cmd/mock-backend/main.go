// Command mock-backend runs a deterministic OpenAI-compatible Chat
// Completions server for exercising DataGem without a Gemini key. Every
// response is streamed. The script is driven by the last message:
//
//   - a tool result is answered with text quoting the tool output
//   - a user message mentioning "search" requests google_search
//   - any other user message requests run_python_code when tools are offered
//   - without tools the last user message is echoed back
//
// Configuration:
//
//	MOCK_PORT           - Listen port (default: 9090)
//	MOCK_EXHAUSTED_KEYS - Comma separated API keys answered with 429
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(parseKeys(os.Getenv("MOCK_EXHAUSTED_KEYS"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func parseKeys(s string) map[string]bool {
	keys := make(map[string]bool)
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = true
		}
	}
	return keys
}

func newMux(exhausted map[string]bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", &completions{exhausted: exhausted})
	mux.Handle("POST /chat/completions", &completions{exhausted: exhausted})
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// --- Handler ---

type completions struct {
	exhausted map[string]bool
}

func (c *completions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if c.exhausted[key] {
		slog.Info("rejecting exhausted key", "key_suffix", suffix(key))
		writeError(w, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED",
			"Resource has been exhausted (e.g. check quota).")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	if !req.Stream {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "only streaming requests are supported")
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	s := &sseWriter{w: w, rc: http.NewResponseController(w), model: model}
	s.start()

	reply := script(&req)
	if reply.call != nil {
		s.toolCall(*reply.call)
		s.finish("tool_calls")
	} else {
		for _, tok := range tokenize(reply.text) {
			s.content(tok)
		}
		s.finish("stop")
	}
	s.done()
}

type reply struct {
	text string
	call *toolCall
}

type toolCall struct {
	ID        string
	Name      string
	Arguments string
}

// script picks the next reply from the conversation so far.
func script(req *chatRequest) reply {
	if len(req.Messages) == 0 {
		return reply{text: "Hello from the mock backend."}
	}
	last := req.Messages[len(req.Messages)-1]

	if last.Role == "tool" {
		return reply{text: fmt.Sprintf("The %s tool returned:\n\n%s", last.Name, last.Content)}
	}

	userText := lastUserMessage(req)
	switch {
	case hasTool(req, "google_search") && strings.Contains(strings.ToLower(userText), "search"):
		args, _ := json.Marshal(map[string]string{"query": userText})
		return reply{call: &toolCall{ID: "call_mock_search", Name: "google_search", Arguments: string(args)}}
	case hasTool(req, "run_python_code"):
		return reply{call: &toolCall{
			ID:        "call_mock_python",
			Name:      "run_python_code",
			Arguments: `{"code":"print(df.describe() if df is not None else 'no dataset')"}`,
		}}
	}
	return reply{text: "You said: " + userText}
}

// --- Streaming ---

type sseWriter struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	model string
}

func (s *sseWriter) start() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.write(map[string]any{"role": "assistant"}, nil)
}

func (s *sseWriter) content(text string) {
	s.write(map[string]any{"content": text}, nil)
}

// toolCall streams the call in two fragments so that clients must
// accumulate the arguments by index.
func (s *sseWriter) toolCall(tc toolCall) {
	half := len(tc.Arguments) / 2
	s.write(map[string]any{"tool_calls": []any{map[string]any{
		"index": 0,
		"id":    tc.ID,
		"type":  "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": tc.Arguments[:half],
		},
	}}}, nil)
	s.write(map[string]any{"tool_calls": []any{map[string]any{
		"index":    0,
		"function": map[string]any{"arguments": tc.Arguments[half:]},
	}}}, nil)
}

func (s *sseWriter) finish(reason string) {
	s.write(map[string]any{}, &reason)
}

func (s *sseWriter) done() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.rc.Flush()
}

func (s *sseWriter) write(delta map[string]any, finishReason *string) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  s.model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finishReason,
		}},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.rc.Flush()
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "datagem-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode([]map[string]any{{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"status":  code,
		},
	}})
}

// tokenize splits text into word-sized pieces, keeping the separators.
func tokenize(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func hasTool(req *chatRequest, name string) bool {
	for _, t := range req.Tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

func suffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}
