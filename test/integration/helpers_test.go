// Package integration provides end-to-end tests for the DataGem API.
//
// Tests run against a real DataGem HTTP server backed by a scripted
// Chat Completions backend, both started in-process using
// net/http/httptest. The sandbox is replaced by a recording runner so
// no Python interpreter is needed.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/credential"
	"github.com/rhuss/datagem/pkg/engine"
	"github.com/rhuss/datagem/pkg/provider/gemini"
	"github.com/rhuss/datagem/pkg/sandbox"
	"github.com/rhuss/datagem/pkg/storage/memory"
	"github.com/rhuss/datagem/pkg/tools"
	"github.com/rhuss/datagem/pkg/tools/builtins/websearch"
	transporthttp "github.com/rhuss/datagem/pkg/transport/http"
)

// exhaustedKey is rejected by the mock backend with 429.
const exhaustedKey = "exhausted-key"

// TestEnvironment holds the DataGem server and mock backend of one test.
type TestEnvironment struct {
	Server  *httptest.Server
	Backend *mockBackend
	Runner  *recordingRunner
}

// newTestEnvironment wires a DataGem server to a fresh mock backend using
// the given API keys in rotation order.
func newTestEnvironment(t *testing.T, keys ...string) *TestEnvironment {
	t.Helper()

	backend := &mockBackend{}
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	prov, err := gemini.New(gemini.Config{BaseURL: backendSrv.URL})
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	t.Cleanup(func() { prov.Close() })

	pool, err := credential.New(keys)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}

	search, err := websearch.New(websearch.Config{Delay: -1})
	if err != nil {
		t.Fatalf("creating search tool: %v", err)
	}

	store := memory.New(100)
	runner := &recordingRunner{}

	eng, err := engine.New(prov, pool, runner, store, engine.Config{
		Model:        "mock-model",
		MaxToolCalls: 3,
		HistoryLimit: 10,
		Tools:        []tools.Provider{search},
	})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}

	srv := transporthttp.NewServer(eng, transporthttp.Backends{
		Pool:    pool,
		Store:   store,
		Catalog: eng.Tools,
	})
	server := httptest.NewServer(srv.Adapter().Handler())
	t.Cleanup(server.Close)

	return &TestEnvironment{Server: server, Backend: backend, Runner: runner}
}

// BaseURL returns the DataGem server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Server.URL
}

// --- HTTP helpers ---

// postJSON sends a POST request with JSON body and returns the response.
func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// getURL sends a GET request and returns the response.
func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// decodeJSON reads the response body and decodes it into the target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// chat posts a chat request and returns the streamed answer.
func chat(t *testing.T, env *TestEnvironment, req api.ChatRequest) string {
	t.Helper()
	resp := postJSON(t, env.BaseURL()+"/chat", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	return readBody(t, resp)
}

// --- Sandbox ---

// recordingRunner stands in for the Python sandbox. It records the code
// it was asked to run and reports the dataset size.
type recordingRunner struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingRunner) Execute(_ context.Context, req sandbox.Request) sandbox.Result {
	r.mu.Lock()
	r.codes = append(r.codes, req.Code)
	r.mu.Unlock()
	return sandbox.Result{
		Stdout:         fmt.Sprintf("rows=%d", len(req.Dataset)),
		Classification: sandbox.Success,
		Message:        fmt.Sprintf("rows=%d", len(req.Dataset)),
	}
}

func (r *recordingRunner) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

// --- Mock backend ---

// mockBackend mimics a streaming Chat Completions API. The reply depends
// on the last message:
//
//   - a tool result is answered with "Result: " and the tool output
//   - "analyze" requests run_python_code
//   - "search" requests google_search
//   - "loop" always requests run_python_code, even after a tool result
//   - anything else is echoed back
type mockBackend struct {
	mu   sync.Mutex
	keys []string
}

// Keys returns the API keys of all requests in arrival order.
func (b *mockBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...)
}

func (b *mockBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()

	if key == exhaustedKey {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`)
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	var userText, lastRole, lastContent string
	for _, m := range req.Messages {
		if m.Role == "user" {
			userText = m.Content
		}
		lastRole, lastContent = m.Role, m.Content
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	switch {
	case strings.Contains(userText, "loop"):
		writeToolCall(w, "run_python_code", `{"code":"print(1)"}`)
	case lastRole == "tool":
		writeText(w, "Result: ", lastContent)
	case strings.Contains(userText, "analyze"):
		writeToolCall(w, "run_python_code", `{"code":"print(len(df))"}`)
	case strings.Contains(userText, "search"):
		writeToolCall(w, "google_search", `{"query":"population of France"}`)
	default:
		writeText(w, "You said: ", userText)
	}
	io.WriteString(w, "data: [DONE]\n\n")
}

func writeEvent(w io.Writer, delta map[string]any, finish any) {
	data, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion.chunk",
		"model":  "mock-model",
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	})
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeText(w io.Writer, parts ...string) {
	for _, p := range parts {
		writeEvent(w, map[string]any{"content": p}, nil)
	}
	writeEvent(w, map[string]any{}, "stop")
}

func writeToolCall(w io.Writer, name, args string) {
	writeEvent(w, map[string]any{"tool_calls": []any{map[string]any{
		"index":    0,
		"id":       "call_" + name,
		"type":     "function",
		"function": map[string]any{"name": name, "arguments": args},
	}}}, nil)
	writeEvent(w, map[string]any{}, "tool_calls")
}
