package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/provider"
)

func TestClient_StreamUsesRequestKey(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "default-key", time.Second)
	c.ChatPath = "/chat/completions"

	ch, err := c.Stream(context.Background(), &provider.ProviderRequest{
		Model:    "gemini-2.5-flash",
		Messages: []provider.ProviderMessage{{Role: "user", Content: "hello"}},
		APIKey:   "slot-key",
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var text string
	for ev := range ch {
		if ev.Type == provider.ProviderEventTextDelta {
			text += ev.Delta
		}
	}

	if text != "hi" {
		t.Errorf("text = %q, want hi", text)
	}
	if gotAuth != "Bearer slot-key" {
		t.Errorf("Authorization = %q, want per-request key", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if !gotBody.Stream || gotBody.StreamOptions == nil || !gotBody.StreamOptions.IncludeUsage {
		t.Errorf("stream options not set: %+v", gotBody)
	}
}

func TestClient_StreamQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `[{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}]`)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	_, err := c.Stream(context.Background(), &provider.ProviderRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !api.IsQuotaError(err) {
		t.Errorf("err = %v, want quota error", err)
	}
}

func TestClient_CompleteFallsBackToDefaultKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Model: "m",
			Choices: []ChatChoice{{
				Message: ChatMessage{
					Role: "assistant",
					ToolCalls: []ChatToolCall{{
						ID:       "call_1",
						Type:     "function",
						Function: ChatFunctionCall{Name: "run_python_code", Arguments: `{"code":"print(1)"}`},
					}},
				},
				FinishReason: "tool_calls",
			}},
			Usage: &ChatUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "default-key", time.Second)
	resp, err := c.Complete(context.Background(), &provider.ProviderRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if gotAuth != "Bearer default-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if resp.FinishReason != "tool_calls" || len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Message.ToolCalls[0].Function.Name != "run_python_code" {
		t.Errorf("tool call = %+v", resp.Message.ToolCalls[0])
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gemini-2.5-flash","object":"model","owned_by":"google"}]}`)
	}))
	defer server.Close()

	models, err := NewClient(server.URL, "", time.Second).ListModels(context.Background(), "k")
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "gemini-2.5-flash" {
		t.Errorf("models = %+v", models)
	}
}

func TestTranslateToChat_ToolCallOnlyMessage(t *testing.T) {
	cr := TranslateToChat(&provider.ProviderRequest{
		Model: "m",
		Messages: []provider.ProviderMessage{
			{Role: "assistant", ToolCalls: []provider.ProviderToolCall{{ID: "c", Type: "function", Function: provider.ProviderFunctionCall{Name: "n", Arguments: "{}"}}}},
			{Role: "tool", Content: "out", ToolCallID: "c", Name: "n"},
		},
		ToolChoice: "auto",
	})

	if cr.Messages[0].Content != nil {
		t.Errorf("content = %v, want nil for tool-call-only message", cr.Messages[0].Content)
	}
	if cr.Messages[1].ToolCallID != "c" {
		t.Errorf("tool message = %+v", cr.Messages[1])
	}
	if cr.ToolChoice != nil {
		t.Errorf("tool_choice = %v, want omitted without tools", cr.ToolChoice)
	}
}
