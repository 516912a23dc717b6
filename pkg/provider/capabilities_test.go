package provider

import (
	"encoding/json"
	"testing"

	"github.com/rhuss/datagem/pkg/tools"
)

func TestValidateCapabilities(t *testing.T) {
	python := []ProviderTool{{Type: "function", Function: ProviderFunctionDef{Name: "run_python_code"}}}
	full := ProviderCapabilities{Streaming: true, ToolCalling: true}

	tests := []struct {
		name      string
		caps      ProviderCapabilities
		stream    bool
		tools     []ProviderTool
		wantParam string
	}{
		{name: "blocking call, no tools", caps: ProviderCapabilities{}},
		{name: "stream on a blocking backend", caps: ProviderCapabilities{}, stream: true, wantParam: "stream"},
		{name: "stream supported", caps: ProviderCapabilities{Streaming: true}, stream: true},
		{name: "tools without tool calling", caps: ProviderCapabilities{Streaming: true}, stream: true, tools: python, wantParam: "tools"},
		{name: "stream checked before tools", caps: ProviderCapabilities{}, stream: true, tools: python, wantParam: "stream"},
		{name: "chat turn with tools", caps: full, stream: true, tools: python},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapabilities(tt.caps, &ProviderRequest{Model: "gemini-2.5-flash", Stream: tt.stream, Tools: tt.tools})
			switch {
			case tt.wantParam == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantParam != "" && err == nil:
				t.Errorf("accepted, want rejection of %q", tt.wantParam)
			case tt.wantParam != "" && err.Param != tt.wantParam:
				t.Errorf("rejected %q, want %q", err.Param, tt.wantParam)
			}
		})
	}
}

func TestToolsFromDefinitions(t *testing.T) {
	defs := []tools.Definition{
		{Name: tools.GoogleSearch, Description: "search", Parameters: json.RawMessage(`{"type":"object"}`)},
		{Name: tools.RunPythonCode, Description: "run"},
	}

	got := ToolsFromDefinitions(defs)
	if len(got) != 2 {
		t.Fatalf("got %d tools, want 2", len(got))
	}
	if got[0].Type != "function" || got[0].Function.Name != "google_search" {
		t.Errorf("tool[0] = %+v", got[0])
	}
	if string(got[0].Function.Parameters) != `{"type":"object"}` {
		t.Errorf("parameters = %s", got[0].Function.Parameters)
	}
	if got[1].Function.Description != "run" {
		t.Errorf("tool[1] description = %q", got[1].Function.Description)
	}
}

func TestProviderRequest_APIKeyNotSerialized(t *testing.T) {
	data, err := json.Marshal(&ProviderRequest{Model: "m", APIKey: "secret-key"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid json %s: %v", data, err)
	}
	for k, v := range m {
		if v == "secret-key" {
			t.Errorf("APIKey leaked in field %q", k)
		}
	}
}
