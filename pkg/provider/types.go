package provider

import (
	"encoding/json"

	"github.com/rhuss/datagem/pkg/tools"
)

// ProviderCapabilities is what a backend declares it can do. The engine
// checks it once per chat before spending a credential.
type ProviderCapabilities struct {
	Streaming   bool
	ToolCalling bool

	// MaxContextWindow is in tokens; zero means unknown.
	MaxContextWindow int
}

// ProviderRequest is one model step: the full conversation so far plus
// the tools on offer.
type ProviderRequest struct {
	Model       string            `json:"model"`
	Messages    []ProviderMessage `json:"messages"`
	Tools       []ProviderTool    `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`

	// APIKey is the credential slot chosen for this step. It is sent as a
	// bearer token and never serialized.
	APIKey string `json:"-"`
}

// ProviderMessage is a conversation entry with role system, user,
// assistant or tool.
type ProviderMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []ProviderToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ProviderToolCall is a tool call attached to an assistant message.
type ProviderToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function ProviderFunctionCall `json:"function"`
}

type ProviderFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ProviderTool offers a function to the model.
type ProviderTool struct {
	Type     string              `json:"type"`
	Function ProviderFunctionDef `json:"function"`
}

type ProviderFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolsFromDefinitions wraps registry definitions as function tools.
func ToolsFromDefinitions(defs []tools.Definition) []ProviderTool {
	out := make([]ProviderTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, ProviderTool{
			Type: "function",
			Function: ProviderFunctionDef{
				Name:        string(d.Name),
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// Usage is the token accounting of one step.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ProviderResponse is the result of a non-streaming step.
type ProviderResponse struct {
	Message      ProviderMessage `json:"message"`
	Usage        Usage           `json:"usage"`
	Model        string          `json:"model"`
	FinishReason string          `json:"finish_reason"`
}

// ProviderEventType tells the kinds of ProviderEvent apart.
type ProviderEventType int

const (
	ProviderEventTextDelta ProviderEventType = iota
	ProviderEventTextDone
	ProviderEventToolCallDelta
	ProviderEventToolCallDone
	ProviderEventDone
	ProviderEventError
)

// ProviderEvent is one item of a streamed step.
type ProviderEvent struct {
	Type ProviderEventType

	// Delta is a text fragment, an argument fragment, or for
	// ProviderEventToolCallDone the complete arguments.
	Delta string

	// Tool call events are keyed by index. ToolCallID and FunctionName
	// are known from the first fragment on.
	ToolCallIndex int
	ToolCallID    string
	FunctionName  string

	// FinishReason and Usage are set on ProviderEventDone when the
	// backend reported them.
	FinishReason string
	Usage        *Usage

	// Err is set on ProviderEventError.
	Err error
}

var eventTypeNames = [...]string{"text_delta", "text_done", "tool_call_delta", "tool_call_done", "done", "error"}

func (t ProviderEventType) String() string {
	if t >= 0 && int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "unknown"
}

// ModelInfo describes a model listed by the backend.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
