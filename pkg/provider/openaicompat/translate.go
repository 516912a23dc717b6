package openaicompat

import (
	"github.com/rhuss/datagem/pkg/provider"
)

// TranslateToChat builds the wire request for one model step. Streaming
// requests ask for a trailing usage chunk.
func TranslateToChat(req *provider.ProviderRequest) ChatCompletionRequest {
	out := ChatCompletionRequest{
		Model:       req.Model,
		Messages:    chatMessages(req.Messages),
		Tools:       chatTools(req.Tools),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
		Stream:      req.Stream,
	}
	if req.Stream {
		out.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}
	// tool_choice without tools is rejected by Gemini.
	if len(out.Tools) > 0 && req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	return out
}

func chatMessages(in []provider.ProviderMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(in))
	for _, m := range in {
		msg := ChatMessage{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			ToolCalls:  chatToolCalls(m.ToolCalls),
		}
		// null content for an assistant turn that only requests tools
		if m.Content != "" || len(msg.ToolCalls) == 0 {
			msg.Content = m.Content
		}
		out = append(out, msg)
	}
	return out
}

func chatToolCalls(in []provider.ProviderToolCall) []ChatToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]ChatToolCall, len(in))
	for i, call := range in {
		out[i] = ChatToolCall{
			ID:       call.ID,
			Type:     call.Type,
			Function: ChatFunctionCall{Name: call.Function.Name, Arguments: call.Function.Arguments},
		}
	}
	return out
}

func chatTools(in []provider.ProviderTool) []ChatTool {
	if len(in) == 0 {
		return nil
	}
	out := make([]ChatTool, len(in))
	for i, tool := range in {
		out[i] = ChatTool{
			Type: tool.Type,
			Function: ChatFunctionDef{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		}
	}
	return out
}
