package openaicompat

import (
	"github.com/rhuss/datagem/pkg/provider"
)

// TranslateResponse maps a non-streamed completion onto a ProviderResponse.
// Only the first choice is read; a response without choices yields an
// empty message.
func TranslateResponse(resp *ChatCompletionResponse) *provider.ProviderResponse {
	out := &provider.ProviderResponse{Model: resp.Model}
	if u := mapUsage(resp.Usage); u != nil {
		out.Usage = *u
	}
	if len(resp.Choices) == 0 {
		return out
	}

	first := resp.Choices[0]
	out.FinishReason = first.FinishReason
	out.Message = provider.ProviderMessage{Role: "assistant"}
	if text, ok := first.Message.Content.(string); ok {
		out.Message.Content = text
	}
	for _, call := range first.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, provider.ProviderToolCall{
			ID:       call.ID,
			Type:     "function",
			Function: provider.ProviderFunctionCall{Name: call.Function.Name, Arguments: call.Function.Arguments},
		})
	}
	return out
}
