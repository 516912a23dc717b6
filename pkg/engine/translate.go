package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/provider"
)

// previewRows is the number of dataset rows shown to the model.
const previewRows = 5

const defaultInstructions = `You are DataGem, an expert data analyst.
Answer questions about the user's dataset by writing Python code and running it with the run_python_code tool.
The dataset is loaded as a pandas DataFrame named df. pandas (pd), numpy (np), matplotlib.pyplot (plt) and seaborn (sns) are imported.
Always print() the values you need; only printed output is returned to you.
If the code fails, read the error, fix the code and try again.
Use google_search only for questions that need information outside the dataset.
Explain results in plain language and format tables as Markdown.`

// systemPrompt builds the system message for a session.
func systemPrompt(instructions string, dataset api.Dataset) string {
	if instructions == "" {
		instructions = defaultInstructions
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")

	if len(dataset) == 0 {
		b.WriteString("No dataset is attached to this conversation; df is None. Ask the user to upload one if the question needs data.")
		return b.String()
	}

	cols := dataset.Columns()
	fmt.Fprintf(&b, "The attached dataset has %d rows and %d columns: %s.", len(dataset), len(cols), strings.Join(cols, ", "))

	n := min(previewRows, len(dataset))
	if preview, err := json.Marshal(dataset[:n]); err == nil {
		fmt.Fprintf(&b, "\nFirst %d rows as JSON: %s", n, preview)
	}
	return b.String()
}

// translateTranscript converts transcript turns into provider messages.
func translateTranscript(turns []api.ConversationTurn) []provider.ProviderMessage {
	msgs := make([]provider.ProviderMessage, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case api.RoleUser:
			msgs = append(msgs, provider.ProviderMessage{Role: "user", Content: turn.Content})
		case api.RoleModel:
			msg := provider.ProviderMessage{Role: "assistant", Content: turn.Content}
			if len(turn.ToolCalls) > 0 {
				msg.ToolCalls = buildProviderToolCalls(turn.ToolCalls)
			}
			msgs = append(msgs, msg)
		case api.RoleTool:
			msgs = append(msgs, provider.ProviderMessage{
				Role:       "tool",
				Content:    turn.Content,
				ToolCallID: turn.ToolCallID,
				Name:       turn.ToolName,
			})
		}
	}
	return msgs
}

// buildProviderToolCalls converts transcript tool calls to the Chat
// Completions shape. The assistant message carrying them must precede the
// tool result messages.
func buildProviderToolCalls(calls []api.ToolCall) []provider.ProviderToolCall {
	out := make([]provider.ProviderToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, provider.ProviderToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: provider.ProviderFunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

// buildRequest assembles the upstream request for the next model step.
func (e *Engine) buildRequest(sess *Session, apiKey string) *provider.ProviderRequest {
	msgs := []provider.ProviderMessage{{
		Role:    "system",
		Content: systemPrompt(e.cfg.SystemPrompt, sess.Dataset),
	}}
	msgs = append(msgs, translateTranscript(sess.Transcript.Turns())...)

	req := &provider.ProviderRequest{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Tools:       provider.ToolsFromDefinitions(sess.Tools()),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxOutputTokens,
		Stream:      true,
		APIKey:      apiKey,
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	return req
}
