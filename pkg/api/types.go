package api

import (
	"fmt"
	"sort"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleTool:
		return true
	}
	return false
}

// Row maps a column name to a scalar value (string, number, bool or nil).
type Row map[string]any

// Dataset is an ordered sequence of rows. A dataset is attached to one chat
// session and is never modified after that.
type Dataset []Row

// Columns returns the union of column names over all rows, sorted.
func (d Dataset) Columns() []string {
	seen := make(map[string]struct{})
	for _, row := range d {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Summary returns a one-line description of the dataset shape.
func (d Dataset) Summary() string {
	if len(d) == 0 {
		return "no dataset"
	}
	cols := d.Columns()
	return fmt.Sprintf("%d rows x %d columns %v", len(d), len(cols), cols)
}

// ChatRequest is the body accepted by the chat endpoint.
type ChatRequest struct {
	Message string  `json:"message"`
	Dataset Dataset `json:"dataset,omitempty"`

	// Identity names the user the conversation is logged for. It is not
	// part of the wire format; the transport fills it in.
	Identity string `json:"-"`
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ConversationTurn is one entry of a session transcript. Model turns that
// request tools carry ToolCalls; tool turns carry the ToolCallID and
// ToolName of the call they answer.
type ConversationTurn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// HealthStatus is the body returned by the health endpoint.
type HealthStatus struct {
	Status         string  `json:"status"`
	ActiveKeyIndex int     `json:"active_key_index"`
	TotalKeys      int     `json:"total_keys"`
	LastQuotaError *string `json:"last_quota_error"`
}
