// Package remote runs sandbox executions on a sandbox-server worker over
// HTTP. The worker (cmd/sandbox-server) applies the same program building,
// limits and classification as the local executor.
package remote

import "github.com/rhuss/datagem/pkg/api"

// ExecuteRequest is the request body for POST /execute on the sandbox server.
type ExecuteRequest struct {
	Code           string      `json:"code"`
	Dataset        api.Dataset `json:"dataset,omitempty"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

// ExecuteResponse is the response from POST /execute on the sandbox server.
type ExecuteResponse struct {
	Classification  string `json:"classification"`
	Message         string `json:"message"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Truncated       bool   `json:"truncated,omitempty"`
}
