package engine

import (
	"time"

	"github.com/rhuss/datagem/pkg/tools"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultMaxToolCalls = 10
	DefaultQuotaRetries = 1
)

// Config holds configuration for the engine.
type Config struct {
	// Model is sent with every upstream request. Required.
	Model string

	// SystemPrompt replaces the built-in instructions. The dataset
	// description is appended either way.
	SystemPrompt string

	// Temperature and MaxOutputTokens are passed through when set.
	Temperature     *float64
	MaxOutputTokens *int

	// MaxToolCalls bounds the tool calls of one user turn. Zero or
	// negative means use the default of 10.
	MaxToolCalls int

	// QuotaRetries is how often one step is retried with a rotated
	// credential after a quota error. Zero means the default of 1,
	// negative disables retries.
	QuotaRetries int

	// HistoryLimit is the number of persisted messages loaded into the
	// transcript before the user turn. Zero disables history.
	HistoryLimit int

	// SandboxTimeout overrides the runner's timeout for run_python_code.
	SandboxTimeout time.Duration

	// Tools are session-independent tool providers (google_search). The
	// run_python_code provider is built per session around its dataset.
	Tools []tools.Provider
}

// maxToolCalls returns the effective tool call limit, defaulting to 10.
func (c Config) maxToolCalls() int {
	if c.MaxToolCalls <= 0 {
		return DefaultMaxToolCalls
	}
	return c.MaxToolCalls
}

// quotaRetries returns the effective retry count, defaulting to 1.
func (c Config) quotaRetries() int {
	switch {
	case c.QuotaRetries < 0:
		return 0
	case c.QuotaRetries == 0:
		return DefaultQuotaRetries
	}
	return c.QuotaRetries
}
