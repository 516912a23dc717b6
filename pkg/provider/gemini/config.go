package gemini

import "time"

const (
	// DefaultBaseURL is the Gemini OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
)

// Config holds configuration for the Gemini provider adapter.
type Config struct {
	// BaseURL of the backend. Empty selects DefaultBaseURL and the Gemini
	// path layout (/chat/completions, /models). A custom base URL uses the
	// OpenAI layout (/v1/chat/completions, /v1/models) unless ChatPath and
	// ModelsPath are set.
	BaseURL string

	// ChatPath and ModelsPath override the endpoint paths.
	ChatPath   string
	ModelsPath string

	// Timeout for individual non-streaming HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// ModelMapping maps requested model names to backend model identifiers.
	// Models not in the map are passed through unchanged.
	ModelMapping map[string]string
}

// DefaultConfig returns a Config pointing at the public Gemini endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 120 * time.Second,
	}
}
